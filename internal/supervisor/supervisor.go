// Package supervisor owns the lifecycle of the supervised worker process.
//
// A Supervisor discovers a free control port, locates and spawns the worker
// binary with an isolated environment, tracks the OS process, detects
// readiness from captured output, and tears the worker down with bounded kill
// escalation. The lock file lets a fresh supervisor instance recover from a
// crash of its predecessor by terminating the worker it left behind.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tessro/warden/internal/event"
	"github.com/tessro/warden/internal/lockfile"
	"github.com/tessro/warden/internal/logbuf"
	"github.com/tessro/warden/internal/logging"
	"github.com/tessro/warden/internal/netport"
	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/worker"
)

// Defaults for Config fields left zero.
const (
	DefaultPort             = 52100
	DefaultReadinessTimeout = 15 * time.Second
	DefaultStopTimeout      = 5 * time.Second
	DefaultKillGrace        = 500 * time.Millisecond
	DefaultLogTail          = 20
)

// DefaultReadinessKeywords are the output substrings taken as the worker's
// readiness signal. This is a heuristic, not a contract: a worker that never
// prints them is still assumed started after ReadinessTimeout, with a
// recorded warning.
var DefaultReadinessKeywords = []string{"listening", "ready"}

// pollInterval is how often liveness is re-checked while waiting for a
// terminated process to die.
const pollInterval = 25 * time.Millisecond

// Config configures a Supervisor.
type Config struct {
	// Locator resolves the worker binary.
	Locator worker.Locator

	// PreferredPort is the first control port probed.
	PreferredPort int

	// MaxPortProbes bounds the port search.
	MaxPortProbes int

	// StateDir is the worker's private state directory.
	StateDir string

	// LockPath is the worker PID lock file.
	LockPath string

	// WorkerConfigPath is where the worker's private config file is written.
	WorkerConfigPath string

	// ControlFilePath is where the control session file is written.
	ControlFilePath string

	// ReadinessKeywords are matched (case-insensitively) against captured
	// output lines to detect startup completion.
	ReadinessKeywords []string

	// ReadinessTimeout bounds the wait for a readiness signal.
	ReadinessTimeout time.Duration

	// StopTimeout bounds the wait after SIGTERM before escalating to SIGKILL.
	StopTimeout time.Duration

	// KillGrace bounds the re-check after SIGKILL.
	KillGrace time.Duration

	// WorkerLogLevel is written into the worker's private config file.
	WorkerLogLevel string

	// Detach redirects worker output to WorkerLogPath instead of in-process
	// pipes. Required when this process will exit before the worker: a
	// worker on pipes is killed by SIGPIPE on its next write once the
	// spawner's read ends close.
	Detach bool

	// WorkerLogPath is the output file used when Detach is set.
	WorkerLogPath string

	// LogCapacity is the output ring buffer size.
	LogCapacity int

	// LogTail is how many trailing log entries a status snapshot carries.
	LogTail int

	// ExtraEnv appends additional KEY=VALUE pairs to the worker environment.
	ExtraEnv []string
}

// DefaultConfig returns a Config using the standard warden paths and timings.
func DefaultConfig() Config {
	stateDir, _ := paths.StateDir()
	workerCfg, _ := paths.WorkerConfigPath()
	controlPath, _ := paths.ControlFilePath()
	workerLog, _ := paths.WorkerLogPath()
	return Config{
		WorkerLogPath:     workerLog,
		PreferredPort:     DefaultPort,
		MaxPortProbes:     netport.DefaultMaxProbes,
		StateDir:          stateDir,
		LockPath:          paths.LockPath(),
		WorkerConfigPath:  workerCfg,
		ControlFilePath:   controlPath,
		ReadinessKeywords: DefaultReadinessKeywords,
		ReadinessTimeout:  DefaultReadinessTimeout,
		StopTimeout:       DefaultStopTimeout,
		KillGrace:         DefaultKillGrace,
		LogCapacity:       logbuf.DefaultCapacity,
		LogTail:           DefaultLogTail,
	}
}

// Snapshot is an immutable view of the supervisor state. It never aliases
// internal structures.
type Snapshot struct {
	State     State          `json:"state"`
	Port      int            `json:"port,omitempty"`
	PID       int            `json:"pid,omitempty"`
	Err       string         `json:"error,omitempty"`
	Warning   string         `json:"warning,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	Token     string         `json:"token,omitempty"`
	Logs      []logbuf.Entry `json:"logs,omitempty"`
}

// Addr returns the worker's control endpoint address, or "" when no port is
// allocated.
func (s Snapshot) Addr() string {
	if s.Port == 0 {
		return ""
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(s.Port))
}

// Supervisor manages a single worker process instance.
type Supervisor struct {
	cfg  Config
	logs *logbuf.Buffer

	stateEvents event.Emitter[StateChange]

	// sf coalesces concurrent lifecycle invocations per operation.
	sf singleflight.Group

	// mu serializes lifecycle transitions (start/stop/restart). It is held
	// across the whole operation, including waits for process death.
	mu sync.Mutex

	// stateMu guards the snapshot fields. It is never held across blocking
	// waits so Status and the exit handler stay responsive while a lifecycle
	// operation is in flight.
	stateMu sync.RWMutex
	// +checklocks:stateMu
	state State
	// +checklocks:stateMu
	cmd *exec.Cmd
	// +checklocks:stateMu
	port int
	// +checklocks:stateMu
	token string
	// +checklocks:stateMu
	startedAt time.Time
	// +checklocks:stateMu
	lastErr string
	// +checklocks:stateMu
	warning string
	// +checklocks:stateMu
	gen int // spawn generation; guards the exit handler against restart races
	// +checklocks:stateMu
	exited chan struct{} // closed by the exit handler for the current generation
	// +checklocks:stateMu
	waitDone chan struct{} // closed once the current child is reaped
}

// New creates a Supervisor. Zero Config fields fall back to DefaultConfig
// values.
func New(cfg Config) *Supervisor {
	def := DefaultConfig()
	if cfg.PreferredPort == 0 {
		cfg.PreferredPort = def.PreferredPort
	}
	if cfg.MaxPortProbes == 0 {
		cfg.MaxPortProbes = def.MaxPortProbes
	}
	if cfg.StateDir == "" {
		cfg.StateDir = def.StateDir
	}
	if cfg.LockPath == "" {
		cfg.LockPath = def.LockPath
	}
	if cfg.WorkerConfigPath == "" {
		cfg.WorkerConfigPath = def.WorkerConfigPath
	}
	if cfg.ControlFilePath == "" {
		cfg.ControlFilePath = def.ControlFilePath
	}
	if cfg.WorkerLogPath == "" {
		cfg.WorkerLogPath = def.WorkerLogPath
	}
	if len(cfg.ReadinessKeywords) == 0 {
		cfg.ReadinessKeywords = def.ReadinessKeywords
	}
	if cfg.ReadinessTimeout == 0 {
		cfg.ReadinessTimeout = def.ReadinessTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.KillGrace == 0 {
		cfg.KillGrace = def.KillGrace
	}
	if cfg.LogTail == 0 {
		cfg.LogTail = def.LogTail
	}

	return &Supervisor{
		cfg:   cfg,
		logs:  logbuf.New(cfg.LogCapacity),
		state: StateStopped,
	}
}

// OnStateChange registers a handler for lifecycle transitions.
func (s *Supervisor) OnStateChange(fn func(StateChange)) {
	s.stateEvents.OnEvent(fn)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Status returns an immutable snapshot of the supervisor state, including the
// trailing log window.
func (s *Supervisor) Status() Snapshot {
	s.stateMu.RLock()
	snap := Snapshot{
		State:     s.state,
		Port:      s.port,
		Err:       s.lastErr,
		Warning:   s.warning,
		StartedAt: s.startedAt,
		Token:     s.token,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		snap.PID = s.cmd.Process.Pid
	}
	s.stateMu.RUnlock()

	snap.Logs = s.logs.Tail(s.cfg.LogTail)
	return snap
}

// Start launches the worker if it is not already running. Idempotent: when
// the tracked worker is alive, the current snapshot is returned unchanged.
// Concurrent callers share a single invocation.
func (s *Supervisor) Start(ctx context.Context) (Snapshot, error) {
	v, err, _ := s.sf.Do("start", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.startLocked(ctx)
	})
	snap, _ := v.(Snapshot)
	return snap, err
}

// Stop terminates the tracked worker (and any worker recorded in the lock
// file) with bounded kill escalation, then clears the handle, state, and lock
// file. Idempotent: safe to call when nothing is running. Concurrent callers
// share a single invocation.
func (s *Supervisor) Stop(ctx context.Context) Snapshot {
	v, _, _ := s.sf.Do("stop", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stopLocked(ctx), nil
	})
	snap, _ := v.(Snapshot)
	return snap
}

// Restart sequences a full stop (awaiting process death) and a fresh start
// without any additional delay between them.
func (s *Supervisor) Restart(ctx context.Context) (Snapshot, error) {
	v, err, _ := s.sf.Do("restart", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopLocked(ctx)
		return s.startLocked(ctx)
	})
	snap, _ := v.(Snapshot)
	return snap, err
}

// startLocked implements Start. Caller holds s.mu.
func (s *Supervisor) startLocked(ctx context.Context) (Snapshot, error) {
	s.stateMu.RLock()
	running := s.state == StateRunning && s.cmd != nil && s.cmd.Process != nil &&
		lockfile.IsAlive(s.cmd.Process.Pid)
	s.stateMu.RUnlock()
	if running {
		slog.Debug("start: worker already running")
		return s.Status(), nil
	}

	s.setState(StateStarting)
	s.stateMu.Lock()
	s.lastErr = ""
	s.warning = ""
	s.stateMu.Unlock()

	// Targeted cleanup: only the process this instance tracks and the PID in
	// our own lock file, never unrelated processes.
	s.cleanupLocked()

	port, err := netport.Allocate(s.cfg.PreferredPort, s.cfg.MaxPortProbes)
	if err != nil {
		return s.failLocked(fmt.Errorf("allocate control port: %w", err))
	}

	binPath, err := s.cfg.Locator.Resolve()
	if err != nil {
		return s.failLocked(err)
	}

	token := worker.NewToken()

	if err := worker.WriteConfig(s.cfg.WorkerConfigPath, worker.FileConfig{
		StateDir:    s.cfg.StateDir,
		ControlPort: port,
		LogLevel:    s.cfg.WorkerLogLevel,
	}); err != nil {
		return s.failLocked(err)
	}

	spec := worker.SpawnSpec{
		Path:       binPath,
		Port:       port,
		StateDir:   s.cfg.StateDir,
		ConfigPath: s.cfg.WorkerConfigPath,
		Token:      token,
		ExtraEnv:   s.cfg.ExtraEnv,
	}
	cmd := spec.Command()

	// Detached workers must not hold pipes into this process: once it
	// exits, the closed read ends turn the worker's next write into a
	// SIGPIPE death. Their output goes to a file instead.
	var stdout, stderr io.ReadCloser
	var outFile *os.File
	if s.cfg.Detach {
		if err := os.MkdirAll(filepath.Dir(s.cfg.WorkerLogPath), 0700); err != nil {
			return s.failLocked(fmt.Errorf("create worker log directory: %w", err))
		}
		outFile, err = os.OpenFile(s.cfg.WorkerLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return s.failLocked(fmt.Errorf("open worker log: %w", err))
		}
		cmd.Stdout = outFile
		cmd.Stderr = outFile
	} else {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return s.failLocked(fmt.Errorf("stdout pipe: %w", err))
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			return s.failLocked(fmt.Errorf("stderr pipe: %w", err))
		}
	}

	slog.Info("starting worker", "path", binPath, "port", port, "detach", s.cfg.Detach)
	if err := cmd.Start(); err != nil {
		if outFile != nil {
			outFile.Close()
		}
		return s.failLocked(fmt.Errorf("spawn worker: %w", err))
	}
	if outFile != nil {
		// The worker holds its own descriptor now.
		outFile.Close()
	}
	pid := cmd.Process.Pid

	// Persist the PID before anything else so a crash of this process leaves
	// a recoverable record.
	if err := lockfile.Write(s.cfg.LockPath, pid); err != nil {
		slog.Error("write lock file", "error", err)
	}

	startedAt := time.Now()
	if err := writeControlFile(s.cfg.ControlFilePath, ControlInfo{
		Addr:      net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		Port:      port,
		PID:       pid,
		Token:     token,
		StartedAt: startedAt,
	}); err != nil {
		slog.Warn("write control file", "error", err)
	}

	exited := make(chan struct{})
	waitDone := make(chan struct{})
	s.stateMu.Lock()
	s.cmd = cmd
	s.port = port
	s.token = token
	s.startedAt = startedAt
	s.gen++
	gen := s.gen
	s.exited = exited
	s.waitDone = waitDone
	s.stateMu.Unlock()

	ready := make(chan struct{})
	var readyOnce sync.Once
	signalReady := func() { readyOnce.Do(func() { close(ready) }) }

	if s.cfg.Detach {
		stopTail := make(chan struct{})
		defer close(stopTail)
		go s.tailOutput(s.cfg.WorkerLogPath, signalReady, stopTail)

		go func() {
			defer logging.LogPanic("worker-wait", nil)
			waitErr := cmd.Wait()
			close(waitDone)
			s.handleExit(gen, waitErr)
		}()
	} else {
		var scanners sync.WaitGroup
		scanners.Add(2)
		go s.scanOutput("stdout", stdout, signalReady, &scanners)
		go s.scanOutput("stderr", stderr, signalReady, &scanners)

		go func() {
			defer logging.LogPanic("worker-wait", nil)
			scanners.Wait()
			s.logs.Flush()
			waitErr := cmd.Wait()
			close(waitDone)
			s.handleExit(gen, waitErr)
		}()
	}

	select {
	case <-ready:
		slog.Info("worker ready", "pid", pid, "port", port)
		s.setState(StateRunning)

	case <-exited:
		snap := s.Status()
		if snap.Err == "" {
			snap.Err = "worker exited during startup"
		}
		return snap, errors.New(snap.Err)

	case <-time.After(s.cfg.ReadinessTimeout):
		warning := fmt.Sprintf("no readiness signal within %s; assuming worker started", s.cfg.ReadinessTimeout)
		slog.Warn("worker readiness timeout", "pid", pid, "timeout", s.cfg.ReadinessTimeout)
		s.logs.Append(warning)
		s.stateMu.Lock()
		s.warning = warning
		s.stateMu.Unlock()
		s.setState(StateRunning)

	case <-ctx.Done():
		s.stopLocked(context.Background())
		return s.Status(), ctx.Err()
	}

	return s.Status(), nil
}

// stopLocked implements Stop. Caller holds s.mu.
func (s *Supervisor) stopLocked(_ context.Context) Snapshot {
	s.stateMu.Lock()
	cmd := s.cmd
	waitDone := s.waitDone
	s.cmd = nil
	s.waitDone = nil
	s.gen++ // detach the exit handler; this stop owns the shutdown
	s.stateMu.Unlock()

	trackedPid := 0
	if cmd != nil && cmd.Process != nil {
		trackedPid = cmd.Process.Pid
	}

	survivor := false
	if trackedPid != 0 {
		slog.Info("stopping worker", "pid", trackedPid)
		if !s.terminate(trackedPid, waitDone) {
			survivor = true
		}
	}

	// A stale or divergent lock file means a worker from a previous run; it
	// is ours to clean up too.
	if lockPid, err := lockfile.Read(s.cfg.LockPath); err == nil && lockPid != 0 && lockPid != trackedPid {
		slog.Info("stopping worker from lock file", "pid", lockPid)
		if !s.terminate(lockPid, nil) {
			survivor = true
		}
	}

	if err := lockfile.Remove(s.cfg.LockPath); err != nil {
		slog.Warn("remove lock file", "error", err)
	}
	removeControlFile(s.cfg.ControlFilePath)

	s.stateMu.Lock()
	old := s.state
	s.state = StateStopped
	s.lastErr = ""
	s.warning = ""
	if survivor {
		s.warning = "a worker process survived SIGKILL"
	}
	s.stateMu.Unlock()
	if old != StateStopped {
		s.stateEvents.Emit(StateChange{Old: old, New: StateStopped})
	}

	return s.Status()
}

// cleanupLocked terminates any process this instance is tracking, then the
// PID recorded in its lock file, before a fresh spawn. Caller holds s.mu.
func (s *Supervisor) cleanupLocked() {
	s.stateMu.Lock()
	cmd := s.cmd
	waitDone := s.waitDone
	s.cmd = nil
	s.waitDone = nil
	s.gen++
	s.stateMu.Unlock()

	trackedPid := 0
	if cmd != nil && cmd.Process != nil {
		trackedPid = cmd.Process.Pid
	}
	if trackedPid != 0 {
		slog.Info("cleanup: terminating tracked worker", "pid", trackedPid)
		s.terminate(trackedPid, waitDone)
	}

	if lockPid, live := lockfile.ReadLive(s.cfg.LockPath); live && lockPid != trackedPid {
		slog.Info("cleanup: terminating worker from previous run", "pid", lockPid)
		s.terminate(lockPid, nil)
	}

	if err := lockfile.Remove(s.cfg.LockPath); err != nil {
		slog.Warn("remove lock file", "error", err)
	}
	removeControlFile(s.cfg.ControlFilePath)
}

// failLocked records a fatal start error and returns the resulting snapshot.
func (s *Supervisor) failLocked(err error) (Snapshot, error) {
	slog.Error("worker start failed", "error", err)
	s.logs.Append(err.Error())
	s.stateMu.Lock()
	old := s.state
	s.state = StateError
	s.lastErr = err.Error()
	s.stateMu.Unlock()
	if old != StateError {
		s.stateEvents.Emit(StateChange{Old: old, New: StateError})
	}
	return s.Status(), err
}

// setState transitions the lifecycle state and notifies subscribers.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	old := s.state
	s.state = newState
	s.stateMu.Unlock()
	if old != newState {
		s.stateEvents.Emit(StateChange{Old: old, New: newState})
	}
}

// terminate sends SIGTERM to pid, waits up to StopTimeout for death, then
// escalates to SIGKILL with a KillGrace re-check. Returns true once the
// process is confirmed dead. A process surviving SIGKILL is logged, not
// retried further.
//
// waitDone, when non-nil, is the reap channel of this instance's own child;
// it distinguishes a genuinely live child from an exited-but-unreaped one,
// which still answers signal 0. Foreign PIDs (lock file orphans) pass nil and
// rely on liveness polling alone.
func (s *Supervisor) terminate(pid int, waitDone <-chan struct{}) bool {
	if pid <= 0 {
		return true
	}
	if waitGone(pid, waitDone, 0) {
		return true
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}

	_ = proc.Signal(syscall.SIGTERM)
	if waitGone(pid, waitDone, s.cfg.StopTimeout) {
		return true
	}

	slog.Warn("worker ignored SIGTERM, sending SIGKILL", "pid", pid)
	_ = proc.Signal(syscall.SIGKILL)
	if waitGone(pid, waitDone, s.cfg.KillGrace) {
		return true
	}

	slog.Error("worker survived SIGKILL", "pid", pid)
	s.logs.Append(fmt.Sprintf("worker pid %d survived SIGKILL", pid))
	return false
}

// waitGone polls until the process is confirmed dead or the timeout elapses.
func waitGone(pid int, waitDone <-chan struct{}, timeout time.Duration) bool {
	dead := func() bool {
		if waitDone != nil {
			select {
			case <-waitDone:
				return true
			default:
			}
		}
		return !lockfile.IsAlive(pid)
	}

	deadline := time.Now().Add(timeout)
	for {
		if dead() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// scanOutput captures one worker output stream into the log ring and watches
// for the readiness signal.
func (s *Supervisor) scanOutput(stream string, r io.Reader, signalReady func(), wg *sync.WaitGroup) {
	defer wg.Done()
	defer logging.LogPanic("worker-"+stream, nil)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.logs.Append(line)
		slog.Debug("worker output", "stream", stream, "line", line)
		if s.matchesReadiness(line) {
			signalReady()
		}
	}
}

// tailOutput follows the detached worker's output file during the startup
// window, mirroring new lines into the log ring and watching for the
// readiness signal. Stops when signaled; after that the file is the worker's
// only output sink.
func (s *Supervisor) tailOutput(path string, signalReady func(), stop <-chan struct{}) {
	defer logging.LogPanic("worker-tail", nil)

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("open worker log for readiness", "error", err)
		return
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := r.ReadBytes('\n')
		partial = append(partial, chunk...)
		if len(partial) > 0 && partial[len(partial)-1] == '\n' {
			line := strings.TrimRight(string(partial), "\r\n")
			partial = partial[:0]
			s.logs.Append(line)
			slog.Debug("worker output", "line", line)
			if s.matchesReadiness(line) {
				signalReady()
			}
			continue
		}
		if err != nil {
			select {
			case <-stop:
				return
			case <-time.After(pollInterval):
			}
		}
	}
}

func (s *Supervisor) matchesReadiness(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range s.cfg.ReadinessKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// handleExit runs when the OS reports worker exit. Exit code 0 maps to
// stopped, anything else to error. Superseded generations (a restart already
// replaced this process) are ignored.
func (s *Supervisor) handleExit(gen int, waitErr error) {
	s.stateMu.Lock()
	if gen != s.gen {
		s.stateMu.Unlock()
		return
	}

	old := s.state
	newState := StateStopped
	msg := ""
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			msg = fmt.Sprintf("worker exited with code %d", exitErr.ExitCode())
		} else {
			msg = fmt.Sprintf("worker wait failed: %v", waitErr)
		}
		newState = StateError
	}
	s.state = newState
	s.lastErr = msg
	s.cmd = nil
	exited := s.exited
	s.exited = nil
	s.stateMu.Unlock()

	if err := lockfile.Remove(s.cfg.LockPath); err != nil {
		slog.Warn("remove lock file", "error", err)
	}
	removeControlFile(s.cfg.ControlFilePath)

	if msg != "" {
		slog.Warn("worker exited", "error", msg)
		s.logs.Append(msg)
	} else {
		slog.Info("worker exited cleanly")
	}

	if exited != nil {
		close(exited)
	}
	if old != newState {
		s.stateEvents.Emit(StateChange{Old: old, New: newState})
	}
}
