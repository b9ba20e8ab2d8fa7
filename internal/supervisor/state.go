package supervisor

// State represents the worker lifecycle state.
// Transitions are owned exclusively by the Supervisor; callers observe worker
// health only through them.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateError    State = "error"
)

// StateChange notifies subscribers of a lifecycle transition.
type StateChange struct {
	Old State
	New State
}
