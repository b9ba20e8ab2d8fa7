// Package session maintains the control-plane session with a running worker.
//
// A session is a single persistent TCP connection carrying newline-delimited
// JSON frames. Requests are multiplexed over the connection and matched to
// responses by correlation id, so responses may arrive in any order. Events
// are pushed by the worker at any time.
package session

import "encoding/json"

// Protocol version bounds supported by this client.
const (
	MinProtocol = 1
	MaxProtocol = 1
)

// Frame type discriminators.
const (
	frameRequest  = "req"
	frameResponse = "res"
	frameEvent    = "event"
)

// EventChallenge is pushed by the worker after the transport opens. The
// client must not send its handshake until the challenge arrives.
const EventChallenge = "challenge"

// Wildcard subscribes a handler to every event.
const Wildcard = "*"

// MethodConnect is the handshake request method.
const MethodConnect = "connect"

// Frame is the wire envelope for all session traffic. The Type field selects
// which of the remaining fields are meaningful.
type Frame struct {
	Type string `json:"type"`

	// Request and response frames.
	ID string `json:"id,omitempty"`

	// Request frames.
	Method string `json:"method,omitempty"`
	Params any    `json:"params,omitempty"`

	// Response frames.
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`

	// Event frames. EventPayload shares the wire key with Payload via
	// Payload; Event carries the event name.
	Event string `json:"event,omitempty"`
}

// FrameError carries a server-side failure in a response frame.
type FrameError struct {
	Message string `json:"message"`
}

// ClientInfo identifies this client in the handshake.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode,omitempty"`
}

// AuthParams carries the session credential.
type AuthParams struct {
	Token string `json:"token"`
}

// ConnectParams is the handshake request body.
type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      ClientInfo  `json:"client"`
	Role        string      `json:"role,omitempty"`
	Scopes      []string    `json:"scopes,omitempty"`
	Auth        *AuthParams `json:"auth,omitempty"`
}
