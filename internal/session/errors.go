package session

import "errors"

// Sentinel error kinds for the Session loop, rather than a custom
// exception hierarchy.
var (
	// ErrHandshake: the first frame was not ClientHello, or the agent
	// never received a ServerHello.
	ErrHandshake = errors.New("session: handshake failed")

	// ErrProtocol: frame deserialization failure, reference to an
	// unknown flow_id, or an unexpected ControlMessage variant in a
	// flow-local context.
	ErrProtocol = errors.New("session: protocol error")

	// ErrPeerClosed: EOF on the control channel. Fatal at the Session
	// level (non-fatal at the flow level, where it is just a normal
	// socket close).
	ErrPeerClosed = errors.New("session: peer closed control channel")
)
