// Package session implements the multiplexer: the single cooperative
// loop per Session that arbitrates between inbound control frames, the
// egress queue, and new-flow events, and serves as the sole writer onto
// the control channel.
package session

import (
	"fmt"
	"io"

	"github.com/op/go-logging"

	"github.com/kryptco/kr-tunnel/internal/wire"
)

// EgressCapacity bounds the inter-task channel FlowHandlers enqueue onto;
// a slow peer back-pressures through this bound.
const EgressCapacity = 32

// Session owns the encrypted, framed control channel, the FlowTable, and
// the egress queue for one encrypted connection between one agent and
// one rendezvous. Session itself does not know which role it plays;
// RunRendezvous and RunAgent in this package implement the two loops on
// top of it.
type Session struct {
	Codec  *wire.Codec
	Table  *FlowTable
	Egress chan wire.ControlMessage
	Log    *logging.Logger

	done     chan struct{}
	inboundC chan inboundFrame
}

type inboundFrame struct {
	msg wire.ControlMessage
	err error
}

// New builds a Session around an already-handshaken codec.
func New(codec *wire.Codec, log *logging.Logger) *Session {
	return &Session{
		Codec:    codec,
		Table:    NewFlowTable(),
		Egress:   make(chan wire.ControlMessage, EgressCapacity),
		Log:      log,
		done:     make(chan struct{}),
		inboundC: make(chan inboundFrame),
	}
}

// Done returns a channel closed once the Session has ended. FlowHandlers
// select on this to avoid blocking forever trying to enqueue onto an
// egress queue nobody will ever drain again.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// startInboundPump spawns the one goroutine that turns blocking
// Codec.ReadMessage calls into a channel the Session loop's select can
// arbitrate over alongside the egress queue and (on the rendezvous) the
// external listener's Accept. This is the idiomatic Go translation of
// "arbitrate among three event sources": Go's select has no way to wait
// on a blocking io.Reader directly, so the read is pushed onto its own
// goroutine and channel.
func (s *Session) startInboundPump() {
	go func() {
		for {
			msg, err := s.Codec.ReadMessage()
			select {
			case s.inboundC <- inboundFrame{msg: msg, err: err}:
			case <-s.done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// end closes the done channel exactly once and cascades FlowTable
// teardown, releasing every live FlowHandler.
func (s *Session) end() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.Table.RemoveAll()
}

// writeEgress is the only place WriteMessage is ever called, preserving
// the single-writer invariant on the control channel.
func (s *Session) writeEgress(msg wire.ControlMessage) error {
	return s.Codec.WriteMessage(msg)
}

func classifyReadErr(err error) error {
	if err == io.EOF {
		return ErrPeerClosed
	}
	return fmt.Errorf("%w: %v", ErrProtocol, err)
}
