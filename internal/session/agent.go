package session

import (
	"fmt"
	"net"

	"github.com/kryptco/kr-tunnel/internal/flow"
	"github.com/kryptco/kr-tunnel/internal/logging"
	"github.com/kryptco/kr-tunnel/internal/wire"
)

// DialBackend opens a fresh connection to the backend service for a
// newly signalled flow.
type DialBackend func() (net.Conn, error)

// RunAgent runs the agent side of the Session loop: for every
// NewConnection signalled by the rendezvous it dials the backend and
// spawns a FlowHandler; Data and CloseConnection frames are dispatched
// to the matching flow; egress messages from FlowHandlers are forwarded
// to the rendezvous.
func RunAgent(s *Session, dial DialBackend) error {
	s.startInboundPump()
	defer s.end()

	for {
		select {
		case msg := <-s.Egress:
			if msg.Tag == wire.TagCloseConnection {
				s.Table.Remove(msg.CloseConnection.ID)
			}
			if err := s.writeEgress(msg); err != nil {
				return fmt.Errorf("%w: writing egress message: %v", ErrProtocol, err)
			}

		case in := <-s.inboundC:
			if in.err != nil {
				return classifyReadErr(in.err)
			}
			switch in.msg.Tag {
			case wire.TagNewConnection:
				id := in.msg.NewConnection.ID
				conn, err := dial()
				if err != nil {
					if s.Log != nil {
						s.Log.Error("flow ", id, " backend dial failed: ", err)
					}
					if werr := s.writeEgress(wire.NewCloseConnection(id)); werr != nil {
						return fmt.Errorf("%w: writing CloseConnection after failed dial: %v", ErrProtocol, werr)
					}
					continue
				}
				inbox := make(Inbox, InboxCapacity)
				s.Table.Insert(id, inbox)
				h := &flow.Handler{
					FlowID: id,
					Conn:   conn,
					Inbox:  inbox,
					Egress: s.Egress,
					Remove: s.Table.Remove,
					Done:   s.done,
					Log:    s.Log,
				}
				go logging.RecoverToLog(h.Run, s.Log)

			case wire.TagData:
				d := in.msg.Data
				inbox, ok := s.Table.Lookup(d.ID)
				if !ok {
					return fmt.Errorf("%w: Data for unopened flow_id %d", ErrProtocol, d.ID)
				}
				trySend(inbox, in.msg)

			case wire.TagCloseConnection:
				// Closing/removing the inbox signals the FlowHandler's
				// inbox-recv with "sender gone" once any data already
				// queued ahead of this close has been delivered.
				id := in.msg.CloseConnection.ID
				if !s.Table.Remove(id) {
					if s.Table.WasRecentlyClosed(id) {
						if s.Log != nil {
							s.Log.Debug("duplicate CloseConnection for flow ", id, "; already torn down")
						}
					} else if s.Log != nil {
						s.Log.Warning("CloseConnection for flow ", id, " that was never opened")
					}
				}

			case wire.TagShutdown:
				return nil

			default:
				return fmt.Errorf("%w: unexpected tag %d from rendezvous", ErrProtocol, in.msg.Tag)
			}
		}
	}
}
