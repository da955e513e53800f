package session

import (
	"fmt"
	"net"

	"github.com/kryptco/kr-tunnel/internal/flow"
	"github.com/kryptco/kr-tunnel/internal/logging"
	"github.com/kryptco/kr-tunnel/internal/wire"
)

// RendezvousHooks lets the rendezvous's caller observe flow lifecycle
// without the Session loop depending on the notifier package directly.
type RendezvousHooks struct {
	// OnFlowOpened is called synchronously from the Session loop right
	// after a flow_id is assigned, before the FlowHandler is spawned.
	OnFlowOpened func(id uint32)
}

// RunRendezvous runs the rendezvous side of the Session loop: it
// accepts external TCP connections on listener, assigns each a flow_id
// starting at 1, and arbitrates between that accept source, the egress
// queue, and inbound control frames from the agent. It returns when the
// Session ends — cleanly on a peer Shutdown, or with an error for any
// protocol/I/O fault.
func RunRendezvous(s *Session, listener net.Listener, hooks RendezvousHooks) error {
	s.startInboundPump()
	defer s.end()
	defer listener.Close()

	var nextFlowID uint32 = 1

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptC := make(chan acceptResult)
	go func() {
		for {
			conn, err := listener.Accept()
			select {
			case acceptC <- acceptResult{conn: conn, err: err}:
			case <-s.done:
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case res := <-acceptC:
			if res.err != nil {
				return fmt.Errorf("%w: accept: %v", ErrProtocol, res.err)
			}
			id := nextFlowID
			nextFlowID++

			inbox := make(Inbox, InboxCapacity)
			s.Table.Insert(id, inbox)
			if hooks.OnFlowOpened != nil {
				hooks.OnFlowOpened(id)
			}
			if err := s.writeEgress(wire.NewNewConnection(id)); err != nil {
				return fmt.Errorf("%w: writing NewConnection: %v", ErrProtocol, err)
			}

			h := &flow.Handler{
				FlowID: id,
				Conn:   res.conn,
				Inbox:  inbox,
				Egress: s.Egress,
				Remove: s.Table.Remove,
				Done:   s.done,
				Log:    s.Log,
			}
			go logging.RecoverToLog(h.Run, s.Log)

		case msg := <-s.Egress:
			if err := s.writeEgress(msg); err != nil {
				return fmt.Errorf("%w: writing egress message: %v", ErrProtocol, err)
			}

		case in := <-s.inboundC:
			if in.err != nil {
				return classifyReadErr(in.err)
			}
			switch in.msg.Tag {
			case wire.TagData:
				d := in.msg.Data
				inbox, ok := s.Table.Lookup(d.ID)
				if !ok {
					return fmt.Errorf("%w: Data for unknown flow_id %d", ErrProtocol, d.ID)
				}
				trySend(inbox, in.msg)
			case wire.TagCloseConnection:
				id := in.msg.CloseConnection.ID
				if !s.Table.Remove(id) {
					if s.Table.WasRecentlyClosed(id) {
						if s.Log != nil {
							s.Log.Debug("duplicate CloseConnection for flow ", id, "; already torn down")
						}
					} else {
						return fmt.Errorf("%w: CloseConnection for unknown flow_id %d", ErrProtocol, id)
					}
				}
			case wire.TagShutdown:
				return nil
			default:
				return fmt.Errorf("%w: unexpected tag %d from agent", ErrProtocol, in.msg.Tag)
			}
		}
	}
}
