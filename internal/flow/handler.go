// Package flow implements FlowHandler: the bridge between one TCP
// socket and the Session's egress queue/inbox for one flow_id.
package flow

import (
	"io"
	"net"
	"sync"

	"github.com/op/go-logging"

	"github.com/kryptco/kr-tunnel/internal/wire"
)

// ReadBufferSize is the socket read chunk size.
const ReadBufferSize = 8192

// Handler owns exactly one TCP socket for the lifetime of a flow.
type Handler struct {
	FlowID uint32
	Conn   net.Conn
	Inbox  <-chan wire.ControlMessage
	Egress chan<- wire.ControlMessage

	// Remove detaches this flow from the owning Session's FlowTable.
	// Called exactly once from the handler's teardown. Expected to be
	// idempotent (safe if the entry was already removed by the Session
	// loop on a peer-initiated close) — see session.FlowTable.Remove.
	Remove func(id uint32)

	// Done is closed when the owning Session ends; sends on Egress
	// select against it so a FlowHandler never blocks forever trying to
	// enqueue onto a queue nobody will ever drain again.
	Done <-chan struct{}

	Log *logging.Logger
}

// Run bridges Conn and the Session for the lifetime of the flow. It
// returns once the flow is fully torn down: socket closed, FlowTable
// entry removed, and exactly one CloseConnection enqueued onto Egress
// (or silently dropped if the Session has already ended) — implemented
// as a single deferred cleanup so it fires on every exit path,
// including a panic recovered by the caller's logging.RecoverToLog
// wrapper.
func (h *Handler) Run() {
	flowDone := make(chan struct{})
	var closeOnce sync.Once

	defer func() {
		close(flowDone)
		h.Conn.Close()
		if h.Remove != nil {
			h.Remove(h.FlowID)
		}
		closeOnce.Do(func() {
			select {
			case h.Egress <- wire.NewCloseConnection(h.FlowID):
			case <-h.Done:
				// egress queue's reader is gone; nothing to deliver to.
			}
		})
	}()

	readErrC := make(chan error, 1)
	go h.pumpSocketReads(flowDone, readErrC)

	for {
		select {
		case msg, ok := <-h.Inbox:
			if !ok {
				// Session removed/closed our inbox: peer closed this flow,
				// Session ended, or we raced our own teardown.
				return
			}
			switch msg.Tag {
			case wire.TagData:
				if msg.Data == nil {
					continue
				}
				if err := writeAll(h.Conn, msg.Data.Bytes); err != nil {
					if h.Log != nil {
						h.Log.Debug("flow ", h.FlowID, " write error: ", err)
					}
					return
				}
			case wire.TagCloseConnection, wire.TagShutdown:
				return
			default:
				if h.Log != nil {
					h.Log.Error("flow ", h.FlowID, " received unexpected variant ", msg.Tag, " on inbox")
				}
				return
			}
		case err := <-readErrC:
			if h.Log != nil && err != io.EOF {
				h.Log.Debug("flow ", h.FlowID, " read error: ", err)
			}
			return
		case <-h.Done:
			return
		}
	}
}

// pumpSocketReads is the second of FlowHandler's two event sources: it
// reads the socket into a fixed buffer and enqueues Data frames, exiting
// on EOF or I/O error. Translating "socket read" into a channel send
// lets the main loop's select arbitrate between it and inbox receipt
// without a second os-thread-blocking read inside the select itself.
func (h *Handler) pumpSocketReads(flowDone <-chan struct{}, readErrC chan<- error) {
	buf := make([]byte, ReadBufferSize)
	for {
		n, err := h.Conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case h.Egress <- wire.NewData(h.FlowID, data):
			case <-flowDone:
				return
			case <-h.Done:
				return
			}
		}
		if err != nil {
			select {
			case readErrC <- err:
			case <-flowDone:
			}
			return
		}
	}
}

// writeAll retries short writes until the full buffer is written or an
// I/O error occurs.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
