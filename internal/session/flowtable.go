package session

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/kryptco/kr-tunnel/internal/wire"
)

// Inbox is the bounded, per-flow channel a FlowHandler receives
// ControlMessages from.
type Inbox = chan wire.ControlMessage

const InboxCapacity = 32

// closedFlowCacheSize bounds the recently-closed flow_id dedupe cache,
// sized well above any realistic number of flows closing within one
// round trip.
const closedFlowCacheSize = 1024

// FlowTable is the per-Session mapping from flow_id to the inbox of its
// FlowHandler. The lock is held only for the O(1) map operation itself
// — never across a channel send/receive or other suspension point.
type FlowTable struct {
	mu      sync.Mutex
	entries map[uint32]Inbox
	closed  *lru.Cache
}

func NewFlowTable() *FlowTable {
	closed, err := lru.New(closedFlowCacheSize)
	if err != nil {
		// Only non-nil for a non-positive size, which closedFlowCacheSize
		// never is.
		panic(err)
	}
	return &FlowTable{entries: make(map[uint32]Inbox), closed: closed}
}

// Insert registers a newly created flow's inbox.
func (t *FlowTable) Insert(id uint32, inbox Inbox) {
	t.mu.Lock()
	t.entries[id] = inbox
	t.mu.Unlock()
}

// Lookup returns the inbox for id, if the flow is still live.
func (t *FlowTable) Lookup(id uint32) (Inbox, bool) {
	t.mu.Lock()
	inbox, ok := t.entries[id]
	t.mu.Unlock()
	return inbox, ok
}

// Remove deletes and closes the inbox for id, if present. Closing the
// inbox is what signals "sender gone" to the owning FlowHandler's
// inbox-recv, cascading its termination. Safe to call more than once
// for the same id — later calls are a no-op, which is how both a
// FlowHandler's own teardown and a peer-initiated close can race
// without double-closing a channel. A successful removal is recorded
// in the recently-closed cache so a later, racing CloseConnection for
// the same id can be told apart from one naming an id that never
// existed.
func (t *FlowTable) Remove(id uint32) bool {
	t.mu.Lock()
	inbox, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok {
		close(inbox)
		t.closed.Add(id, struct{}{})
	}
	return ok
}

// WasRecentlyClosed reports whether id was closed recently enough to
// still be tracked in the dedupe cache. Callers use this to distinguish
// a duplicate or late CloseConnection for an id that has already been
// torn down (tolerated, logged at debug level) from one naming a
// flow_id that was never opened (a protocol violation).
func (t *FlowTable) WasRecentlyClosed(id uint32) bool {
	return t.closed.Contains(id)
}

// trySend delivers msg to inbox, reporting false instead of panicking if
// inbox was concurrently closed by a FlowHandler's own teardown racing
// this send (Lookup happens-before Remove is not guaranteed once the
// table lock is released between them). A closed-channel send is the
// only panic this can raise here, so recovering it turns "inbox closed"
// into an ordinary drop instead of crashing the Session loop.
func trySend(inbox Inbox, msg wire.ControlMessage) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	inbox <- msg
	return true
}

// Len reports the number of live flows.
func (t *FlowTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// RemoveAll empties the table, closing every remaining inbox. Called
// once when the Session ends, cascading termination to every live
// FlowHandler.
func (t *FlowTable) RemoveAll() {
	t.mu.Lock()
	inboxes := make([]Inbox, 0, len(t.entries))
	for id, inbox := range t.entries {
		inboxes = append(inboxes, inbox)
		delete(t.entries, id)
	}
	t.mu.Unlock()
	for _, inbox := range inboxes {
		close(inbox)
	}
}
