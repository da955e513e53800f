package session

import (
	"testing"

	"github.com/kryptco/kr-tunnel/internal/wire"
)

func TestFlowTableInsertLookupRemove(t *testing.T) {
	ft := NewFlowTable()
	inbox := make(Inbox, InboxCapacity)
	ft.Insert(1, inbox)

	got, ok := ft.Lookup(1)
	if !ok || got != inbox {
		t.Fatal("expected to find inserted inbox")
	}
	if ft.Len() != 1 {
		t.Fatalf("expected len 1, got %d", ft.Len())
	}

	if !ft.Remove(1) {
		t.Fatal("expected Remove to report the entry existed")
	}
	if ft.Remove(1) {
		t.Fatal("expected second Remove of the same id to be a no-op")
	}
	if ft.Len() != 0 {
		t.Fatalf("expected len 0 after remove, got %d", ft.Len())
	}
}

func TestFlowTableWasRecentlyClosed(t *testing.T) {
	ft := NewFlowTable()
	inbox := make(Inbox, InboxCapacity)
	ft.Insert(7, inbox)

	if ft.WasRecentlyClosed(7) {
		t.Fatal("flow not yet closed should not be reported as recently closed")
	}

	ft.Remove(7)

	if !ft.WasRecentlyClosed(7) {
		t.Fatal("expected removed flow id to be tracked as recently closed")
	}
	if ft.WasRecentlyClosed(8) {
		t.Fatal("unrelated flow id should not be reported as recently closed")
	}
}

func TestFlowTableRemoveAllClosesEveryInbox(t *testing.T) {
	ft := NewFlowTable()
	a := make(Inbox, InboxCapacity)
	b := make(Inbox, InboxCapacity)
	ft.Insert(1, a)
	ft.Insert(2, b)

	ft.RemoveAll()

	if ft.Len() != 0 {
		t.Fatalf("expected empty table after RemoveAll, got %d", ft.Len())
	}
	if _, ok := <-a; ok {
		t.Fatal("expected inbox a to be closed")
	}
	if _, ok := <-b; ok {
		t.Fatal("expected inbox b to be closed")
	}
}

func TestTrySendDropsOnClosedInbox(t *testing.T) {
	inbox := make(Inbox, InboxCapacity)
	close(inbox)

	if trySend(inbox, wire.NewShutdown(nil)) {
		t.Fatal("expected trySend on a closed inbox to report failure, not panic")
	}
}

func TestTrySendDeliversOnOpenInbox(t *testing.T) {
	inbox := make(Inbox, InboxCapacity)
	msg := wire.NewCloseConnection(3)

	if !trySend(inbox, msg) {
		t.Fatal("expected trySend on an open, non-full inbox to succeed")
	}
	got := <-inbox
	if got.Tag != wire.TagCloseConnection || got.CloseConnection.ID != 3 {
		t.Fatalf("unexpected message delivered: %+v", got)
	}
}
