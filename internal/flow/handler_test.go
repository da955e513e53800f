package flow

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/kryptco/kr-tunnel/internal/wire"
)

func newTestHandler(t *testing.T, id uint32) (*Handler, net.Conn, chan wire.ControlMessage, chan wire.ControlMessage, chan struct{}) {
	t.Helper()
	flowSide, testSide := net.Pipe()
	inbox := make(chan wire.ControlMessage, 32)
	egress := make(chan wire.ControlMessage, 32)
	done := make(chan struct{})
	removed := make(chan uint32, 1)

	h := &Handler{
		FlowID: id,
		Conn:   flowSide,
		Inbox:  inbox,
		Egress: egress,
		Remove: func(gotID uint32) {
			select {
			case removed <- gotID:
			default:
			}
		},
		Done: done,
	}
	_ = removed
	return h, testSide, inbox, egress, done
}

func TestHandlerEchoesSocketReadsAsDataFrames(t *testing.T) {
	h, testSide, _, egress, _ := newTestHandler(t, 5)
	go h.Run()

	go func() {
		testSide.Write([]byte("hello"))
	}()

	select {
	case msg := <-egress:
		if msg.Tag != wire.TagData || msg.Data.ID != 5 || !bytes.Equal(msg.Data.Bytes, []byte("hello")) {
			t.Fatalf("unexpected egress message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Data frame")
	}
	testSide.Close()
}

func TestHandlerWritesInboxDataToSocket(t *testing.T) {
	h, testSide, inbox, _, _ := newTestHandler(t, 9)
	go h.Run()

	inbox <- wire.NewData(9, []byte("pong"))

	buf := make([]byte, 4)
	testSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := testSide.Read(buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "pong" {
		t.Fatalf("expected pong, got %q", buf)
	}
	testSide.Close()
}

func TestHandlerEmitsCloseOnEOF(t *testing.T) {
	h, testSide, _, egress, _ := newTestHandler(t, 2)
	go h.Run()

	testSide.Close()

	select {
	case msg := <-egress:
		if msg.Tag != wire.TagCloseConnection || msg.CloseConnection.ID != 2 {
			t.Fatalf("expected CloseConnection{2}, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for CloseConnection on EOF")
	}
}

func TestHandlerEmitsExactlyOneCloseWhenPeerClosesFirst(t *testing.T) {
	h, testSide, inbox, egress, _ := newTestHandler(t, 3)
	go h.Run()

	close(inbox) // simulate the Session removing our FlowTable entry after a peer CloseConnection

	select {
	case msg := <-egress:
		if msg.Tag != wire.TagCloseConnection || msg.CloseConnection.ID != 3 {
			t.Fatalf("expected CloseConnection{3}, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for CloseConnection after inbox closed")
	}

	select {
	case extra := <-egress:
		t.Fatalf("expected exactly one CloseConnection, got extra message %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	testSide.Close()
}

func TestHandlerDropsCloseWhenSessionDone(t *testing.T) {
	h, testSide, _, egress, done := newTestHandler(t, 4)
	_ = egress
	close(done)
	testSide.Close()

	finished := make(chan struct{})
	go func() {
		h.Run()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Session done")
	}
}
