package wire

import (
	"bytes"
	"io"
	"testing"
)

func strp(s string) *string { return &s }

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []ControlMessage{
		NewClientHello(strp("example.test"), strp("/")),
		NewClientHello(nil, nil),
		NewServerHello("example.test", "/"),
		NewNewConnection(1),
		NewData(1, []byte("ping")),
		NewData(7, nil),
		NewCloseConnection(1),
		NewShutdown(strp("bye")),
		NewShutdown(nil),
	}
	for i, msg := range cases {
		encoded, err := Marshal(msg)
		if err != nil {
			t.Fatalf("case %d: marshal: %v", i, err)
		}
		decoded, err := Unmarshal(encoded)
		if err != nil {
			t.Fatalf("case %d: unmarshal: %v", i, err)
		}
		if decoded.Tag != msg.Tag {
			t.Fatalf("case %d: tag mismatch: got %d want %d", i, decoded.Tag, msg.Tag)
		}
	}
}

func TestFramerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	msgs := []ControlMessage{
		NewClientHello(strp("a.test"), nil),
		NewNewConnection(1),
		NewData(1, bytes.Repeat([]byte{0x42}, 5000)),
		NewCloseConnection(1),
		NewShutdown(strp("done")),
	}
	for _, m := range msgs {
		if err := w.WriteMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(&buf)
	for i, want := range msgs {
		got, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if got.Tag != want.Tag {
			t.Fatalf("message %d: tag mismatch got %d want %d", i, got.Tag, want.Tag)
		}
	}
	if _, err := r.ReadMessage(); err != io.EOF {
		t.Fatalf("expected EOF after all messages consumed, got %v", err)
	}
}

func TestZeroLengthDataIsLegal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteMessage(NewData(3, []byte{})); err != nil {
		t.Fatal(err)
	}
	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Data == nil || len(msg.Data.Bytes) != 0 {
		t.Fatalf("expected zero-length Data payload, got %+v", msg.Data)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	oversized := NewData(1, make([]byte, MaxFrameSize+1))
	if err := w.WriteMessage(oversized); err == nil {
		t.Fatal("expected error writing frame over the size cap")
	}
}

func TestCorruptFrameIsProtocolError(t *testing.T) {
	var buf bytes.Buffer
	// length prefix claims 10 bytes of payload but only provides 2.
	buf.Write([]byte{0, 0, 0, 10, 0, 0})
	r := NewReader(&buf)
	if _, err := r.ReadMessage(); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}
