package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize caps the length prefix accepted by Reader; a frame
// claiming a larger payload is a protocol error.
const MaxFrameSize = 8 << 20 // 8 MiB

// Writer serializes ControlMessages as length-framed binary payloads
// onto an underlying io.Writer (normally a cipherstream.Encryptor). It is
// the Sink<ControlMessage> half of the MessageCodec. Callers must
// serialize their own access; Writer has no internal locking, matching
// the Session loop's single-writer invariant.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage marshals msg and writes it as one length-prefixed frame.
func (f *Writer) WriteMessage(msg ControlMessage) error {
	payload, err := Marshal(msg)
	if err != nil {
		return fmt.Errorf("wire: marshal: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("wire: outgoing frame of %d bytes exceeds cap of %d", len(payload), MaxFrameSize)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	if _, err := f.w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := f.w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// Reader deserializes length-framed ControlMessages from an underlying
// io.Reader (normally a cipherstream.Decryptor). It is the
// Stream<ControlMessage> half of the MessageCodec.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadMessage blocks for one full frame and returns its decoded
// ControlMessage. Any I/O or deserialization failure terminates the
// Session with a protocol error; io.EOF is returned verbatim so callers
// can distinguish a clean peer disconnect (PeerClosed) from a corrupt
// frame (ProtocolError).
func (f *Reader) ReadMessage() (ControlMessage, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(f.r, lenPrefix[:]); err != nil {
		return ControlMessage{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameSize {
		return ControlMessage{}, fmt.Errorf("wire: incoming frame of %d bytes exceeds cap of %d", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return ControlMessage{}, fmt.Errorf("wire: read frame payload: %w", err)
	}
	msg, err := Unmarshal(payload)
	if err != nil {
		return ControlMessage{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	return msg, nil
}

// Codec is the full-duplex pair used by a Session: write outgoing
// ControlMessages and read incoming ones over the same underlying
// CipherStream.
type Codec struct {
	*Writer
	*Reader
}

func NewCodec(w io.Writer, r io.Reader) *Codec {
	return &Codec{Writer: NewWriter(w), Reader: NewReader(r)}
}
