package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Marshal serializes msg into the compact binary encoding used on the
// control channel: a one-byte tag discriminator followed by the fields
// of that variant in declaration order. Strings and byte sequences are
// prefixed by their length as a little-endian u64; optional fields are a
// one-byte present/absent discriminator followed by the value when
// present.
func Marshal(msg ControlMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Tag))

	switch msg.Tag {
	case TagClientHello:
		if msg.ClientHello == nil {
			return nil, fmt.Errorf("wire: ClientHello tag with nil payload")
		}
		writeOptionalString(&buf, msg.ClientHello.Domain)
		writeOptionalString(&buf, msg.ClientHello.Path)
	case TagServerHello:
		if msg.ServerHello == nil {
			return nil, fmt.Errorf("wire: ServerHello tag with nil payload")
		}
		writeString(&buf, msg.ServerHello.Domain)
		writeString(&buf, msg.ServerHello.Path)
	case TagNewConnection:
		if msg.NewConnection == nil {
			return nil, fmt.Errorf("wire: NewConnection tag with nil payload")
		}
		writeU32(&buf, msg.NewConnection.ID)
	case TagData:
		if msg.Data == nil {
			return nil, fmt.Errorf("wire: Data tag with nil payload")
		}
		writeU32(&buf, msg.Data.ID)
		writeBytes(&buf, msg.Data.Bytes)
	case TagCloseConnection:
		if msg.CloseConnection == nil {
			return nil, fmt.Errorf("wire: CloseConnection tag with nil payload")
		}
		writeU32(&buf, msg.CloseConnection.ID)
	case TagShutdown:
		if msg.Shutdown == nil {
			return nil, fmt.Errorf("wire: Shutdown tag with nil payload")
		}
		writeOptionalString(&buf, msg.Shutdown.Message)
	default:
		return nil, fmt.Errorf("wire: unknown tag %d", msg.Tag)
	}
	return buf.Bytes(), nil
}

// Unmarshal deserializes a ControlMessage from b. A malformed payload
// (truncated, out-of-range tag, corrupt length prefix) is a protocol
// error and the caller must terminate the Session.
func Unmarshal(b []byte) (ControlMessage, error) {
	r := bytes.NewReader(b)
	tagByte, err := r.ReadByte()
	if err != nil {
		return ControlMessage{}, fmt.Errorf("wire: empty frame: %w", err)
	}
	tag := Tag(tagByte)

	var msg ControlMessage
	msg.Tag = tag

	switch tag {
	case TagClientHello:
		domain, err := readOptionalString(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: ClientHello.domain: %w", err)
		}
		path, err := readOptionalString(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: ClientHello.path: %w", err)
		}
		msg.ClientHello = &ClientHello{Domain: domain, Path: path}
	case TagServerHello:
		domain, err := readString(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: ServerHello.domain: %w", err)
		}
		path, err := readString(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: ServerHello.path: %w", err)
		}
		msg.ServerHello = &ServerHello{Domain: domain, Path: path}
	case TagNewConnection:
		id, err := readU32(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: NewConnection.id: %w", err)
		}
		msg.NewConnection = &NewConnection{ID: id}
	case TagData:
		id, err := readU32(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: Data.id: %w", err)
		}
		data, err := readBytes(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: Data.data: %w", err)
		}
		msg.Data = &Data{ID: id, Bytes: data}
	case TagCloseConnection:
		id, err := readU32(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: CloseConnection.id: %w", err)
		}
		msg.CloseConnection = &CloseConnection{ID: id}
	case TagShutdown:
		message, err := readOptionalString(r)
		if err != nil {
			return ControlMessage{}, fmt.Errorf("wire: Shutdown.message: %w", err)
		}
		msg.Shutdown = &Shutdown{Message: message}
	default:
		return ControlMessage{}, fmt.Errorf("wire: unknown tag %d", tagByte)
	}
	return msg, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeBytes(buf *bytes.Buffer, v []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(v)))
	buf.Write(lenBuf[:])
	buf.Write(v)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("length prefix %d exceeds remaining frame size %d", n, r.Len())
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeString(buf *bytes.Buffer, v string) {
	writeBytes(buf, []byte(v))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const (
	optionAbsent byte = 0
	optionPresent byte = 1
)

func writeOptionalString(buf *bytes.Buffer, v *string) {
	if v == nil {
		buf.WriteByte(optionAbsent)
		return
	}
	buf.WriteByte(optionPresent)
	writeString(buf, *v)
}

func readOptionalString(r *bytes.Reader) (*string, error) {
	discriminator, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch discriminator {
	case optionAbsent:
		return nil, nil
	case optionPresent:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("invalid optional discriminator byte %d", discriminator)
	}
}
