// Package wire implements the framed, encrypted control protocol: a
// 4-byte big-endian length prefix (LengthFramer) delimiting the compact
// binary serialization of a tagged ControlMessage union (MessageCodec).
//
// Wire-format note: ClientHello is {domain: Option<string>,
// path: Option<string>} with no auth_token field.
package wire

// Tag identifies which ControlMessage variant follows on the wire.
type Tag byte

const (
	TagClientHello Tag = iota
	TagServerHello
	TagNewConnection
	TagData
	TagCloseConnection
	TagShutdown
)

// ControlMessage is the tagged union of every message exchanged over the
// control channel. Exactly one of the Xxx fields is non-nil, selected by
// Tag.
type ControlMessage struct {
	Tag Tag

	ClientHello     *ClientHello
	ServerHello     *ServerHello
	NewConnection   *NewConnection
	Data            *Data
	CloseConnection *CloseConnection
	Shutdown        *Shutdown
}

// ClientHello is the first frame the agent sends, naming the logical
// (domain, path) it wants the rendezvous to announce.
type ClientHello struct {
	Domain *string
	Path   *string
}

// ServerHello is the rendezvous's reply confirming the negotiated
// (domain, path).
type ServerHello struct {
	Domain string
	Path   string
}

// NewConnection announces a freshly accepted flow.
type NewConnection struct {
	ID uint32
}

// Data carries a chunk of one flow's byte stream. A zero-length Bytes is
// legal and must be treated as a no-op write by the receiving
// FlowHandler.
type Data struct {
	ID    uint32
	Bytes []byte
}

// CloseConnection terminates one flow. Exactly one is emitted per flow
// per side over its lifetime.
type CloseConnection struct {
	ID uint32
}

// Shutdown ends the Session cleanly.
type Shutdown struct {
	Message *string
}

func NewClientHello(domain, path *string) ControlMessage {
	return ControlMessage{Tag: TagClientHello, ClientHello: &ClientHello{Domain: domain, Path: path}}
}

func NewServerHello(domain, path string) ControlMessage {
	return ControlMessage{Tag: TagServerHello, ServerHello: &ServerHello{Domain: domain, Path: path}}
}

func NewNewConnection(id uint32) ControlMessage {
	return ControlMessage{Tag: TagNewConnection, NewConnection: &NewConnection{ID: id}}
}

func NewData(id uint32, data []byte) ControlMessage {
	return ControlMessage{Tag: TagData, Data: &Data{ID: id, Bytes: data}}
}

func NewCloseConnection(id uint32) ControlMessage {
	return ControlMessage{Tag: TagCloseConnection, CloseConnection: &CloseConnection{ID: id}}
}

func NewShutdown(message *string) ControlMessage {
	return ControlMessage{Tag: TagShutdown, Shutdown: &Shutdown{Message: message}}
}
