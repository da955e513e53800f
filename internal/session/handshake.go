package session

import (
	"fmt"

	"github.com/kryptco/kr-tunnel/internal/wire"
)

// Identity is the negotiated (domain, path) naming a tunnel, per spec
// §4.3.
type Identity struct {
	Domain string
	Path   string
}

// ServerHandshake reads the mandatory first frame from the agent and
// validates it is a ClientHello, normalizing an absent path to "". Any
// other first frame is a handshake error and the caller must close the
// Session without retrying.
func ServerHandshake(codec *wire.Codec) (Identity, error) {
	msg, err := codec.ReadMessage()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: reading ClientHello: %v", ErrHandshake, err)
	}
	if msg.Tag != wire.TagClientHello || msg.ClientHello == nil {
		return Identity{}, fmt.Errorf("%w: first frame was tag %d, not ClientHello", ErrHandshake, msg.Tag)
	}

	var id Identity
	if msg.ClientHello.Domain != nil {
		id.Domain = *msg.ClientHello.Domain
	}
	if msg.ClientHello.Path != nil {
		id.Path = *msg.ClientHello.Path
	}
	return id, nil
}

// ServerReplyHello sends the ServerHello confirming the negotiated
// identity.
func ServerReplyHello(codec *wire.Codec, id Identity) error {
	return codec.WriteMessage(wire.NewServerHello(id.Domain, id.Path))
}

// ClientHandshake sends the ClientHello naming domain/path and then
// blocks for the ServerHello reply. Any other reply is a handshake
// error.
func ClientHandshake(codec *wire.Codec, domain, path string) (Identity, error) {
	var domainPtr, pathPtr *string
	if domain != "" {
		domainPtr = &domain
	}
	if path != "" {
		pathPtr = &path
	}
	if err := codec.WriteMessage(wire.NewClientHello(domainPtr, pathPtr)); err != nil {
		return Identity{}, fmt.Errorf("%w: sending ClientHello: %v", ErrHandshake, err)
	}

	msg, err := codec.ReadMessage()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: reading ServerHello: %v", ErrHandshake, err)
	}
	if msg.Tag != wire.TagServerHello || msg.ServerHello == nil {
		return Identity{}, fmt.Errorf("%w: reply was tag %d, not ServerHello", ErrHandshake, msg.Tag)
	}
	return Identity{Domain: msg.ServerHello.Domain, Path: msg.ServerHello.Path}, nil
}
