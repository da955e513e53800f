// Package config loads the symmetric key/nonce material shared by the
// three executables.
package config

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/kryptco/kr-tunnel/internal/cipherstream"
)

// ErrConfig-style sentinel errors would need a dynamic message per
// missing env var, so this package returns wrapped fmt.Errorf values
// instead of a single sentinel, favoring a descriptive error over a
// generic one.

const (
	EnvKey   = "ENCRYPT_KEY"
	EnvNonce = "ENCRYPT_NONCE"
)

// KeyNonce holds the decoded symmetric key and nonce used to construct
// every Session's CipherStream.
type KeyNonce struct {
	Key   []byte
	Nonce []byte
}

// LoadKeyNonce reads and base64-decodes ENCRYPT_KEY/ENCRYPT_NONCE from
// the environment. A missing variable or decoded material shorter than
// required is a fatal error at startup.
func LoadKeyNonce() (KeyNonce, error) {
	keyB64 := os.Getenv(EnvKey)
	if keyB64 == "" {
		return KeyNonce{}, fmt.Errorf("config: %s is not set", EnvKey)
	}
	nonceB64 := os.Getenv(EnvNonce)
	if nonceB64 == "" {
		return KeyNonce{}, fmt.Errorf("config: %s is not set", EnvNonce)
	}

	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return KeyNonce{}, fmt.Errorf("config: %s is not valid base64: %w", EnvKey, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return KeyNonce{}, fmt.Errorf("config: %s is not valid base64: %w", EnvNonce, err)
	}

	if len(key) < cipherstream.KeySize {
		return KeyNonce{}, fmt.Errorf("config: %s decodes to %d bytes, need at least %d", EnvKey, len(key), cipherstream.KeySize)
	}
	if len(nonce) < cipherstream.NonceSize {
		return KeyNonce{}, fmt.Errorf("config: %s decodes to %d bytes, need at least %d", EnvNonce, len(nonce), cipherstream.NonceSize)
	}

	return KeyNonce{
		Key:   key[:cipherstream.KeySize],
		Nonce: nonce[:cipherstream.NonceSize],
	}, nil
}
