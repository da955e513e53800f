package cipherstream

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

func randKeyNonce(t *testing.T) (key, nonce []byte) {
	t.Helper()
	key = make([]byte, KeySize)
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(nonce); err != nil {
		t.Fatal(err)
	}
	return
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, nonce := randKeyNonce(t)

	plaintext := make([]byte, 10000)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatal(err)
	}

	var wire bytes.Buffer
	enc, err := NewEncryptor(&wire, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write(plaintext); err != nil {
		t.Fatal(err)
	}

	dec, err := NewDecryptor(&wire, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(plaintext))
	if _, err := io.ReadFull(dec, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("decrypted plaintext does not match original")
	}
}

func TestEncryptDecryptManySmallWrites(t *testing.T) {
	key, nonce := randKeyNonce(t)

	var wire bytes.Buffer
	enc, err := NewEncryptor(&wire, key, nonce)
	if err != nil {
		t.Fatal(err)
	}

	var plaintext []byte
	for i := 0; i < 500; i++ {
		chunk := []byte{byte(i), byte(i >> 8), byte(i ^ 0xAA)}
		plaintext = append(plaintext, chunk...)
		if _, err := enc.Write(chunk); err != nil {
			t.Fatal(err)
		}
	}

	dec, err := NewDecryptor(&wire, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(plaintext))
	if _, err := io.ReadFull(dec, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("decrypted plaintext does not match when written in many small chunks")
	}
}

func TestKeyNonceMismatchProducesGarbage(t *testing.T) {
	key, nonce := randKeyNonce(t)
	otherKey, _ := randKeyNonce(t)

	var wire bytes.Buffer
	enc, err := NewEncryptor(&wire, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("mismatched key must not decrypt to the same plaintext")
	if _, err := enc.Write(plaintext); err != nil {
		t.Fatal(err)
	}

	dec, err := NewDecryptor(&wire, otherKey, nonce)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(plaintext))
	if _, err := io.ReadFull(dec, got); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(got, plaintext) {
		t.Fatal("decrypting with the wrong key should not reproduce the original plaintext")
	}
}

func TestBadKeyNonceLengthsRejected(t *testing.T) {
	if _, err := NewEncryptor(&bytes.Buffer{}, make([]byte, 10), make([]byte, NonceSize)); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := NewEncryptor(&bytes.Buffer{}, make([]byte, KeySize), make([]byte, 3)); err == nil {
		t.Fatal("expected error for short nonce")
	}
}
