// Package secret seals the encrypted pastes. A paste is encrypted under a
// fresh key that never leaves the client; the ring only stores the sealed
// bytes.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/xerrors"
)

const (
	keySize   = 32
	nonceSize = 24

	// KeyLength is the width of a hex encoded key.
	KeyLength = 2 * keySize
)

// ErrInvalid is returned when a key or a ciphertext cannot be opened.
var ErrInvalid = xerrors.New("invalid sealed paste")

// Seal encrypts plain under a fresh random key. It returns the hex key and
// the nonce-prefixed ciphertext.
func Seal(plain []byte) (string, []byte, error) {
	var key [keySize]byte
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", nil, xerrors.Errorf("failed to draw key: %v", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", nil, xerrors.Errorf("failed to draw nonce: %v", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &key)
	return hex.EncodeToString(key[:]), sealed, nil
}

// Open decrypts what Seal produced.
func Open(hexKey string, sealed []byte) ([]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != keySize {
		return nil, xerrors.Errorf("invalid key: %w", ErrInvalid)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, xerrors.Errorf("ciphertext too short: %w", ErrInvalid)
	}

	var key [keySize]byte
	var nonce [nonceSize]byte
	copy(key[:], raw)
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &key)
	if !ok {
		return nil, xerrors.Errorf("decryption failed: %w", ErrInvalid)
	}
	return plain, nil
}
