// Package token seals grading sessions into opaque strings that only the
// issuing server can read.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrUndecipherable is returned for tokens that were not sealed with this key.
var ErrUndecipherable = errors.New("cannot decipher session")

// KeySize is the length of a sealing key in bytes.
const KeySize = chacha20poly1305.KeySize

// Session is the state carried inside a token.
type Session struct {
	ID       string          `json:"id"`
	Owner    string          `json:"owner"`
	Results  map[string]bool `json:"results"` // "lab/exercise" -> last outcome
	IssuedAt time.Time       `json:"issued_at"`
}

// Key returns the results map key for an exercise.
func Key(labID, exID string) string {
	return labID + "/" + exID
}

// Sealer encrypts and authenticates sessions with XChaCha20-Poly1305.
type Sealer struct {
	key []byte
}

// NewSealer creates a sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// NewSealerHex creates a sealer from a hex key. An empty key generates a random one.
func NewSealerHex(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		key := make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		return NewSealer(key)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode session key: %w", err)
	}
	return NewSealer(key)
}

// Seal returns the token for s.
func (sl *Sealer) Seal(s Session) (string, error) {
	aead, err := chacha20poly1305.NewX(sl.key)
	if err != nil {
		return "", err
	}
	plain, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token. Any malformed or foreign token yields ErrUndecipherable.
func (sl *Sealer) Open(tok string) (Session, error) {
	var s Session
	aead, err := chacha20poly1305.NewX(sl.key)
	if err != nil {
		return s, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) < aead.NonceSize()+aead.Overhead() {
		return s, ErrUndecipherable
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return s, ErrUndecipherable
	}
	if err := json.Unmarshal(plain, &s); err != nil {
		return s, ErrUndecipherable
	}
	if s.Results == nil {
		s.Results = map[string]bool{}
	}
	return s, nil
}
