package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Prefix marks a value as envelope-encrypted.
const Prefix = "enc::"

const (
	nonceSize = 12
	tagSize   = 16
)

// Encrypter protects and recovers field values with a KeyRing.
type Encrypter struct {
	ring *KeyRing
	rand io.Reader
}

// New returns an Encrypter over ring.
func New(ring *KeyRing) *Encrypter {
	return &Encrypter{ring: ring, rand: rand.Reader}
}

// Ring returns the underlying key ring.
func (e *Encrypter) Ring() *KeyRing {
	return e.ring
}

// Encrypt seals plaintext with the primary key. Empty input is returned as is.
func (e *Encrypter) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}
	key := e.ring.primaryKey()

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return "", fmt.Errorf("envelope nonce: %w", err)
	}
	sealed := key.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	enc := base64.StdEncoding
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString(key.id)
	b.WriteByte(':')
	b.WriteString(enc.EncodeToString(nonce))
	b.WriteByte(':')
	b.WriteString(enc.EncodeToString(tag))
	b.WriteByte(':')
	b.WriteString(enc.EncodeToString(ct))
	return b.String(), nil
}

// EncryptPtr is Encrypt for nullable columns; nil stays nil.
func (e *Encrypter) EncryptPtr(plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	out, err := e.Encrypt(*plaintext)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Decrypt returns the plaintext for value, or value unchanged when it is not
// envelope-encrypted or cannot be opened with any key.
func (e *Encrypter) Decrypt(value string) string {
	out, _ := e.DecryptChecked(value)
	return out
}

// DecryptPtr is Decrypt for nullable columns.
func (e *Encrypter) DecryptPtr(value *string) *string {
	if value == nil {
		return nil
	}
	out := e.Decrypt(*value)
	return &out
}

// DecryptChecked is Decrypt that also reports whether an encrypted value
// failed to open. ok is true for plaintext passthrough.
func (e *Encrypter) DecryptChecked(value string) (string, bool) {
	if !strings.HasPrefix(value, Prefix) {
		return value, true
	}
	p, ok := parse(value)
	if !ok {
		return value, false
	}

	// A known key id is authoritative: if that key cannot open the value,
	// no other key is tried.
	if p.keyID != "" {
		if key, found := e.ring.lookup(p.keyID); found {
			plain, err := open(key, p)
			if err != nil {
				return value, false
			}
			return plain, true
		}
	}
	if plain, ok := e.decryptAny(p); ok {
		return plain, true
	}
	return value, false
}

// decryptAny is the bounded fallback for legacy values and unknown key ids.
func (e *Encrypter) decryptAny(p payload) (string, bool) {
	for _, key := range e.ring.keys {
		if plain, err := open(key, p); err == nil {
			return plain, true
		}
	}
	return "", false
}

// NeedsRewrap reports whether value is encrypted under a non-primary key or
// in the legacy format.
func (e *Encrypter) NeedsRewrap(value string) bool {
	if !strings.HasPrefix(value, Prefix) {
		return false
	}
	p, ok := parse(value)
	if !ok {
		return false
	}
	return p.keyID != e.ring.PrimaryID()
}

// Rewrap re-encrypts value under the primary key. Values that are already
// current, plaintext, or undecryptable are returned unchanged with changed=false.
func (e *Encrypter) Rewrap(value string) (string, bool, error) {
	if !e.NeedsRewrap(value) {
		return value, false, nil
	}
	plain, ok := e.DecryptChecked(value)
	if !ok {
		return value, false, nil
	}
	out, err := e.Encrypt(plain)
	if err != nil {
		return value, false, err
	}
	return out, true, nil
}

type payload struct {
	keyID string
	nonce []byte
	tag   []byte
	data  []byte
}

func parse(value string) (payload, bool) {
	parts := strings.Split(strings.TrimPrefix(value, Prefix), ":")

	var p payload
	offset := 0
	switch len(parts) {
	case 4:
		p.keyID = parts[0]
		offset = 1
	case 3:
	default:
		return payload{}, false
	}

	enc := base64.StdEncoding
	var err error
	if p.nonce, err = enc.DecodeString(parts[offset]); err != nil || len(p.nonce) != nonceSize {
		return payload{}, false
	}
	if p.tag, err = enc.DecodeString(parts[offset+1]); err != nil || len(p.tag) != tagSize {
		return payload{}, false
	}
	if p.data, err = enc.DecodeString(parts[offset+2]); err != nil {
		return payload{}, false
	}
	return p, true
}

func open(key ringKey, p payload) (string, error) {
	sealed := make([]byte, 0, len(p.data)+len(p.tag))
	sealed = append(sealed, p.data...)
	sealed = append(sealed, p.tag...)
	plain, err := key.aead.Open(nil, p.nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
