package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// DefaultPrimaryID is used when no primary key id is configured.
const DefaultPrimaryID = "v1"

var (
	ErrEmptyKeyRing = errors.New("envelope key ring is empty")
	ErrInvalidKeyID = errors.New("envelope key id must not contain ':'")
)

// KeySpec is one configured key: an identifier and the secret it is derived from.
type KeySpec struct {
	ID     string
	Secret string
}

type ringKey struct {
	id   string
	aead cipher.AEAD
}

// KeyRing is an ordered set of keys plus the primary used for new writes.
type KeyRing struct {
	keys    []ringKey
	byID    map[string]int
	primary int
}

// NewKeyRing derives one AES-256 key per spec (SHA-256 of the secret). The
// first spec wins on duplicate ids. If primaryID is not in the ring, the first
// configured key becomes primary.
func NewKeyRing(specs []KeySpec, primaryID string) (*KeyRing, error) {
	r := &KeyRing{byID: make(map[string]int, len(specs))}
	for _, spec := range specs {
		id := strings.TrimSpace(spec.ID)
		secret := strings.TrimSpace(spec.Secret)
		if id == "" || secret == "" {
			continue
		}
		if strings.Contains(id, ":") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKeyID, id)
		}
		if _, dup := r.byID[id]; dup {
			continue
		}
		aead, err := deriveAEAD(secret)
		if err != nil {
			return nil, err
		}
		r.byID[id] = len(r.keys)
		r.keys = append(r.keys, ringKey{id: id, aead: aead})
	}
	if len(r.keys) == 0 {
		return nil, ErrEmptyKeyRing
	}

	if primaryID == "" {
		primaryID = DefaultPrimaryID
	}
	if idx, ok := r.byID[primaryID]; ok {
		r.primary = idx
	}
	return r, nil
}

// ParseKeySpecs parses "id:secret,id2:secret2". Secrets may contain ':'.
// Entries missing either part are skipped.
func ParseKeySpecs(input string) []KeySpec {
	var out []KeySpec
	for _, pair := range strings.Split(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, secret, ok := strings.Cut(pair, ":")
		id, secret = strings.TrimSpace(id), strings.TrimSpace(secret)
		if !ok || id == "" || secret == "" {
			continue
		}
		out = append(out, KeySpec{ID: id, Secret: secret})
	}
	return out
}

// PrimaryID returns the id new values are encrypted under.
func (r *KeyRing) PrimaryID() string {
	return r.keys[r.primary].id
}

// IDs returns key ids in configuration order.
func (r *KeyRing) IDs() []string {
	ids := make([]string, len(r.keys))
	for i, k := range r.keys {
		ids[i] = k.id
	}
	return ids
}

func (r *KeyRing) primaryKey() ringKey {
	return r.keys[r.primary]
}

func (r *KeyRing) lookup(id string) (ringKey, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return ringKey{}, false
	}
	return r.keys[idx], true
}

func deriveAEAD(secret string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
