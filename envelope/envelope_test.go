package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T, primary string, specs ...KeySpec) *Encrypter {
	t.Helper()
	ring, err := NewKeyRing(specs, primary)
	require.NoError(t, err)
	return New(ring)
}

func TestRoundTrip(t *testing.T) {
	e := newRing(t, "v1", KeySpec{ID: "v1", Secret: "first-secret"})
	for _, in := range []string{"a", "Allergic to penicillin", "ünïcødé ✓", strings.Repeat("x", 4096)} {
		out, err := e.Encrypt(in)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, Prefix+"v1:"))
		assert.NotContains(t, out, in)
		assert.Equal(t, in, e.Decrypt(out))
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	e := newRing(t, "v1", KeySpec{ID: "v1", Secret: "first-secret"})
	a, err := e.Encrypt("same")
	require.NoError(t, err)
	b, err := e.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmptyAndNilPassThrough(t *testing.T) {
	e := newRing(t, "v1", KeySpec{ID: "v1", Secret: "first-secret"})
	out, err := e.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", out)

	ptr, err := e.EncryptPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, ptr)
	assert.Nil(t, e.DecryptPtr(nil))
}

func TestDecryptPlaintextPassThrough(t *testing.T) {
	e := newRing(t, "v1", KeySpec{ID: "v1", Secret: "first-secret"})
	plain, ok := e.DecryptChecked("legacy clear text")
	assert.True(t, ok)
	assert.Equal(t, "legacy clear text", plain)
}

func TestDecryptLegacyFormatWithoutKeyID(t *testing.T) {
	e := newRing(t, "v2",
		KeySpec{ID: "v2", Secret: "second-secret"},
		KeySpec{ID: "v1", Secret: "first-secret"},
	)

	sum := sha256.Sum256([]byte("first-secret"))
	block, err := aes.NewCipher(sum[:])
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := []byte("0123456789ab")
	sealed := gcm.Seal(nil, nonce, []byte("warfarin 5mg"), nil)
	ct, tag := sealed[:len(sealed)-16], sealed[len(sealed)-16:]
	enc := base64.StdEncoding
	legacy := Prefix + enc.EncodeToString(nonce) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ct)

	plain, ok := e.DecryptChecked(legacy)
	assert.True(t, ok)
	assert.Equal(t, "warfarin 5mg", plain)
	assert.True(t, e.NeedsRewrap(legacy))
}

func TestRotationKeepsOldKeysReadable(t *testing.T) {
	old := newRing(t, "v1", KeySpec{ID: "v1", Secret: "first-secret"})
	stored, err := old.Encrypt("MRN-0042")
	require.NoError(t, err)

	rotated := newRing(t, "v2",
		KeySpec{ID: "v1", Secret: "first-secret"},
		KeySpec{ID: "v2", Secret: "second-secret"},
	)
	assert.Equal(t, "v2", rotated.Ring().PrimaryID())
	assert.Equal(t, "MRN-0042", rotated.Decrypt(stored))

	fresh, err := rotated.Encrypt("MRN-0042")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fresh, Prefix+"v2:"))

	assert.True(t, rotated.NeedsRewrap(stored))
	rewrapped, changed, err := rotated.Rewrap(stored)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, strings.HasPrefix(rewrapped, Prefix+"v2:"))
	assert.False(t, rotated.NeedsRewrap(rewrapped))
	assert.Equal(t, "MRN-0042", rotated.Decrypt(rewrapped))
}

func TestUnknownKeyIDFallsBackToEveryKey(t *testing.T) {
	writer := newRing(t, "gone", KeySpec{ID: "gone", Secret: "shared-secret"})
	stored, err := writer.Encrypt("note")
	require.NoError(t, err)

	reader := newRing(t, "renamed", KeySpec{ID: "renamed", Secret: "shared-secret"})
	assert.Equal(t, "note", reader.Decrypt(stored))
}

func TestKnownKeyIDDoesNotFallBack(t *testing.T) {
	// "v1" on the writer and "v2" on the reader share a secret, so a fallback
	// over every key would open a value that names v1.
	writer := newRing(t, "v1", KeySpec{ID: "v1", Secret: "shared-secret"})
	stored, err := writer.Encrypt("chart note")
	require.NoError(t, err)

	reader := newRing(t, "v2",
		KeySpec{ID: "v1", Secret: "replaced-secret"},
		KeySpec{ID: "v2", Secret: "shared-secret"},
	)
	out, ok := reader.DecryptChecked(stored)
	assert.False(t, ok)
	assert.Equal(t, stored, out)
}

func TestUndecryptableValueReturnedUnchanged(t *testing.T) {
	writer := newRing(t, "v1", KeySpec{ID: "v1", Secret: "first-secret"})
	stored, err := writer.Encrypt("note")
	require.NoError(t, err)

	reader := newRing(t, "v9", KeySpec{ID: "v9", Secret: "other-secret"})
	out, ok := reader.DecryptChecked(stored)
	assert.False(t, ok)
	assert.Equal(t, stored, out)

	_, changed, err := reader.Rewrap(stored)
	require.NoError(t, err)
	assert.False(t, changed)

	for _, bad := range []string{Prefix, Prefix + "a:b", Prefix + "v1:!!:!!:!!", Prefix + "1:2:3:4:5"} {
		out, ok := reader.DecryptChecked(bad)
		assert.False(t, ok, bad)
		assert.Equal(t, bad, out)
	}
}

func TestTamperedCiphertextRejected(t *testing.T) {
	e := newRing(t, "v1", KeySpec{ID: "v1", Secret: "first-secret"})
	stored, err := e.Encrypt("dose 10mg")
	require.NoError(t, err)
	parts := strings.Split(stored, ":")
	raw, err := base64.StdEncoding.DecodeString(parts[len(parts)-1])
	require.NoError(t, err)
	raw[0] ^= 0xff
	parts[len(parts)-1] = base64.StdEncoding.EncodeToString(raw)
	tampered := strings.Join(parts, ":")

	out, ok := e.DecryptChecked(tampered)
	assert.False(t, ok)
	assert.Equal(t, tampered, out)
}

func TestKeyRingConstruction(t *testing.T) {
	_, err := NewKeyRing(nil, "v1")
	assert.ErrorIs(t, err, ErrEmptyKeyRing)

	_, err = NewKeyRing([]KeySpec{{ID: "a:b", Secret: "s"}}, "")
	assert.ErrorIs(t, err, ErrInvalidKeyID)

	ring, err := NewKeyRing([]KeySpec{{ID: "k1", Secret: "one"}, {ID: "k1", Secret: "dup"}, {ID: "k2", Secret: "two"}}, "missing")
	require.NoError(t, err)
	assert.Equal(t, "k1", ring.PrimaryID())
	assert.Equal(t, []string{"k1", "k2"}, ring.IDs())
}

func TestParseKeySpecs(t *testing.T) {
	specs := ParseKeySpecs(" v1:alpha , v2:be:ta,,broken, :nokey,v3: ")
	assert.Equal(t, []KeySpec{{ID: "v1", Secret: "alpha"}, {ID: "v2", Secret: "be:ta"}}, specs)
}
