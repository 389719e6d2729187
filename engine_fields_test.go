package clinicauth

import (
	"strings"
	"testing"

	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withKeys(primary string, specs ...envelope.KeySpec) engineOption {
	return withConfig(func(cfg *Config) {
		cfg.Encryption.Keys = specs
		cfg.Encryption.PrimaryKeyID = primary
	})
}

func TestFieldEncryptionRoundTrip(t *testing.T) {
	te := newTestEngine(t, nil, withKeys("v1", envelope.KeySpec{ID: "v1", Secret: "field-secret-1"}))

	enc, err := te.EncryptField("Amoxicillin 500mg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "enc::v1:"))
	assert.Equal(t, "Amoxicillin 500mg", te.DecryptField(enc))

	empty, err := te.EncryptField("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	nilOut, err := te.EncryptFieldPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, nilOut)
	assert.Nil(t, te.DecryptFieldPtr(nil))

	assert.Equal(t, "plain text", te.DecryptField("plain text"))
}

func TestFieldDecryptionAfterKeyRotation(t *testing.T) {
	old := newTestEngine(t, nil, withKeys("v1", envelope.KeySpec{ID: "v1", Secret: "s1"}))
	enc, err := old.EncryptField("allergy: penicillin")
	require.NoError(t, err)

	rotated := newTestEngine(t, nil, withKeys("v2",
		envelope.KeySpec{ID: "v1", Secret: "s1"},
		envelope.KeySpec{ID: "v2", Secret: "s2"},
	))
	assert.Equal(t, "allergy: penicillin", rotated.DecryptField(enc))

	fresh, err := rotated.EncryptField("x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fresh, "enc::v2:"))
}

func TestFieldDecryptionFallbackIsCounted(t *testing.T) {
	writer := newTestEngine(t, nil, withKeys("v1", envelope.KeySpec{ID: "v1", Secret: "s1"}))
	enc, err := writer.EncryptField("secret note")
	require.NoError(t, err)

	reader := newTestEngine(t, nil,
		withKeys("v9", envelope.KeySpec{ID: "v9", Secret: "other"}),
		withConfig(func(cfg *Config) { cfg.Metrics.Enabled = true }),
	)
	assert.Equal(t, enc, reader.DecryptField(enc))
	assert.EqualValues(t, 1, reader.MetricsSnapshot().Counters[MetricDecryptFallback])
}

func TestFieldEncryptionWithoutKeysPassesThrough(t *testing.T) {
	te := newTestEngine(t, nil)

	out, err := te.EncryptField("value")
	require.NoError(t, err)
	assert.Equal(t, "value", out)
	assert.Equal(t, "enc::v1:a:b:c", te.DecryptField("enc::v1:a:b:c"))
}
