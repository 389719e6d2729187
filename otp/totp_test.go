package otp

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b32(raw string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(raw))
}

func mustManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func TestRFC6238VectorsAllAlgorithms(t *testing.T) {
	cases := []struct {
		alg    string
		secret string
		codes  map[int64]string
	}{
		{"SHA1", "12345678901234567890", map[int64]string{
			59: "94287082", 1111111109: "07081804", 1111111111: "14050471",
			1234567890: "89005924", 2000000000: "69279037", 20000000000: "65353130",
		}},
		{"SHA256", "12345678901234567890123456789012", map[int64]string{
			59: "46119246", 1111111109: "68084774", 1111111111: "67062674",
			1234567890: "91819424", 2000000000: "90698825", 20000000000: "77737706",
		}},
		{"SHA512", "1234567890123456789012345678901234567890123456789012345678901234", map[int64]string{
			59: "90693936", 1111111109: "25091201", 1111111111: "99943326",
			1234567890: "93441116", 2000000000: "38618901", 20000000000: "47863826",
		}},
	}

	for _, tc := range cases {
		m := mustManager(t, Config{Digits: 8, Period: 30, Skew: 0, Algorithm: tc.alg})
		for ts, want := range tc.codes {
			got, err := m.Code(b32(tc.secret), time.Unix(ts, 0))
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s at t=%d", tc.alg, ts)
			assert.True(t, m.Verify(b32(tc.secret), want, time.Unix(ts, 0)), "%s verify at t=%d", tc.alg, ts)
		}
	}
}

func TestRFC4226HOTPVectors(t *testing.T) {
	want := []string{"755224", "287082", "359152", "969429", "338314", "254676", "287922", "162583", "399871", "520489"}
	for i, code := range want {
		assert.Equal(t, code, HOTP([]byte("12345678901234567890"), uint64(i), 6))
	}
}

func TestCodeMatchesIndependentImplementation(t *testing.T) {
	m := mustManager(t, DefaultConfig())
	for i := 0; i < 20; i++ {
		secret, err := GenerateSecret()
		require.NoError(t, err)
		now := time.Unix(1700000000+int64(i)*977, 0)

		ours, err := m.Code(secret, now)
		require.NoError(t, err)
		theirs, err := totp.GenerateCodeCustom(secret, now, totp.ValidateOpts{
			Period:    30,
			Digits:    pqotp.DigitsSix,
			Algorithm: pqotp.AlgorithmSHA1,
		})
		require.NoError(t, err)
		assert.Equal(t, theirs, ours)
	}
}

func TestVerifyWindow(t *testing.T) {
	m := mustManager(t, DefaultConfig())
	secret, err := GenerateSecret()
	require.NoError(t, err)
	now := time.Unix(1700000015, 0)

	for offset := -3; offset <= 3; offset++ {
		code, err := m.Code(secret, now.Add(time.Duration(offset)*30*time.Second))
		require.NoError(t, err)
		want := offset >= -1 && offset <= 1
		// a code from a distant step can collide with a near one by chance
		current, _ := m.Code(secret, now)
		prev, _ := m.Code(secret, now.Add(-30*time.Second))
		next, _ := m.Code(secret, now.Add(30*time.Second))
		if !want && (code == current || code == prev || code == next) {
			continue
		}
		assert.Equal(t, want, m.Verify(secret, code, now), "offset %d", offset)
	}
}

func TestVerifyRejectsEmptyInputs(t *testing.T) {
	m := mustManager(t, DefaultConfig())
	assert.False(t, m.Verify("", "123456", time.Now()))
	secret, _ := GenerateSecret()
	assert.False(t, m.Verify(secret, "", time.Now()))
	assert.False(t, m.Verify(secret, "12345", time.Now()))
	assert.False(t, m.Verify(secret, "12a456", time.Now()))
	assert.False(t, m.Verify("!!!!", "123456", time.Now()))
}

func TestVerifyTrimsWhitespace(t *testing.T) {
	m := mustManager(t, DefaultConfig())
	secret, _ := GenerateSecret()
	now := time.Now()
	code, err := m.Code(secret, now)
	require.NoError(t, err)
	assert.True(t, m.Verify(secret, " "+code+"\n", now))
}

func TestGenerateSecretShape(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
	assert.NotContains(t, secret, "=")
	assert.Len(t, DecodeSecret(secret), SecretBytes)
}

func TestDecodeSecretIsPermissive(t *testing.T) {
	secret := b32("12345678901234567890")
	typed := strings.ToLower(secret[:4]) + "-" + secret[4:16] + " " + secret[16:] + "===="
	assert.Equal(t, []byte("12345678901234567890"), DecodeSecret(typed))
	assert.Empty(t, DecodeSecret("0189!"))
}

func TestProvisioningURI(t *testing.T) {
	m := mustManager(t, DefaultConfig())
	uri := m.ProvisioningURI("JBSWY3DPEHPK3PXP", "doc@test clinic", "Stay Healthy:EU")
	assert.Equal(t,
		"otpauth://totp/doc%40test%20clinic?secret=JBSWY3DPEHPK3PXP&issuer=Stay%20Healthy%3AEU&digits=6&period=30",
		uri)
}

func TestQRCodeDataURI(t *testing.T) {
	m := mustManager(t, DefaultConfig())
	uri := m.ProvisioningURI("JBSWY3DPEHPK3PXP", "doc@test", "clinic")
	data, err := QRCodeDataURI(uri, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data, "data:image/png;base64,"))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Digits: 4})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{Algorithm: "MD5"})
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	_, err = New(Config{Skew: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
