package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/internal/rate"
	"github.com/MrEthical07/clinicauth/otp"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-password-123"

func newTestRouter(t *testing.T, opts Options) (http.Handler, *clinicauth.MemoryCredentialStore) {
	t.Helper()
	pwCfg := clinicauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	h, err := password.NewHasher(password.Config{
		Memory:      pwCfg.Memory,
		Time:        pwCfg.Time,
		Parallelism: pwCfg.Parallelism,
		SaltLength:  pwCfg.SaltLength,
		KeyLength:   pwCfg.KeyLength,
	})
	require.NoError(t, err)
	hash, err := h.Hash(testPassword)
	require.NoError(t, err)

	cfg := clinicauth.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = pwCfg

	store := clinicauth.NewMemoryCredentialStore(
		clinicauth.Principal{ID: "u-doc", Email: "doc@clinic.test", Role: clinicauth.RoleClinician, PasswordHash: hash},
		clinicauth.Principal{ID: "u-pat", Email: "pat@clinic.test", Role: clinicauth.RolePatient, PasswordHash: hash},
	)
	engine, err := clinicauth.New().WithConfig(cfg).WithCredentialStore(store).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return NewRouter(engine, opts), store
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorResponse struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func login(t *testing.T, h http.Handler, email string) clinicauth.LoginResult {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[clinicauth.LoginResult](t, rec)
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	res := login(t, h, "PAT@clinic.test")
	require.False(t, res.StepUpRequired)
	require.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "u-pat", res.Principal.ID)

	rec := do(t, h, http.MethodGet, "/auth/me", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[clinicauth.PrincipalClaims](t, rec)
	assert.Equal(t, "u-pat", me.Subject)
	assert.Equal(t, clinicauth.SourceLocal, me.Source)
}

func TestLoginValidation(t *testing.T) {
	h, _ := newTestRouter(t, Options{})

	rec := do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "pat@clinic.test"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody[errorResponse](t, rec).Error.Code)

	rec = do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "x", "password": "y", "extra": "z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	rec := do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "pat@clinic.test", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(clinicauth.KindInvalidCredentials), decodeBody[errorResponse](t, rec).Error.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	res := login(t, h, "pat@clinic.test")

	rec := do(t, h, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": res.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decodeBody[clinicauth.TokenPair](t, rec)
	assert.NotEqual(t, res.RefreshToken, pair.RefreshToken)

	rec = do(t, h, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": res.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/logout", "", map[string]string{"refreshToken": pair.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	// Unknown tokens answer the same way.
	rec = do(t, h, http.MethodPost, "/auth/logout", "", map[string]string{"refreshToken": "does-not-exist"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	first := login(t, h, "pat@clinic.test")
	second := login(t, h, "pat@clinic.test")

	rec := do(t, h, http.MethodPost, "/auth/logout/all", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["count"])

	rec = do(t, h, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStepUpEnrollmentAndLogin(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	totp, err := otp.New(otp.DefaultConfig())
	require.NoError(t, err)

	res := login(t, h, "doc@clinic.test")
	require.False(t, res.StepUpRequired)

	rec := do(t, h, http.MethodPost, "/auth/mfa/enroll", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	enrollment := decodeBody[clinicauth.Enrollment](t, rec)
	require.NotEmpty(t, enrollment.Secret)

	rec = do(t, h, http.MethodGet, "/auth/mfa/status", res.AccessToken, nil)
	assert.Equal(t, clinicauth.StepUpState{Configured: true}, decodeBody[clinicauth.StepUpState](t, rec))

	rec = do(t, h, http.MethodPost, "/auth/mfa/confirm", res.AccessToken, map[string]string{"code": "000000x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, err := totp.Code(enrollment.Secret, time.Now())
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/auth/mfa/confirm", res.AccessToken, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stepped := login(t, h, "doc@clinic.test")
	require.True(t, stepped.StepUpRequired)
	require.Empty(t, stepped.AccessToken)

	// A step-up token is not an access token.
	rec = do(t, h, http.MethodGet, "/auth/me", stepped.StepUpToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// And an access token cannot complete a challenge.
	rec = do(t, h, http.MethodPost, "/auth/mfa/verify", res.AccessToken, map[string]string{"code": code})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	code, err = totp.Code(enrollment.Secret, time.Now())
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/auth/mfa/verify", stepped.StepUpToken, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decodeBody[clinicauth.TokenPair](t, rec)

	rec = do(t, h, http.MethodGet, "/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[clinicauth.PrincipalClaims](t, rec).MFAEnabled)

	rec = do(t, h, http.MethodPost, "/auth/mfa/disable", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/auth/mfa/status", pair.AccessToken, nil)
	assert.Equal(t, clinicauth.StepUpState{}, decodeBody[clinicauth.StepUpState](t, rec))
}

func TestProtectedRoutesEnforceRoles(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h, _ := newTestRouter(t, Options{Protected: []Route{
		{Method: http.MethodGet, Path: "/prescriptions", Roles: []clinicauth.Role{clinicauth.RoleClinician}, Handler: ok},
		{Method: http.MethodGet, Path: "/profile", Handler: ok},
	}})

	doc := login(t, h, "doc@clinic.test")
	pat := login(t, h, "pat@clinic.test")

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/api/prescriptions", doc.AccessToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/prescriptions", pat.AccessToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/prescriptions", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/api/profile", pat.AccessToken, nil).Code)
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	h, _ := newTestRouter(t, Options{Metrics: metrics, MetricsPath: "/internal/metrics"})

	rec := do(t, h, http.MethodGet, "/internal/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLoginThrottledPerIP(t *testing.T) {
	h, _ := newTestRouter(t, Options{Limiters: &Limiters{
		Login: rate.NewMemoryLimiter(rate.Policy{Bucket: "login", Limit: 2, Window: time.Minute}, nil),
	}})

	body := map[string]string{"email": "pat@clinic.test", "password": "nope"}
	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeBody[errorResponse](t, rec).Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Refresh has its own budget and none was configured.
	rec = do(t, h, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, rate.ErrRedisUnavailable
}

func TestThrottleFailsOpen(t *testing.T) {
	h, _ := newTestRouter(t, Options{Limiters: &Limiters{Login: brokenLimiter{}}})
	res := login(t, h, "pat@clinic.test")
	assert.NotEmpty(t, res.AccessToken)
}
