package clinicauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginPair(t *testing.T, te *testEngine, email string) *LoginResult {
	t.Helper()
	res, err := te.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, res.RefreshToken)
	return res
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()
	first := loginPair(t, te, "doc@test")

	pair, err := te.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, pair.RefreshToken)
	assert.Equal(t, te.clock.Now().Add(7*24*time.Hour).Unix(), pair.RefreshExpiresAt.Unix())

	claims, err := te.AuthenticateRequest(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-doc", claims.Subject)

	_, err = te.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Equal(t, KindInvalidRefreshToken, KindOf(err))

	_, err = te.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	token := loginPair(t, te, "doc@test").RefreshToken

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := te.Refresh(context.Background(), token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
	assert.Equal(t, 1, success)
}

func TestRefreshRejectsExpiredAndUnknown(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()
	token := loginPair(t, te, "doc@test").RefreshToken

	_, err := te.Refresh(ctx, "")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = te.Refresh(ctx, "not-issued-by-us")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	te.clock.Advance(7*24*time.Hour + time.Second)
	_, err = te.Refresh(ctx, token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshForDeletedPrincipalLeavesTokenUnconsumed(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()
	token := loginPair(t, te, "doc@test").RefreshToken

	te.store.Delete("u-doc")
	_, err := te.Refresh(ctx, token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	te.store.Put(doctor(t))
	_, err = te.Refresh(ctx, token)
	require.NoError(t, err)
}

func TestRefreshCarriesCurrentPrincipalState(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()
	token := loginPair(t, te, "doc@test").RefreshToken

	require.NoError(t, te.store.SetMFAEnabled(ctx, "u-doc", true))
	pair, err := te.Refresh(ctx, token)
	require.NoError(t, err)

	claims, err := te.AuthenticateRequest(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.MFAEnabled)
}

func TestRevokeSessionReasons(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()
	token := loginPair(t, te, "doc@test").RefreshToken

	res, err := te.RevokeSession(ctx, token)
	require.NoError(t, err)
	assert.True(t, res.Revoked)
	assert.Equal(t, "u-doc", res.UserID)

	res, err = te.RevokeSession(ctx, token)
	require.NoError(t, err)
	assert.False(t, res.Revoked)
	assert.Equal(t, refresh.ReasonAlreadyRevoked, res.Reason)

	res, err = te.RevokeSession(ctx, "never-issued")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, refresh.ReasonNotFound, res.Reason)

	_, err = te.Refresh(ctx, token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevokeAllSessions(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t), patient(t)})
	ctx := context.Background()
	a := loginPair(t, te, "doc@test").RefreshToken
	b := loginPair(t, te, "doc@test").RefreshToken
	other := loginPair(t, te, "pat@test").RefreshToken

	n, err := te.RevokeAllSessions(ctx, "u-doc")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, tok := range []string{a, b} {
		_, err := te.Refresh(ctx, tok)
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
	_, err = te.Refresh(ctx, other)
	require.NoError(t, err)

	_, err = te.RevokeAllSessions(ctx, "")
	require.ErrorIs(t, err, ErrPrincipalNotFound)
}
