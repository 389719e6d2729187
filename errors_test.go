package clinicauth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/MrEthical07/clinicauth/refresh"
	"github.com/stretchr/testify/assert"
)

func TestKindAndStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		kind   Kind
		status int
	}{
		{nil, "", http.StatusOK},
		{ErrInvalidCredentials, KindInvalidCredentials, http.StatusUnauthorized},
		{ErrAccountLocked, KindAccountLocked, http.StatusTooManyRequests},
		{ErrInvalidRefreshToken, KindInvalidRefreshToken, http.StatusUnauthorized},
		{ErrStepUpRequired, KindStepUpRequired, http.StatusUnauthorized},
		{ErrInvalidStepUpCode, KindInvalidStepUpCode, http.StatusBadRequest},
		{ErrStepUpNotConfigured, KindStepUpNotConfigured, http.StatusBadRequest},
		{ErrExternalClaimMissing, KindExternalClaimMissing, http.StatusUnauthorized},
		{ErrExternalPrincipalNotFound, KindExternalPrincipalNotFound, http.StatusUnauthorized},
		{ErrExternalKeyFetchFailed, KindExternalKeyFetchFailed, http.StatusServiceUnavailable},
		{ErrMisconfigured, KindMisconfigured, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: external token required", ErrInvalidToken), KindInvalidToken, http.StatusUnauthorized},
		{fmt.Errorf("%w: db down", ErrStoreUnavailable), KindStoreUnavailable, http.StatusServiceUnavailable},
		{refresh.ErrStoreUnavailable, KindStoreUnavailable, http.StatusServiceUnavailable},
		{ErrUnauthorized, KindUnauthorized, http.StatusUnauthorized},
		{ErrPrincipalNotFound, KindUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.err), "%v", tt.err)
		assert.Equal(t, tt.status, StatusOf(tt.err), "%v", tt.err)
	}
}

func TestAuditErrorCodeNotFound(t *testing.T) {
	assert.Equal(t, Kind(refresh.ReasonNotFound), auditErrorCode(refresh.ErrNotFound))
	assert.Equal(t, KindInvalidCredentials, auditErrorCode(ErrInvalidCredentials))
}
