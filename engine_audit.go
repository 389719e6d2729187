package clinicauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/clinicauth/refresh"
)

const (
	auditEventLoginFailed            = "login_failed"
	auditEventLoginSucceeded         = "login_succeeded"
	auditEventStepUpEnrolled         = "mfa_enrolled"
	auditEventStepUpVerified         = "mfa_verified"
	auditEventStepUpVerifyFailed     = "mfa_verify_failed"
	auditEventStepUpDisabled         = "mfa_disabled"
	auditEventRefreshRotated         = "refresh_rotated"
	auditEventRefreshRevoked         = "refresh_token_revoked"
	auditEventRefreshRevokeFailed    = "refresh_token_revoke_failed"
	auditEventRefreshRevokedAll      = "refresh_tokens_revoked_all"
	auditEventRefreshRevokeAllFailed = "refresh_tokens_revoke_all_failed"
	auditEventExternalRejected       = "oidc_rejected"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]any,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]any
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = string(auditErrorCode(err))
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode is the reason string recorded on failed events. It reuses
// the public error kinds.
func auditErrorCode(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, refresh.ErrNotFound):
		return Kind(refresh.ReasonNotFound)
	}
	return KindOf(err)
}
