package clinicauth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollStepUpLeavesMFADisabledUntilVerified(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()

	enr, err := te.EnrollStepUp(ctx, "u-doc", "", "")
	require.NoError(t, err)
	assert.Len(t, enr.Secret, 32)
	assert.True(t, strings.HasPrefix(enr.ProvisioningURI, "otpauth://totp/doc%40test?secret="+enr.Secret))
	assert.Contains(t, enr.ProvisioningURI, "&issuer=prescription-api")
	assert.True(t, strings.HasPrefix(enr.QRCodeDataURI, "data:image/png;base64,"))

	state, err := te.StepUpStatus(ctx, "u-doc")
	require.NoError(t, err)
	assert.Equal(t, StepUpState{Configured: true, Enabled: false}, state)

	res, err := te.Login(ctx, "doc@test", testPassword)
	require.NoError(t, err)
	assert.False(t, res.StepUpRequired, "enrollment alone must not gate login")

	pair, err := te.VerifyStepUp(ctx, "u-doc", te.currentCode(t, "u-doc"))
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	state, err = te.StepUpStatus(ctx, "u-doc")
	require.NoError(t, err)
	assert.Equal(t, StepUpState{Configured: true, Enabled: true}, state)
}

func TestEnrollStepUpUsesGivenLabelAndIssuer(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})

	enr, err := te.EnrollStepUp(context.Background(), "u-doc", "Dr Who", "Clinic & Co")
	require.NoError(t, err)
	assert.Contains(t, enr.ProvisioningURI, "otpauth://totp/Dr%20Who?")
	assert.Contains(t, enr.ProvisioningURI, "issuer=Clinic%20%26%20Co")
}

func TestReEnrollDisablesMFAAndReplacesSecret(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()
	te.enableMFA(t, "u-doc")

	before, err := te.store.FindByID(ctx, "u-doc")
	require.NoError(t, err)

	enr, err := te.EnrollStepUp(ctx, "u-doc", "", "")
	require.NoError(t, err)
	assert.NotEqual(t, before.MFASecret, enr.Secret)

	state, err := te.StepUpStatus(ctx, "u-doc")
	require.NoError(t, err)
	assert.False(t, state.Enabled)
}

func TestDisableStepUpClearsSecret(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()
	te.enableMFA(t, "u-doc")

	require.NoError(t, te.DisableStepUp(ctx, "u-doc"))

	state, err := te.StepUpStatus(ctx, "u-doc")
	require.NoError(t, err)
	assert.Equal(t, StepUpState{}, state)

	_, err = te.VerifyStepUp(ctx, "u-doc", "123456")
	require.ErrorIs(t, err, ErrStepUpNotConfigured)

	res, err := te.Login(ctx, "doc@test", testPassword)
	require.NoError(t, err)
	assert.False(t, res.StepUpRequired)
}

func TestVerifyStepUpWrongCode(t *testing.T) {
	te := newTestEngine(t, []Principal{doctor(t)})
	ctx := context.Background()

	_, err := te.EnrollStepUp(ctx, "u-doc", "", "")
	require.NoError(t, err)

	code := te.currentCode(t, "u-doc")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = te.VerifyStepUp(ctx, "u-doc", wrong)
	require.ErrorIs(t, err, ErrInvalidStepUpCode)
	assert.Equal(t, 400, StatusOf(err))

	state, err := te.StepUpStatus(ctx, "u-doc")
	require.NoError(t, err)
	assert.False(t, state.Enabled)
}

func TestStepUpOperationsUnknownPrincipal(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := te.EnrollStepUp(ctx, "missing", "", "")
	require.ErrorIs(t, err, ErrPrincipalNotFound)
	_, err = te.StepUpStatus(ctx, "missing")
	require.ErrorIs(t, err, ErrPrincipalNotFound)
	require.ErrorIs(t, te.DisableStepUp(ctx, "missing"), ErrPrincipalNotFound)
	_, err = te.VerifyStepUp(ctx, "", "123456")
	require.ErrorIs(t, err, ErrPrincipalNotFound)
}
