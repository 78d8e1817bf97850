package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	box, err := NewSecretBox(make([]byte, 32))
	require.NoError(t, err)
	return NewTOTPManager(box, "TruLedgr")
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestGenerateEnrollment(t *testing.T) {
	tm := newTestTOTPManager(t)

	enr, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enr.Secret)
	assert.NotEmpty(t, enr.SecretEnc)
	assert.NotEmpty(t, enr.SecretNonce)
	assert.Contains(t, enr.QRDataURL, "data:image/png;base64,")

	// Secret must round-trip through the secret box
	decrypted, err := tm.DecryptSecret(enr.SecretEnc, enr.SecretNonce)
	require.NoError(t, err)
	assert.Equal(t, enr.Secret, decrypted)
}

func TestValidate_CurrentCode(t *testing.T) {
	tm := newTestTOTPManager(t)
	enr, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	now := time.Now()
	code := codeAt(t, enr.Secret, now)

	ok, step, err := tm.Validate(enr.Secret, code, now, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Step(now), step)
}

func TestValidate_ReplayWithinStep(t *testing.T) {
	tm := newTestTOTPManager(t)
	enr, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	now := time.Now()
	code := codeAt(t, enr.Secret, now)

	ok, step, err := tm.Validate(enr.Secret, code, now, 0)
	require.NoError(t, err)
	require.True(t, ok)

	// Same code, same step, last-used persisted: must be rejected
	ok, _, err = tm.Validate(enr.Secret, code, now, step)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_ReplayAcrossStepBoundary(t *testing.T) {
	tm := newTestTOTPManager(t)
	enr, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	now := time.Now()
	code := codeAt(t, enr.Secret, now)

	ok, step, err := tm.Validate(enr.Secret, code, now, 0)
	require.NoError(t, err)
	require.True(t, ok)

	// One step later the same code is still inside the drift window, but it
	// matches the step already persisted and must stay rejected.
	later := now.Add(totpPeriod * time.Second)
	ok, _, err = tm.Validate(enr.Secret, code, later, step)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_WrongCode(t *testing.T) {
	tm := newTestTOTPManager(t)
	enr, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	ok, _, err := tm.Validate(enr.Secret, "000000", time.Now(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_SkewTolerance(t *testing.T) {
	tm := newTestTOTPManager(t)
	enr, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	now := time.Now()
	// Code from the previous step is accepted within the ±1 skew window
	previous := codeAt(t, enr.Secret, now.Add(-totpPeriod*time.Second))

	ok, step, err := tm.Validate(enr.Secret, previous, now, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Step(now)-1, step)
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Len(t, code, backupLen)
		assert.False(t, seen[code], "backup codes must be unique")
		seen[code] = true
	}
}

func TestHashBackupCode_Deterministic(t *testing.T) {
	assert.Equal(t, HashBackupCode("ABCD2345"), HashBackupCode("ABCD2345"))
	assert.NotEqual(t, HashBackupCode("ABCD2345"), HashBackupCode("ABCD2346"))
}
