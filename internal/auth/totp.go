package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod  = 30
	totpSkew    = 1 // ±1 time step to absorb clock drift
	totpDigits  = otp.DigitsSix
	backupChars = "23456789ABCDEFGHJKMNPQRSTUVWXYZ" // no ambiguous 0/O/1/I/L
	backupLen   = 8
)

// Enrollment is the material returned to a user setting up TOTP.
type Enrollment struct {
	Secret      string // base32, shown once
	SecretEnc   []byte
	SecretNonce []byte
	QRDataURL   string
}

// TOTPManager generates and validates time-based one-time codes. Secrets
// are sealed with the manager's SecretBox before storage.
type TOTPManager struct {
	box    *SecretBox
	issuer string
}

// NewTOTPManager creates a new TOTP manager.
func NewTOTPManager(box *SecretBox, issuer string) *TOTPManager {
	return &TOTPManager{box: box, issuer: issuer}
}

// GenerateEnrollment creates a fresh secret plus a QR provisioning code for
// the given account name.
func (tm *TOTPManager) GenerateEnrollment(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	secret := key.Secret()
	enc, nonce, err := tm.box.Seal([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &Enrollment{
		Secret:      secret,
		SecretEnc:   enc,
		SecretNonce: nonce,
		QRDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// DecryptSecret unseals a stored TOTP secret.
func (tm *TOTPManager) DecryptSecret(enc, nonce []byte) (string, error) {
	secret, err := tm.box.Open(enc, nonce)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// Step returns the TOTP time step for the given instant.
func Step(at time.Time) int64 {
	return at.Unix() / totpPeriod
}

// Validate checks a code against the secret within the drift window around
// the given instant. The replay guard keys on the step the code was minted
// for, not the step it was submitted in, so a code accepted near a step
// boundary cannot be replayed one step later. On success it returns the
// matched step for the caller to persist as last used.
func (tm *TOTPManager) Validate(secret, code string, at time.Time, lastUsedStep int64) (bool, int64, error) {
	current := Step(at)
	for candidate := current - totpSkew; candidate <= current+totpSkew; candidate++ {
		valid, err := totp.ValidateCustom(code, secret, time.Unix(candidate*totpPeriod, 0), totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      0,
			Digits:    totpDigits,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return false, 0, fmt.Errorf("failed to validate TOTP: %w", err)
		}
		if !valid {
			continue
		}
		if candidate <= lastUsedStep {
			// Replay: this step's code was already accepted
			return false, 0, nil
		}
		return true, candidate, nil
	}

	return false, 0, nil
}

// GenerateBackupCodes generates n single-use recovery codes.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, n)
	buf := make([]byte, backupLen)

	for i := 0; i < n; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		code := make([]byte, backupLen)
		for j, b := range buf {
			code[j] = backupChars[int(b)%len(backupChars)]
		}
		codes[i] = string(code)
	}

	return codes, nil
}

// HashBackupCode returns the storage form of a backup code.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
