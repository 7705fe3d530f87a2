package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPPeriod is the length of one code step
const TOTPPeriod = 30 * time.Second

var totpValidateOpts = totp.ValidateOpts{
	Period:    uint(TOTPPeriod / time.Second),
	Skew:      1, // ±1 time step for clock drift
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPManager handles TOTP enrollment, secret encryption and code validation
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string
}

// Enrollment is the result of generating a new TOTP secret
type Enrollment struct {
	SecretEncrypted []byte
	SecretNonce     []byte
	Secret          string // base32, shown once to the user
	URL             string // otpauth:// provisioning URL
	QRCodePNG       []byte
}

// NewTOTPManager creates a new TOTP manager
// encryptionKey must be exactly 32 bytes for AES-256
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
	}, nil
}

// Enroll generates and encrypts a secret for accountName and renders its QR code
func (tm *TOTPManager) Enroll(accountName string, qrSize int) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Period:      totpValidateOpts.Period,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	return &Enrollment{
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		Secret:          key.Secret(),
		URL:             key.URL(),
		QRCodePNG:       png,
	}, nil
}

// QRCodeDataURL encodes a PNG as a data URL for inline display
func QRCodeDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM
// Returns: (encryptedBytes, nonce, error)
func (tm *TOTPManager) EncryptSecret(secretBytes []byte) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secretBytes, nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret
func (tm *TOTPManager) DecryptSecret(encryptedBytes, nonce []byte) ([]byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, encryptedBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plaintext, nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ValidateCode checks a six digit code against a base32 secret at the given time
func (tm *TOTPManager) ValidateCode(secret []byte, code string, at time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, string(secret), at, totpValidateOpts)
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}
	return valid, nil
}

// StepStart returns the start of the code step containing at. It is recorded
// after a successful validation so the same step cannot be replayed.
func StepStart(at time.Time) time.Time {
	return at.Truncate(TOTPPeriod)
}
