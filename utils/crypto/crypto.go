package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// SignHMACSHA256 returns the hex-encoded HMAC-SHA256 of payload under secret
func SignHMACSHA256(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 checks a hex-encoded HMAC-SHA256 signature in constant
// time. Payment webhook authentication hangs off this check, so it must
// not leak timing information.
func VerifyHMACSHA256(payload []byte, signature, secret string) bool {
	expected := SignHMACSHA256(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateToken returns a cryptographically secure random hex token
func GenerateToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
