package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_ValidSignatureAccepted(t *testing.T) {
	body := []byte(`{"message_id":"abc","status":"delivered"}`)
	header := sign("top-secret", body)

	assert.True(t, verifySignature("top-secret", body, header))
}

func TestVerifySignature_WrongSecretRejected(t *testing.T) {
	body := []byte(`{"message_id":"abc","status":"delivered"}`)
	header := sign("top-secret", body)

	assert.False(t, verifySignature("wrong-secret", body, header))
}

func TestVerifySignature_TamperedBodyRejected(t *testing.T) {
	body := []byte(`{"message_id":"abc","status":"delivered"}`)
	header := sign("top-secret", body)

	tampered := []byte(`{"message_id":"abc","status":"read"}`)
	assert.False(t, verifySignature("top-secret", tampered, header))
}

func TestVerifySignature_MissingHeaderRejected(t *testing.T) {
	assert.False(t, verifySignature("top-secret", []byte("x"), ""))
}

func TestVerifySignature_MalformedHeaderRejected(t *testing.T) {
	assert.False(t, verifySignature("top-secret", []byte("x"), "not-a-real-signature"))
}
