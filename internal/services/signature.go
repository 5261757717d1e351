package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"

	"github.com/callloop/postcall-gateway/internal/model"
)

// VerifyWebhookSignature checks an HMAC signature over the raw request body.
// Twilio signs with SHA-1 and base64 encoding; everything else uses SHA-256
// hex. Comparison is constant time.
func VerifyWebhookSignature(body []byte, signature, secret, provider string) bool {
	if signature == "" || secret == "" {
		return false
	}

	var mac hash.Hash
	if provider == model.ProviderTwilio {
		mac = hmac.New(sha1.New, []byte(secret))
	} else {
		mac = hmac.New(sha256.New, []byte(secret))
	}
	mac.Write(body)
	sum := mac.Sum(nil)

	var expected string
	if provider == model.ProviderTwilio {
		expected = base64.StdEncoding.EncodeToString(sum)
	} else {
		expected = hex.EncodeToString(sum)
	}

	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSecret compares a shared secret query parameter against the
// tenant's configured secret in constant time.
func VerifyWebhookSecret(provided, configured string) bool {
	if provided == "" || configured == "" {
		return false
	}
	return hmac.Equal([]byte(provided), []byte(configured))
}
