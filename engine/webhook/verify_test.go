package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	secret := "s3cr3tS3cr3tS3cr3tS3cr3tS3cr3t00"
	payload := []byte(`{"event":"push","ref":"main"}`)

	t.Run("Should verify its own signature", func(t *testing.T) {
		sig := Sign(secret, payload)
		assert.True(t, VerifySignature(secret, payload, sig))
	})
	t.Run("Should reject a single flipped byte in the payload", func(t *testing.T) {
		sig := Sign(secret, payload)
		tampered := append([]byte(nil), payload...)
		tampered[0] ^= 0x01
		assert.False(t, VerifySignature(secret, tampered, sig))
	})
	t.Run("Should reject a wrong secret", func(t *testing.T) {
		sig := Sign("other", payload)
		assert.False(t, VerifySignature(secret, payload, sig))
	})
	t.Run("Should reject empty or undecodable signatures", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, payload, ""))
		assert.False(t, VerifySignature(secret, payload, "not-hex!"))
	})
}

func TestExtractSignature(t *testing.T) {
	t.Run("Should read the primary header", func(t *testing.T) {
		sig := ExtractSignature(map[string]string{"X-Webhook-Signature": "abcd"})
		assert.Equal(t, "abcd", sig)
	})
	t.Run("Should fall back to the hub convention and strip the prefix", func(t *testing.T) {
		sig := ExtractSignature(map[string]string{"X-Hub-Signature-256": "sha256=abcd"})
		assert.Equal(t, "abcd", sig)
	})
	t.Run("Should match header names case-insensitively", func(t *testing.T) {
		sig := ExtractSignature(map[string]string{"x-webhook-signature": "sha256=ff00"})
		assert.Equal(t, "ff00", sig)
	})
	t.Run("Should return empty when no signature header is present", func(t *testing.T) {
		assert.Empty(t, ExtractSignature(map[string]string{"Content-Type": "application/json"}))
	})
	t.Run("Should verify a prefixed provider signature end to end", func(t *testing.T) {
		secret := "topsecret"
		payload := []byte(`{}`)
		headers := map[string]string{"X-Hub-Signature-256": "sha256=" + Sign(secret, payload)}
		sig := ExtractSignature(headers)
		require.NotEmpty(t, sig)
		assert.True(t, VerifySignature(secret, payload, sig))
	})
}
