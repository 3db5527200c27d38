package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	headerSignature    = "X-Webhook-Signature"
	headerHubSignature = "X-Hub-Signature-256"
	prefixSHA256       = "sha256="
)

// ExtractSignature pulls the signature from the delivery headers. Both the
// raw hex digest and the "sha256="-prefixed provider convention are
// accepted.
func ExtractSignature(headers map[string]string) string {
	sig := headerValue(headers, headerSignature)
	if sig == "" {
		sig = headerValue(headers, headerHubSignature)
	}
	sig = strings.TrimSpace(sig)
	return strings.TrimPrefix(sig, prefixSHA256)
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	// Header maps arriving from non-canonical sources.
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Sign computes the hex HMAC-SHA256 of the payload under the secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the presented signature against the expected
// HMAC in constant time. An undecodable or absent signature never
// verifies.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}
