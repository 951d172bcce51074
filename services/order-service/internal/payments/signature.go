package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"bakehouse-system/services/order-service/internal/domain"
)

// VerifySignature checks a webhook signature header against an
// HMAC-SHA256 of the raw request body keyed by the shared secret.
//
// With no secret configured verification trivially passes (development
// mode). The header may carry the token bare, or embedded as the "v1"
// component of a comma-separated key=value list, e.g.
// "ts=1699999999,v1=<hex digest>". Comparison is constant-time.
func VerifySignature(secret, header string, body []byte) error {
	if secret == "" {
		return nil
	}
	if header == "" {
		return domain.ErrSignatureInvalid
	}

	token := extractToken(header)
	if token == "" {
		return domain.ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(token), []byte(expected)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// extractToken pulls the signature out of a structured header. A header
// with no key=value structure is treated as the token itself.
func extractToken(header string) string {
	if !strings.Contains(header, "=") {
		return strings.TrimSpace(header)
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == "v1" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
