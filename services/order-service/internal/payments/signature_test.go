package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"bakehouse-system/services/order-service/internal/domain"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureNoSecretPasses(t *testing.T) {
	assert.NoError(t, VerifySignature("", "", []byte("anything")))
	assert.NoError(t, VerifySignature("", "garbage", []byte("anything")))
}

func TestVerifySignatureStructuredHeader(t *testing.T) {
	body := []byte(`{"data":{"id":"pay-1"}}`)
	header := "ts=1699999999,v1=" + sign("topsecret", body)

	assert.NoError(t, VerifySignature("topsecret", header, body))
}

func TestVerifySignatureBareToken(t *testing.T) {
	body := []byte(`{"id":"pay-2"}`)
	assert.NoError(t, VerifySignature("topsecret", sign("topsecret", body), body))
}

func TestVerifySignatureBodyTamperFlipsVerdict(t *testing.T) {
	body := []byte(`{"data":{"id":"pay-1"}}`)
	header := "ts=1,v1=" + sign("topsecret", body)
	assert.NoError(t, VerifySignature("topsecret", header, body))

	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0x01
	assert.ErrorIs(t, VerifySignature("topsecret", header, tampered), domain.ErrSignatureInvalid)
}

func TestVerifySignatureMissingOrMalformedHeader(t *testing.T) {
	body := []byte("{}")
	assert.ErrorIs(t, VerifySignature("topsecret", "", body), domain.ErrSignatureInvalid)
	assert.ErrorIs(t, VerifySignature("topsecret", "ts=123,v2=abc", body), domain.ErrSignatureInvalid)
	assert.ErrorIs(t, VerifySignature("topsecret", "ts=123,v1=deadbeef", body), domain.ErrSignatureInvalid)
}

func TestVerifySignatureDeterministic(t *testing.T) {
	body := []byte(`{"id":42}`)
	header := "v1=" + sign("s", body)
	for i := 0; i < 5; i++ {
		assert.NoError(t, VerifySignature("s", header, body))
		assert.Error(t, VerifySignature("other", header, body))
	}
}
