// Package signing holds the HMAC helpers shared by inbound webhook
// verification and outbound webhook signing.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is prepended to hex signatures on outbound webhooks and optionally
// present on inbound ones.
const Prefix = "sha256="

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignWithPrefix returns "sha256=" + Sign(secret, payload).
func SignWithPrefix(secret string, payload []byte) string {
	return Prefix + Sign(secret, payload)
}

// NormalizeSignature strips an optional "Bearer " scheme and "sha256=" prefix
// and surrounding whitespace.
func NormalizeSignature(sig string) string {
	sig = strings.TrimSpace(sig)
	if len(sig) > 7 && strings.EqualFold(sig[:7], "bearer ") {
		sig = strings.TrimSpace(sig[7:])
	}
	if len(sig) >= len(Prefix) && strings.EqualFold(sig[:len(Prefix)], Prefix) {
		sig = sig[len(Prefix):]
	}
	return sig
}

// Verify checks a hex signature over the raw payload in constant time.
// The signature may carry the "sha256=" prefix.
func Verify(secret string, payload []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.ToLower(NormalizeSignature(signature)))
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
