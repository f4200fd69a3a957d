package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks carrier webhook signatures.
//
// When no shared secret is configured, or the notification carries no
// signature header, verification passes trivially. This permissive
// fallback matches the carrier's current rollout, where webhook signing
// is optional; the production posture is decided by whether a secret is
// deployed.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier with the given shared secret. An empty
// secret disables verification.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the hex-encoded HMAC-SHA256 signature of the raw body.
func (v *Verifier) Verify(rawBody []byte, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return true
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
