// ABOUTME: Constant-time HMAC signature verification for webhook payloads.
// ABOUTME: The algorithm prefix on the signature header selects the digest.

package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/cockroachdb/errors"
)

// verifySignature checks a hex-encoded HMAC signature against the raw body.
// Signatures carry an algorithm prefix ("sha256=" or "sha1="); unprefixed
// values are treated as SHA-256.
func verifySignature(secret, body []byte, signature string) error {
	if signature == "" {
		return errors.Wrap(ErrSignatureInvalid, "missing signature")
	}

	var digest func() hash.Hash
	switch {
	case strings.HasPrefix(signature, "sha256="):
		digest = sha256.New
		signature = strings.TrimPrefix(signature, "sha256=")
	case strings.HasPrefix(signature, "sha1="):
		digest = sha1.New
		signature = strings.TrimPrefix(signature, "sha1=")
	default:
		digest = sha256.New
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return errors.Wrap(ErrSignatureInvalid, "signature is not valid hex")
	}

	mac := hmac.New(digest, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(provided, expected) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign computes the hex-encoded SHA-256 signature for a payload, with the
// "sha256=" prefix. Used by the simulator and tests to produce valid
// deliveries.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
