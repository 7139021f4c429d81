package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureLength is the number of hex characters kept from the HMAC.
const SignatureLength = 12

// Signer computes the truncated HMAC-SHA256 signature of license fields.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer. There is no built-in fallback secret: an empty
// secret is rejected so that keys are never signed with a publicly known value.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Signer{secret: s}, nil
}

// Sign returns the first 12 uppercase hex characters of
// HMAC-SHA256("{factoryId}:{standardsCodes}:{expiryToken}").
func (s *Signer) Sign(factoryID, standardsCodes, expiryToken string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(factoryID + ":" + standardsCodes + ":" + expiryToken))
	sum := hex.EncodeToString(mac.Sum(nil))
	return strings.ToUpper(sum[:SignatureLength])
}

// Verify recomputes the signature and compares it in constant time.
func (s *Signer) Verify(factoryID, standardsCodes, expiryToken, signature string) bool {
	expected := s.Sign(factoryID, standardsCodes, expiryToken)
	return hmac.Equal([]byte(expected), []byte(signature))
}
