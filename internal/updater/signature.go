package updater

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Reasons a signature check was skipped.
const (
	SkipNoPublicKey     = "no public key configured"
	SkipNoSignatureFile = "package has no signature file"
)

// SignatureResult is the outcome of VerifySignature.
type SignatureResult struct {
	Valid   bool `json:"valid"`
	Skipped bool `json:"skipped,omitempty"`
	// SkipReason is set when Skipped is true.
	SkipReason string `json:"skipReason,omitempty"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// ParsePublicKey decodes an Ed25519 public key given as hex or base64.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, ok := decodeFixed(strings.TrimSpace(s), ed25519.PublicKeySize)
	if !ok {
		return nil, fmt.Errorf("%w: expected %d bytes as hex or base64", ErrInvalidPublicKey, ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// HasPublicKey reports whether signature checks are enabled.
func (i *Integrity) HasPublicKey() bool {
	return len(i.publicKey) == ed25519.PublicKeySize
}

// VerifySignature checks the detached Ed25519 signature over the package's
// checksum manifest. Without a public key, or when the package references no
// signature file, the check is skipped and reported valid.
func (i *Integrity) VerifySignature(pkgDir, checksumFile, signatureFile string) *SignatureResult {
	if !i.HasPublicKey() {
		return &SignatureResult{Valid: true, Skipped: true, SkipReason: SkipNoPublicKey}
	}
	if signatureFile == "" {
		if i.requireSignature {
			return signatureFailure(ErrSignatureRequired)
		}
		return &SignatureResult{Valid: true, Skipped: true, SkipReason: SkipNoSignatureFile}
	}
	if checksumFile == "" {
		checksumFile = DefaultChecksumFile
	}

	message, err := os.ReadFile(filepath.Join(pkgDir, checksumFile))
	if err != nil {
		return signatureFailure(ErrChecksumFileNotFound)
	}

	sigData, err := os.ReadFile(filepath.Join(pkgDir, signatureFile))
	if err != nil {
		return signatureFailure(fmt.Errorf("%w: read signature file: %v", ErrSignatureInvalid, err))
	}

	sig, ok := decodeSignature(sigData)
	if !ok {
		return signatureFailure(fmt.Errorf("%w: malformed signature", ErrSignatureInvalid))
	}

	if !ed25519.Verify(i.publicKey, message, sig) {
		i.logger.Warn().Str("package", pkgDir).Msg("package signature rejected")
		return signatureFailure(ErrSignatureInvalid)
	}
	return &SignatureResult{Valid: true}
}

func signatureFailure(err error) *SignatureResult {
	return &SignatureResult{Error: err.Error(), Err: err}
}

// decodeSignature accepts a raw 64-byte signature or its hex or base64 text.
func decodeSignature(data []byte) ([]byte, bool) {
	if len(data) == ed25519.SignatureSize {
		return data, true
	}
	return decodeFixed(string(bytes.TrimSpace(data)), ed25519.SignatureSize)
}

func decodeFixed(s string, size int) ([]byte, bool) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == size {
		return b, true
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == size {
			return b, true
		}
	}
	return nil, false
}
