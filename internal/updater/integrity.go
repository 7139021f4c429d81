package updater

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// digestBufferSize is the read size used when hashing installers.
const digestBufferSize = 64 * 1024

// ProgressFunc receives the bytes hashed so far and the file size.
type ProgressFunc func(read, total int64)

// ChecksumResult is the outcome of VerifyChecksum.
type ChecksumResult struct {
	Valid    bool   `json:"valid"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
	// Err is the sentinel behind Error, for errors.Is.
	Err error `json:"-"`
}

// IntegrityConfig holds the trust settings of an Integrity verifier.
type IntegrityConfig struct {
	// PublicKey verifies package signatures. Nil skips signature checks.
	PublicKey ed25519.PublicKey
	// RequireSignature fails packages that reference no signature file when a
	// public key is configured.
	RequireSignature bool
	Progress         ProgressFunc
	Logger           zerolog.Logger
}

// Integrity verifies installer checksums and package signatures.
type Integrity struct {
	publicKey        ed25519.PublicKey
	requireSignature bool
	progress         ProgressFunc
	logger           zerolog.Logger
}

// NewIntegrity creates an Integrity verifier.
func NewIntegrity(cfg IntegrityConfig) *Integrity {
	return &Integrity{
		publicKey:        cfg.PublicKey,
		requireSignature: cfg.RequireSignature,
		progress:         cfg.Progress,
		logger:           cfg.Logger.With().Str("component", "integrity").Logger(),
	}
}

// ComputeDigest streams path through SHA-256 and returns the lowercase hex
// digest. progress, if non-nil, is called after every chunk.
func ComputeDigest(ctx context.Context, path string, progress ProgressFunc) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	total := info.Size()

	h := sha256.New()
	buf := make([]byte, digestBufferSize)
	var read int64

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			read += int64(n)
			if progress != nil {
				progress(read, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum checks the installer digest against the package checksum
// manifest. Failures are reported in the result, not as errors.
func (i *Integrity) VerifyChecksum(ctx context.Context, pkgDir, installerFile, checksumFile string) *ChecksumResult {
	if checksumFile == "" {
		checksumFile = DefaultChecksumFile
	}

	data, err := os.ReadFile(filepath.Join(pkgDir, checksumFile))
	if err != nil {
		return checksumFailure(ErrChecksumFileNotFound, "", "")
	}

	expected, ok := findChecksum(data, installerFile)
	if !ok {
		return checksumFailure(ErrChecksumNotFound, "", "")
	}

	actual, err := ComputeDigest(ctx, filepath.Join(pkgDir, installerFile), i.progress)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return checksumFailure(err, expected, "")
		}
		return checksumFailure(fmt.Errorf("%w: %v", ErrInstallerNotFound, err), expected, "")
	}

	if actual != expected {
		i.logger.Warn().
			Str("installer", installerFile).
			Str("expected", expected).
			Str("actual", actual).
			Msg("installer checksum mismatch")
		return checksumFailure(ErrChecksumMismatch, expected, actual)
	}

	return &ChecksumResult{Valid: true, Expected: expected, Actual: actual}
}

func checksumFailure(err error, expected, actual string) *ChecksumResult {
	return &ChecksumResult{Expected: expected, Actual: actual, Error: err.Error(), Err: err}
}

// findChecksum returns the digest recorded for name in a sha256sum manifest.
// Entries match exactly or by path suffix at a directory boundary.
func findChecksum(data []byte, name string) (string, bool) {
	target := normalizeChecksumPath(name)

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		digest := strings.ToLower(fields[0])
		if !isSHA256Hex(digest) {
			continue
		}
		// Names may contain spaces; everything after the digest is the name.
		entry := strings.TrimSpace(line[len(fields[0]):])
		entry = normalizeChecksumPath(strings.TrimPrefix(entry, "*"))
		if entry == target || strings.HasSuffix(entry, "/"+target) {
			return digest, true
		}
	}
	return "", false
}

func normalizeChecksumPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
