// Package updater discovers, verifies and installs offline update packages
// delivered on removable media.
//
// A package is a directory holding an update-info.json manifest, an installer
// and a sha256sum-style checksum manifest. Checksum verification is always
// performed. Signature verification is opportunistic: when no Ed25519 public
// key is configured, or the manifest references no signature file, the
// signature stage is skipped and reported as valid with Skipped set. Operators
// who rely on signatures must configure a public key and enable
// RequireSignature; a checksum alone only proves the installer matches the
// manifest that travelled with it.
package updater

import (
	"errors"
	"runtime"
)

const (
	// ManifestFile is the manifest name looked up inside package directories.
	ManifestFile = "update-info.json"
	// DefaultChecksumFile is used when the manifest names no checksum file.
	DefaultChecksumFile = "checksums.sha256"
	// DefaultPlatform is used when the manifest names no platform.
	DefaultPlatform = "win32"
)

// ErrInstallerNotFound is returned when the package installer is absent on disk.
var ErrInstallerNotFound = errors.New("installer not found")

// ErrUnsupportedInstaller is returned for installer types that cannot be launched.
var ErrUnsupportedInstaller = errors.New("unsupported installer type")

// ErrUnsupportedPlatform is returned when a package targets another platform.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ErrUnsafeManifestPath is returned when a manifest names a file outside its
// package directory.
var ErrUnsafeManifestPath = errors.New("manifest file path leaves the package directory")

// ErrVersionTooOld is returned when the running version is below the
// package's minimum version.
var ErrVersionTooOld = errors.New("current version is below package minimum version")

// Checksum errors. Their messages are shown to operators verbatim.
var (
	ErrChecksumFileNotFound = errors.New("Checksum file not found")
	ErrChecksumNotFound     = errors.New("Checksum not found for installer")
	ErrChecksumMismatch     = errors.New("Checksum mismatch")
)

// Signature errors.
var (
	ErrSignatureRequired = errors.New("signature required but package has no signature file")
	ErrSignatureInvalid  = errors.New("signature verification failed")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// CurrentPlatform maps the running OS to the manifest platform naming.
func CurrentPlatform() string {
	return platformFor(runtime.GOOS)
}

func platformFor(goos string) string {
	switch goos {
	case "windows":
		return "win32"
	default:
		return goos
	}
}
