package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manifest is the update-info.json document shipped with a package.
type Manifest struct {
	Version       string `json:"version"`
	InstallerFile string `json:"installerFile"`
	ChecksumFile  string `json:"checksumFile,omitempty"`
	SignatureFile string `json:"signatureFile,omitempty"`
	MinVersion    string `json:"minVersion,omitempty"`
	Platform      string `json:"platform,omitempty"`
	Size          *int64 `json:"size,omitempty"`
	ReleaseDate   string `json:"releaseDate,omitempty"`
	Changelog     string `json:"changelog,omitempty"`
}

// ReadManifest reads and validates a manifest file, applying defaults.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest JSON. Version and installerFile are required.
// File names must stay inside the package directory.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	m.Version = strings.TrimSpace(m.Version)
	m.InstallerFile = strings.TrimSpace(m.InstallerFile)
	if m.Version == "" || m.InstallerFile == "" {
		return nil, fmt.Errorf("invalid manifest: missing version or installerFile")
	}

	if m.ChecksumFile == "" {
		m.ChecksumFile = DefaultChecksumFile
	}
	for field, name := range map[string]string{
		"installerFile": m.InstallerFile,
		"checksumFile":  m.ChecksumFile,
		"signatureFile": m.SignatureFile,
	} {
		if name != "" && !filepath.IsLocal(filepath.FromSlash(name)) {
			return nil, fmt.Errorf("%w: %s %q", ErrUnsafeManifestPath, field, name)
		}
	}
	if m.Platform == "" {
		m.Platform = DefaultPlatform
	}
	return &m, nil
}
