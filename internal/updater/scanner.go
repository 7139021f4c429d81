package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/version"
)

// manifestPattern matches manifest files placed directly in a scanned directory.
const manifestPattern = "*update-info*.json"

// Package is an update package found on disk. It is rebuilt on every scan.
type Package struct {
	Path             string `json:"path"`
	ManifestPath     string `json:"manifestPath"`
	Version          string `json:"version"`
	IsNewer          bool   `json:"isNewer"`
	MinVersion       string `json:"minVersion,omitempty"`
	MeetsMinVersion  bool   `json:"meetsMinVersion"`
	InstallerFile    string `json:"installerFile"`
	ChecksumFile     string `json:"checksumFile"`
	SignatureFile    string `json:"signatureFile,omitempty"`
	Platform         string `json:"platform"`
	Size             *int64 `json:"size,omitempty"`
	ActualSize       *int64 `json:"actualSize,omitempty"`
	InstallerMissing bool   `json:"installerMissing"`
	ReleaseDate      string `json:"releaseDate,omitempty"`
	Changelog        string `json:"changelog,omitempty"`
}

// InstallerPath returns the absolute installer location.
func (p *Package) InstallerPath() string {
	return filepath.Join(p.Path, p.InstallerFile)
}

// ScanResult is the outcome of scanning one or more directories.
type ScanResult struct {
	Found    bool       `json:"found"`
	Packages []*Package `json:"packages"`
	Errors   []string   `json:"errors"`
}

// Scanner finds update packages below a directory.
type Scanner struct {
	currentVersion string
	logger         zerolog.Logger
}

// NewScanner creates a Scanner that compares packages against currentVersion.
func NewScanner(currentVersion string, logger zerolog.Logger) *Scanner {
	return &Scanner{
		currentVersion: currentVersion,
		logger:         logger.With().Str("component", "update_scanner").Logger(),
	}
}

// CurrentVersion returns the version packages are compared against.
func (s *Scanner) CurrentVersion() string {
	return s.currentVersion
}

// Scan inspects dir. A bad entry is recorded in Errors and the scan
// continues; Scan itself never fails.
func (s *Scanner) Scan(ctx context.Context, dir string) *ScanResult {
	result := &ScanResult{Packages: []*Package{}, Errors: []string{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read directory %s: %v", dir, err))
		return result
	}
	result.Found = true

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("scan %s: %v", dir, err))
			break
		}

		var pkgDir, manifestPath string
		switch {
		case entry.IsDir():
			pkgDir = filepath.Join(dir, entry.Name())
			manifestPath = filepath.Join(pkgDir, ManifestFile)
			if _, err := os.Stat(manifestPath); err != nil {
				if !os.IsNotExist(err) {
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", manifestPath, err))
				}
				continue
			}
		default:
			if ok, _ := filepath.Match(manifestPattern, entry.Name()); !ok {
				continue
			}
			pkgDir = dir
			manifestPath = filepath.Join(dir, entry.Name())
		}

		pkg, err := s.loadPackage(pkgDir, manifestPath)
		if err != nil {
			s.logger.Warn().Err(err).Str("manifest", manifestPath).Msg("skipping invalid update package")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", manifestPath, err))
			continue
		}
		result.Packages = append(result.Packages, pkg)
	}

	sortNewestFirst(result.Packages)

	s.logger.Debug().
		Str("dir", dir).
		Int("packages", len(result.Packages)).
		Int("errors", len(result.Errors)).
		Msg("update scan complete")

	return result
}

// ScanRoots scans several directories and merges the results. Found is true
// when at least one root could be read.
func (s *Scanner) ScanRoots(ctx context.Context, roots []string) *ScanResult {
	merged := &ScanResult{Packages: []*Package{}, Errors: []string{}}
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			merged.Errors = append(merged.Errors, fmt.Sprintf("scan: %v", err))
			break
		}
		r := s.Scan(ctx, root)
		merged.Found = merged.Found || r.Found
		merged.Packages = append(merged.Packages, r.Packages...)
		merged.Errors = append(merged.Errors, r.Errors...)
	}
	sortNewestFirst(merged.Packages)
	return merged
}

// LoadPackage reads the package in pkgDir without scanning siblings.
func (s *Scanner) LoadPackage(pkgDir string) (*Package, error) {
	return s.loadPackage(pkgDir, filepath.Join(pkgDir, ManifestFile))
}

func (s *Scanner) loadPackage(pkgDir, manifestPath string) (*Package, error) {
	m, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	pkg := &Package{
		Path:            pkgDir,
		ManifestPath:    manifestPath,
		Version:         m.Version,
		IsNewer:         version.IsNewer(m.Version, s.currentVersion),
		MinVersion:      m.MinVersion,
		MeetsMinVersion: version.AtLeast(s.currentVersion, m.MinVersion),
		InstallerFile:   m.InstallerFile,
		ChecksumFile:    m.ChecksumFile,
		SignatureFile:   m.SignatureFile,
		Platform:        m.Platform,
		Size:            m.Size,
		ReleaseDate:     m.ReleaseDate,
		Changelog:       m.Changelog,
	}

	info, err := os.Stat(pkg.InstallerPath())
	if err != nil || info.IsDir() {
		pkg.InstallerMissing = true
	} else {
		size := info.Size()
		pkg.ActualSize = &size
	}
	return pkg, nil
}

func sortNewestFirst(pkgs []*Package) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		return version.Compare(pkgs[i].Version, pkgs[j].Version) > 0
	})
}
