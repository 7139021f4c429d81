// Package airgap provides air-gapped deployment support for ScanMaster.
// Air-gap mode disables features that require internet access and makes
// removable media the only update channel. Licenses are always verified
// offline, so they are unaffected.
package airgap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// DisabledFeature describes a feature that is disabled in air-gap mode.
type DisabledFeature struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// DisabledFeatures returns the list of features disabled in air-gap mode.
func DisabledFeatures() []DisabledFeature {
	return []DisabledFeature{
		{Name: "online_update_check", Reason: "Update server checks require internet access; use removable media"},
		{Name: "online_license_activation", Reason: "Online activation requires internet access; license keys verify offline"},
		{Name: "telemetry", Reason: "Telemetry reporting requires internet access"},
	}
}

// Mount is a mounted volume that may carry update packages.
type Mount struct {
	Device     string `json:"device"`
	Mountpoint string `json:"mountpoint"`
	Fstype     string `json:"fstype"`
}

// PartitionLister lists mounted partitions.
type PartitionLister interface {
	Partitions(ctx context.Context) ([]disk.PartitionStat, error)
}

// SystemPartitions lists partitions with gopsutil.
type SystemPartitions struct{}

// Partitions returns the mounted physical partitions.
func (SystemPartitions) Partitions(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

// removableFstypes are filesystems typically found on USB sticks and SD cards.
var removableFstypes = map[string]bool{
	"vfat":    true,
	"fat":     true,
	"fat16":   true,
	"fat32":   true,
	"exfat":   true,
	"msdos":   true,
	"fuseblk": true,
}

// removableMountPrefixes are where desktop systems auto-mount removable media.
var removableMountPrefixes = []string{"/media/", "/run/media/", "/mnt/usb", "/Volumes/"}

// RemovableMounts returns mounted volumes that look like removable media,
// sorted by mountpoint.
func RemovableMounts(ctx context.Context, lister PartitionLister) ([]Mount, error) {
	parts, err := lister.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	seen := make(map[string]bool)
	var mounts []Mount
	for _, p := range parts {
		if !isRemovable(p, runtime.GOOS) || seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true
		mounts = append(mounts, Mount{Device: p.Device, Mountpoint: p.Mountpoint, Fstype: p.Fstype})
	}

	sort.Slice(mounts, func(i, j int) bool { return mounts[i].Mountpoint < mounts[j].Mountpoint })
	return mounts, nil
}

func isRemovable(p disk.PartitionStat, goos string) bool {
	if p.Mountpoint == "" || p.Mountpoint == "/" {
		return false
	}
	if goos == "windows" {
		// The system drive is never treated as update media.
		system := strings.ToUpper(os.Getenv("SystemDrive"))
		if system == "" {
			system = "C:"
		}
		if strings.HasPrefix(strings.ToUpper(p.Mountpoint), system) {
			return false
		}
		return removableFstypes[strings.ToLower(p.Fstype)]
	}

	for _, prefix := range removableMountPrefixes {
		if strings.HasPrefix(p.Mountpoint, prefix) {
			return true
		}
	}
	return removableFstypes[strings.ToLower(p.Fstype)]
}

// Status summarises the air-gap state of the agent.
type Status struct {
	AirGapMode       bool              `json:"airGapMode"`
	DisabledFeatures []DisabledFeature `json:"disabledFeatures"`
	RemovableMedia   []Mount           `json:"removableMedia"`
}

// CurrentStatus reports the air-gap mode and the removable media found by lister.
func CurrentStatus(ctx context.Context, airGapMode bool, lister PartitionLister) (*Status, error) {
	status := &Status{AirGapMode: airGapMode, DisabledFeatures: []DisabledFeature{}, RemovableMedia: []Mount{}}
	if status.AirGapMode {
		status.DisabledFeatures = DisabledFeatures()
	}

	mounts, err := RemovableMounts(ctx, lister)
	if err != nil {
		return status, err
	}
	if mounts != nil {
		status.RemovableMedia = mounts
	}
	return status, nil
}

// MediaRoots returns the directories to scan for update packages: the
// configured roots followed by the mountpoints of removable media.
func MediaRoots(ctx context.Context, lister PartitionLister, configured []string) ([]string, error) {
	seen := make(map[string]bool)
	var roots []string
	for _, r := range configured {
		if r = strings.TrimSpace(r); r != "" && !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}

	if lister == nil {
		return roots, nil
	}

	mounts, err := RemovableMounts(ctx, lister)
	if err != nil {
		return roots, err
	}
	for _, m := range mounts {
		if !seen[m.Mountpoint] {
			seen[m.Mountpoint] = true
			roots = append(roots, m.Mountpoint)
		}
	}
	return roots, nil
}

// WithinRoots reports whether path lies inside one of roots once both are
// made absolute and symlinks are resolved. A root counts as inside itself.
func WithinRoots(path string, roots []string) bool {
	target, err := resolvePath(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		base, err := resolvePath(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, target)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

func resolvePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
