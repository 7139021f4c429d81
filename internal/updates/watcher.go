// Package updates watches update media for new ScanMaster packages.
package updates

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/airgap"
	"github.com/MacJediWizard/scanmaster/internal/updater"
)

// DefaultSchedule rescans media every 30 seconds.
const DefaultSchedule = "*/30 * * * * *"

// Snapshot is the result of the most recent media scan.
type Snapshot struct {
	UpdateAvailable bool                `json:"updateAvailable"`
	CurrentVersion  string              `json:"currentVersion"`
	Latest          *updater.Package    `json:"latest,omitempty"`
	Roots           []string            `json:"roots"`
	Result          *updater.ScanResult `json:"result"`
	CheckedAt       time.Time           `json:"checkedAt"`
}

// Observer is notified after every scan.
type Observer interface {
	ObserveScan(packages, errors int, duration time.Duration)
}

// Config holds configuration for the media watcher.
type Config struct {
	// Schedule is a cron expression with a seconds field.
	Schedule string
	// Roots are always scanned, in addition to detected removable media.
	Roots []string
	// DetectMedia adds removable media mountpoints to the scanned roots.
	DetectMedia bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:    DefaultSchedule,
		DetectMedia: true,
	}
}

// Watcher periodically scans update media and caches the result.
type Watcher struct {
	config   Config
	scanner  *updater.Scanner
	lister   airgap.PartitionLister
	observer Observer
	cron     *cron.Cron
	logger   zerolog.Logger

	mu       sync.RWMutex
	running  bool
	cached   *Snapshot
	scanning sync.Mutex
}

// NewWatcher creates a Watcher. lister may be nil to disable media detection.
func NewWatcher(config Config, scanner *updater.Scanner, lister airgap.PartitionLister, observer Observer, logger zerolog.Logger) *Watcher {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	return &Watcher{
		config:   config,
		scanner:  scanner,
		lister:   lister,
		observer: observer,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With().Str("component", "update_watcher").Logger(),
	}
}

// Start schedules periodic scans and runs the first scan immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Str("schedule", w.config.Schedule).
		Strs("roots", w.config.Roots).
		Msg("starting update watcher")

	if _, err := w.cron.AddFunc(w.config.Schedule, func() {
		w.ScanNow(ctx)
	}); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.ScanNow(ctx)
	w.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once a running
// scan has finished.
func (w *Watcher) Stop() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	w.running = false
	w.logger.Info().Msg("stopping update watcher")
	return w.cron.Stop()
}

// ScanNow scans all roots immediately and replaces the cached snapshot.
// Concurrent calls are serialised.
func (w *Watcher) ScanNow(ctx context.Context) *Snapshot {
	w.scanning.Lock()
	defer w.scanning.Unlock()

	start := time.Now()

	roots, err := w.Roots(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to detect removable media")
	}

	result := w.scanner.ScanRoots(ctx, roots)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	snap := &Snapshot{
		CurrentVersion: w.scanner.CurrentVersion(),
		Roots:          roots,
		Result:         result,
		CheckedAt:      time.Now().UTC(),
	}
	if roots == nil {
		snap.Roots = []string{}
	}
	for _, pkg := range result.Packages {
		if pkg.IsNewer && !pkg.InstallerMissing {
			snap.UpdateAvailable = true
			snap.Latest = pkg
			break
		}
	}

	if snap.UpdateAvailable {
		w.logger.Info().
			Str("current_version", snap.CurrentVersion).
			Str("latest_version", snap.Latest.Version).
			Str("path", snap.Latest.Path).
			Msg("update available")
	}

	if w.observer != nil {
		w.observer.ObserveScan(len(result.Packages), len(result.Errors), time.Since(start))
	}

	w.mu.Lock()
	w.cached = snap
	w.mu.Unlock()

	return snap
}

// Roots returns the configured roots followed by the removable media mounted
// right now. On a detection error the configured roots are still returned.
func (w *Watcher) Roots(ctx context.Context) ([]string, error) {
	var lister airgap.PartitionLister
	if w.config.DetectMedia {
		lister = w.lister
	}
	return airgap.MediaRoots(ctx, lister, w.config.Roots)
}

// Cached returns the most recent snapshot, or nil before the first scan.
func (w *Watcher) Cached() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.cached == nil {
		return nil
	}
	cached := *w.cached
	return &cached
}

// IsRunning reports whether the scheduler is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
