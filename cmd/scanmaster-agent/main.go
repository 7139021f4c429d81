// Package main is the entrypoint for the ScanMaster agent CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/scanmaster/internal/airgap"
	"github.com/MacJediWizard/scanmaster/internal/config"
	"github.com/MacJediWizard/scanmaster/internal/license"
	"github.com/MacJediWizard/scanmaster/internal/updater"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// errReported marks failures whose report has already been printed.
var errReported = errors.New("failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scanmaster-agent",
		Short: "ScanMaster agent - offline licensing and updates",
		Long: `ScanMaster Agent verifies license keys and installs updates delivered on
removable media. It runs fully offline.

Run 'scanmaster-agent serve' to start the local API used by the ScanMaster
application.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLicenseCmd(),
		newUpdatesCmd(),
		newWatchCmd(),
		newServeCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ScanMaster Agent %s\n", Version)
			fmt.Fprintf(w, "  Commit:     %s\n", Commit)
			fmt.Fprintf(w, "  Built:      %s\n", BuildDate)
			fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(w, "  Platform:   %s\n", updater.CurrentPlatform())
		},
	}
}

// agent bundles configuration and the services built from it.
type agent struct {
	cfg        *config.Config
	configPath string
	env        config.EnvConfig
	logger     zerolog.Logger
}

func loadAgent() (*agent, error) {
	e := config.LoadEnv()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("version", Version).Logger()
	if !e.IsProduction() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level := zerolog.InfoLevel
	if e.LogLevel != "" {
		if parsed, err := zerolog.ParseLevel(e.LogLevel); err == nil {
			level = parsed
		}
	}
	logger = logger.Level(level)

	path, err := e.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv(e)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &agent{cfg: cfg, configPath: path, env: e, logger: logger}, nil
}

// appVersion is the host application version used for update and license
// checks.
func (a *agent) appVersion() string {
	if a.cfg.AppVersion != "" {
		return a.cfg.AppVersion
	}
	return Version
}

// verifier returns nil without error when no license secret is configured.
func (a *agent) verifier() (*license.Verifier, error) {
	if a.env.LicenseSecret == "" {
		return nil, nil
	}
	signer, err := license.NewSigner([]byte(a.env.LicenseSecret))
	if err != nil {
		return nil, err
	}
	catalog, err := a.cfg.LicenseCatalog()
	if err != nil {
		return nil, err
	}
	return license.NewVerifier(license.VerifierConfig{
		Catalog: catalog,
		Signer:  signer,
		Policy:  a.cfg.Policy,
		Logger:  a.logger,
	})
}

func (a *agent) scanner() *updater.Scanner {
	return updater.NewScanner(a.appVersion(), a.logger)
}

func (a *agent) pipeline(observer updater.Observer, progress updater.ProgressFunc) (*updater.Pipeline, error) {
	publicKey, err := a.cfg.UpdatePublicKey()
	if err != nil {
		return nil, err
	}
	return updater.NewPipeline(updater.PipelineConfig{
		Integrity: updater.NewIntegrity(updater.IntegrityConfig{
			PublicKey:        publicKey,
			RequireSignature: a.cfg.Updates.RequireSignature,
			Progress:         progress,
			Logger:           a.logger,
		}),
		Installer: updater.NewInstaller(updater.InstallerConfig{
			SettleDelay: a.cfg.Updates.SettleDelay,
			Logger:      a.logger,
		}),
		Platform: a.cfg.Updates.Platform,
		Observer: observer,
		Logger:   a.logger,
	})
}

// mediaRoots returns the configured roots plus detected removable media.
func (a *agent) mediaRoots(ctx context.Context) []string {
	var lister airgap.PartitionLister
	if a.cfg.ShouldDetectMedia() {
		lister = airgap.SystemPartitions{}
	}
	roots, err := airgap.MediaRoots(ctx, lister, a.cfg.Updates.MediaRoots)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to detect removable media")
	}
	return roots
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatStates(states []updater.State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " -> ")
}
