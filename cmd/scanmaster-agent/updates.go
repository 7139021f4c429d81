package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MacJediWizard/scanmaster/internal/config"
	"github.com/MacJediWizard/scanmaster/internal/updater"
)

func newUpdatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updates",
		Short: "Find, verify and install offline update packages",
	}
	cmd.AddCommand(
		newUpdatesScanCmd(),
		newUpdatesVerifyCmd(),
		newUpdatesInstallCmd(),
	)
	return cmd
}

func newUpdatesScanCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan [dir...]",
		Short: "Scan directories or removable media for update packages",
		Long: `Scan the given directories for update packages. Without arguments the
configured media roots and all detected removable media are scanned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadAgent()
			if err != nil {
				return err
			}

			roots := args
			if len(roots) == 0 {
				roots = a.mediaRoots(cmd.Context())
			}

			result := a.scanner().ScanRoots(cmd.Context(), roots)

			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, result)
			}

			fmt.Fprintf(w, "Current version: %s\n", a.appVersion())
			fmt.Fprintf(w, "Scanned: %s\n\n", strings.Join(roots, ", "))
			printPackages(w, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func printPackages(w io.Writer, result *updater.ScanResult) {
	if !result.Found {
		fmt.Fprintln(w, "No update packages found")
	} else {
		fmt.Fprintf(w, "%-12s %-6s %-10s %-8s %s\n", "VERSION", "NEWER", "INSTALLER", "PLATFORM", "PATH")
		fmt.Fprintln(w, strings.Repeat("-", 80))
		for _, pkg := range result.Packages {
			installer := "ok"
			if pkg.InstallerMissing {
				installer = "missing"
			}
			fmt.Fprintf(w, "%-12s %-6s %-10s %-8s %s\n",
				pkg.Version, yesNo(pkg.IsNewer), installer, pkg.Platform, pkg.Path)
		}
	}

	for _, e := range result.Errors {
		fmt.Fprintf(w, "warning: %s\n", e)
	}
}

func newUpdatesVerifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify <package-dir>",
		Short: "Verify the checksum and signature of an update package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadAgent()
			if err != nil {
				return err
			}

			pkg, err := a.scanner().LoadPackage(args[0])
			if err != nil {
				return err
			}
			pipeline, err := a.pipeline(nil, nil)
			if err != nil {
				return err
			}

			res := pipeline.Verify(cmd.Context(), pkg)
			if err := printPipeline(cmd.OutOrStdout(), res, asJSON); err != nil {
				return err
			}
			if res.Failed() {
				return errReported
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func newUpdatesInstallCmd() *cobra.Command {
	var silent, autoRestart, asJSON bool
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "install <package-dir>",
		Short: "Verify an update package and launch its installer",
		Long: `Verify an update package and launch its installer as a detached process.
The command returns once the installer has started. With --wait it then
polls the app_version recorded in the config file until it reaches the
package version or the wait runs out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadAgent()
			if err != nil {
				return err
			}

			pkg, err := a.scanner().LoadPackage(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			var progress updater.ProgressFunc
			if !asJSON {
				progress = func(read, total int64) {
					if total > 0 {
						fmt.Fprintf(w, "\rVerifying checksum: %.1f%%", float64(read)/float64(total)*100)
					}
				}
			}

			pipeline, err := a.pipeline(nil, progress)
			if err != nil {
				return err
			}

			opts := updater.InstallOptions{
				Silent:      silent || a.cfg.Updates.Silent,
				AutoRestart: autoRestart || a.cfg.Updates.AutoRestart,
			}
			res, runErr := pipeline.Run(cmd.Context(), pkg, opts)
			if progress != nil {
				fmt.Fprintln(w)
			}
			if err := printPipeline(w, res, asJSON); err != nil {
				return err
			}
			if runErr != nil {
				return fmt.Errorf("launch installer: %w", runErr)
			}
			if res.Failed() {
				return errReported
			}
			if wait > 0 {
				return a.waitForInstall(cmd.Context(), w, pkg.Version, wait, installPollInterval, asJSON)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&silent, "silent", false, "Run the installer without UI")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the new version to be recorded (e.g. 5m)")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "Restart the application after installing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

const installPollInterval = 2 * time.Second

// installedVersion re-reads the config file, where the host application
// records its version once it runs again.
func (a *agent) installedVersion(context.Context) (string, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return "", err
	}
	if cfg.AppVersion == "" {
		return Version, nil
	}
	return cfg.AppVersion, nil
}

func (a *agent) waitForInstall(ctx context.Context, w io.Writer, want string, timeout, interval time.Duration, quiet bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !quiet {
		fmt.Fprintf(w, "Waiting up to %s for version %s...\n", timeout, want)
	}
	got, err := updater.WaitForVersion(ctx, a.installedVersion, want, interval)
	if err != nil {
		if got == "" {
			got = "unknown"
		}
		return fmt.Errorf("installed version is %s: %w", got, err)
	}

	a.logger.Info().Str("version", got).Msg("update installed")
	if !quiet {
		fmt.Fprintf(w, "Installed version: %s\n", got)
	}
	return nil
}

func printPipeline(w io.Writer, res *updater.PipelineResult, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res)
	}

	fmt.Fprintf(w, "Package:  %s (%s)\n", res.Package.Version, res.Package.Path)
	fmt.Fprintf(w, "Stages:   %s\n", formatStates(res.History))
	if res.Checksum != nil && res.Checksum.Valid {
		fmt.Fprintf(w, "SHA-256:  %s\n", res.Checksum.Actual)
	}
	if res.Signature != nil && res.Signature.Skipped {
		fmt.Fprintf(w, "Signature: skipped (%s)\n", res.Signature.SkipReason)
	}
	if res.Install != nil {
		fmt.Fprintf(w, "Installer started (pid %d): %s\n", res.Install.PID, res.Install.InstallerPath)
	}
	if res.Failed() {
		fmt.Fprintf(w, "FAILED: %s\n", res.Reason)
	}
	return nil
}
