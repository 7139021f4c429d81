// Package main is the entrypoint for the ScanMaster license generator CLI.
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
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/scanmaster/internal/config"
	"github.com/MacJediWizard/scanmaster/internal/license"
	"github.com/MacJediWizard/scanmaster/internal/registry"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// errInvalidLicense signals a failed verification. Its report has already
// been printed, so main only sets the exit code.
var errInvalidLicense = errors.New("license invalid")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvalidLicense) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// options holds the flat flag surface of the root command.
type options struct {
	factory   string
	factoryID string
	standards string
	lifetime  bool
	expiry    string
	verify    string
	maxUsers  int
	out       string
	registry  string
	json      bool
}

// env bundles what every command needs from the environment and config file.
type env struct {
	cfg     *config.Config
	env     config.EnvConfig
	catalog *license.Catalog
	logger  zerolog.Logger
}

func loadEnv() (*env, error) {
	e := config.LoadEnv()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if !e.IsProduction() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level := zerolog.WarnLevel
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
		return nil, err
	}
	cfg.ApplyEnv(e)

	catalog, err := cfg.LicenseCatalog()
	if err != nil {
		return nil, fmt.Errorf("load license catalog: %w", err)
	}

	return &env{cfg: cfg, env: e, catalog: catalog, logger: logger}, nil
}

// signer returns the HMAC signer. Issuing and verifying refuse to run
// without an explicit secret.
func (e *env) signer() (*license.Signer, error) {
	signer, err := license.NewSigner([]byte(e.env.LicenseSecret))
	if err != nil {
		return nil, fmt.Errorf("%w: set LICENSE_SECRET", err)
	}
	return signer, nil
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "scanmaster-license",
		Short: "Generate and verify ScanMaster license keys",
		Long: `Generate signed ScanMaster license keys for a factory, or verify an
existing key.

The signing secret is read from LICENSE_SECRET and is required.

Examples:
  scanmaster-license -f "Acme Corp" -s AMS,ASTM -l
  scanmaster-license -f "Acme Corp" -s AMS -e 2027-12-31 --max-users 5
  scanmaster-license -v SM-FAC-ACMECO-ABC123-AMSASTM-LIFETIME-0123456789AB`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("verify") {
				return runVerify(cmd.OutOrStdout(), e, opts)
			}
			return runIssue(cmd.Context(), cmd.OutOrStdout(), e, opts, cmd.Flags().Changed("max-users"))
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.factory, "factory", "f", "", "Factory name (required to issue)")
	flags.StringVarP(&opts.standards, "standards", "s", "AMS,ASTM", "Comma-separated standard short codes")
	flags.BoolVarP(&opts.lifetime, "lifetime", "l", false, "Issue a lifetime license (default when no expiry is given)")
	flags.StringVarP(&opts.expiry, "expiry", "e", "", "Expiry date (YYYY-MM-DD)")
	flags.StringVarP(&opts.verify, "verify", "v", "", "Verify a license key instead of issuing one")
	flags.IntVar(&opts.maxUsers, "max-users", 0, "Maximum users (informational, not signed)")
	flags.StringVar(&opts.factoryID, "factory-id", "", "Use this factory id instead of deriving one")
	flags.StringVar(&opts.out, "out", "", "Write the license record as JSON to this file")
	flags.StringVar(&opts.registry, "registry", "", "Record issued licenses in this SQLite registry (default from config)")
	flags.BoolVar(&opts.json, "json", false, "Print JSON instead of text")
	rootCmd.MarkFlagsMutuallyExclusive("lifetime", "expiry")

	rootCmd.AddCommand(
		newListCmd(),
		newCatalogCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func runIssue(ctx context.Context, w io.Writer, e *env, opts options, maxUsersSet bool) error {
	if strings.TrimSpace(opts.factory) == "" {
		return errors.New("--factory is required to issue a license (see --help)")
	}

	req := license.IssueRequest{
		FactoryName: opts.factory,
		FactoryID:   opts.factoryID,
		Standards:   splitList(opts.standards),
	}
	if opts.expiry != "" {
		expiry, err := time.Parse("2006-01-02", opts.expiry)
		if err != nil {
			return fmt.Errorf("invalid --expiry %q: expected YYYY-MM-DD", opts.expiry)
		}
		req.ExpiryDate = &expiry
	}
	if maxUsersSet {
		maxUsers := opts.maxUsers
		req.MaxUsers = &maxUsers
	}

	signer, err := e.signer()
	if err != nil {
		return err
	}

	cfg := license.IssuerConfig{Catalog: e.catalog, Signer: signer, Logger: e.logger}

	registryPath := opts.registry
	if registryPath == "" {
		registryPath = e.cfg.RegistryPath
	}
	if registryPath != "" {
		store, err := registry.Open(registryPath, e.logger)
		if err != nil {
			return err
		}
		defer store.Close()
		cfg.Store = store
	}
	if opts.out != "" {
		// The record file goes first; a failed --out leaves no registry row.
		cfg.Store = &license.FileStore{Path: opts.out, Next: cfg.Store}
	}

	issuer, err := license.NewIssuer(cfg)
	if err != nil {
		return err
	}

	rec, err := issuer.Issue(ctx, req)
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(w, rec)
	}

	fmt.Fprintln(w, "License generated")
	fmt.Fprintf(w, "  Factory:    %s (%s)\n", rec.FactoryName, rec.FactoryID)
	fmt.Fprintf(w, "  Standards:  %s\n", strings.Join(rec.PurchasedStandards, ", "))
	fmt.Fprintf(w, "  Expiry:     %s\n", formatExpiry(rec.ExpiryDate))
	fmt.Fprintf(w, "  Max users:  %s\n", formatMaxUsers(rec.MaxUsers))
	fmt.Fprintf(w, "  Price:      %.2f\n", rec.TotalPrice)
	if opts.out != "" {
		fmt.Fprintf(w, "  Record:     %s\n", opts.out)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, rec.LicenseKey)
	return nil
}

func runVerify(w io.Writer, e *env, opts options) error {
	signer, err := e.signer()
	if err != nil {
		return err
	}
	verifier, err := license.NewVerifier(license.VerifierConfig{
		Catalog: e.catalog,
		Signer:  signer,
		Policy:  e.cfg.Policy,
		Logger:  e.logger,
	})
	if err != nil {
		return err
	}

	result := verifier.Verify(opts.verify)
	var applicability *license.Applicability
	if result.Valid {
		a := verifier.CheckApplicability(result.License, Version, time.Now())
		applicability = &a
	}

	if opts.json {
		if err := writeJSON(w, struct {
			license.Result
			Applicability *license.Applicability `json:"applicability,omitempty"`
		}{result, applicability}); err != nil {
			return err
		}
	} else {
		printVerification(w, result, applicability)
	}

	if !result.Valid {
		return errInvalidLicense
	}
	return nil
}

func printVerification(w io.Writer, result license.Result, a *license.Applicability) {
	if !result.Valid {
		fmt.Fprintf(w, "License INVALID (%s): %s\n", result.Reason, result.Message)
		return
	}

	l := result.License
	fmt.Fprintln(w, "License VALID")
	fmt.Fprintf(w, "  Factory ID: %s\n", l.FactoryID)
	fmt.Fprintf(w, "  Standards:  %s\n", strings.Join(l.PurchasedStandards, ", "))
	fmt.Fprintf(w, "  Expiry:     %s\n", formatExpiry(l.ExpiryDate))
	if a == nil {
		return
	}
	switch {
	case a.Expired:
		fmt.Fprintln(w, "  Status:     EXPIRED")
	case a.DaysRemaining >= 0:
		fmt.Fprintf(w, "  Status:     active, %d days remaining\n", a.DaysRemaining)
	default:
		fmt.Fprintln(w, "  Status:     active")
	}
}

func newListCmd() *cobra.Command {
	var registryPath, factoryID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List licenses recorded in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if registryPath == "" {
				registryPath = e.cfg.RegistryPath
			}
			if registryPath == "" {
				return errors.New("no registry configured: pass --registry or set registry_path")
			}

			store, err := registry.Open(registryPath, e.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), registry.ListFilter{FactoryID: factoryID, Limit: limit})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(w, "No licenses recorded")
				return nil
			}

			fmt.Fprintf(w, "%-20s %-24s %-28s %-10s %s\n", "GENERATED", "FACTORY ID", "FACTORY", "EXPIRY", "KEY")
			fmt.Fprintln(w, strings.Repeat("-", 110))
			for _, entry := range entries {
				fmt.Fprintf(w, "%-20s %-24s %-28s %-10s %s\n",
					entry.Record.GeneratedAt.Format("2006-01-02 15:04:05"),
					entry.Record.FactoryID,
					truncate(entry.Record.FactoryName, 28),
					formatExpiry(entry.Record.ExpiryDate),
					license.MaskKey(entry.Record.LicenseKey))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "SQLite registry path (default from config)")
	cmd.Flags().StringVar(&factoryID, "factory-id", "", "Only list licenses of this factory")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of licenses to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")

	return cmd
}

func newCatalogCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the standards that can be licensed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			entries := e.catalog.Entries()
			if asJSON {
				return writeJSON(w, entries)
			}

			fmt.Fprintf(w, "%-8s %-24s %10s\n", "CODE", "STANDARD", "PRICE")
			fmt.Fprintln(w, strings.Repeat("-", 44))
			for _, ent := range entries {
				fmt.Fprintf(w, "%-8s %-24s %10.2f\n", ent.ShortCode, ent.Standard, ent.Price)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ScanMaster License Generator %s\n", Version)
			fmt.Fprintf(w, "  Commit:     %s\n", Commit)
			fmt.Fprintf(w, "  Built:      %s\n", BuildDate)
			fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "LIFETIME"
	}
	return t.UTC().Format("2006-01-02")
}

func formatMaxUsers(n *int) string {
	if n == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%d", *n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
