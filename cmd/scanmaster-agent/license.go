package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MacJediWizard/scanmaster/internal/license"
)

func newLicenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Inspect license keys",
	}
	cmd.AddCommand(newLicenseVerifyCmd())
	return cmd
}

func newLicenseVerifyCmd() *cobra.Command {
	var file string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify [key]",
		Short: "Verify a license key",
		Long: `Verify a license key given as an argument, read from --file, or read
from the license_file configured for the agent.

The file may hold a license record (JSON) or the bare key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadAgent()
			if err != nil {
				return err
			}

			key, err := resolveKey(args, file, a.cfg.LicenseFile)
			if err != nil {
				return err
			}

			verifier, err := a.verifier()
			if err != nil {
				return err
			}
			if verifier == nil {
				return fmt.Errorf("%w: set LICENSE_SECRET", license.ErrMissingSecret)
			}

			result := verifier.Verify(key)
			var applicability *license.Applicability
			if result.Valid {
				app := verifier.CheckApplicability(result.License, a.appVersion(), time.Now())
				applicability = &app
			}

			w := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(w, struct {
					license.Result
					Applicability *license.Applicability `json:"applicability,omitempty"`
				}{result, applicability}); err != nil {
					return err
				}
			} else {
				printLicense(w, result, applicability)
			}

			if !result.Valid || applicability.Expired || !applicability.VersionSupported {
				return errReported
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read the key from a license record or key file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

// resolveKey picks the key from the argument, --file, or the configured
// license file, in that order.
func resolveKey(args []string, file, configured string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if file == "" {
		file = configured
	}
	if file == "" {
		return "", errors.New("no license key given: pass a key, --file, or set license_file")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read license file: %w", err)
	}

	var rec license.Record
	if err := json.Unmarshal(data, &rec); err == nil && rec.LicenseKey != "" {
		return rec.LicenseKey, nil
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("license file %s is empty", file)
	}
	return key, nil
}

func printLicense(w io.Writer, result license.Result, a *license.Applicability) {
	if !result.Valid {
		fmt.Fprintf(w, "License INVALID (%s): %s\n", result.Reason, result.Message)
		return
	}

	l := result.License
	fmt.Fprintln(w, "License VALID")
	fmt.Fprintf(w, "  Factory ID:  %s\n", l.FactoryID)
	fmt.Fprintf(w, "  Standards:   %s\n", strings.Join(l.PurchasedStandards, ", "))
	if l.IsLifetime {
		fmt.Fprintln(w, "  Expiry:      LIFETIME")
	} else {
		fmt.Fprintf(w, "  Expiry:      %s\n", l.ExpiryDate.Format("2006-01-02"))
	}

	switch {
	case a.Expired:
		fmt.Fprintln(w, "  Status:      EXPIRED")
	case a.DaysRemaining >= 0:
		fmt.Fprintf(w, "  Status:      active, %d days remaining\n", a.DaysRemaining)
	default:
		fmt.Fprintln(w, "  Status:      active")
	}
	if !a.VersionSupported {
		fmt.Fprintln(w, "  Version:     not supported by this license")
	}
}
