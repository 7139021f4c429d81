package license

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/version"
)

// Reason classifies why a license key failed verification.
type Reason string

// Verification failure reasons.
const (
	ReasonMalformed Reason = "malformed"
	ReasonPrefix    Reason = "prefix"
	ReasonSignature Reason = "signature"
	ReasonExpiry    Reason = "expiry"
	ReasonStandards Reason = "standards"
)

// Policy holds business rules applied on top of cryptographic validity.
type Policy struct {
	// MinAppVersion is the lowest application version the license supports.
	// Empty means any version.
	MinAppVersion string `json:"minAppVersion,omitempty" yaml:"min_app_version"`
}

// VerifierConfig holds the dependencies of a Verifier.
type VerifierConfig struct {
	Catalog *Catalog
	Signer  *Signer
	Policy  Policy
	Logger  zerolog.Logger
}

// ParsedLicense is the authenticated content of a license key.
type ParsedLicense struct {
	FactoryID          string     `json:"factoryId"`
	StandardsCodes     string     `json:"standardsCodes"`
	ShortCodes         []string   `json:"standardsShortCodes"`
	PurchasedStandards []string   `json:"purchasedStandards"`
	ExpiryDate         *time.Time `json:"expiryDate"`
	IsLifetime         bool       `json:"isLifetime"`
	Signature          string     `json:"signature"`
}

// Result is the outcome of Verify.
type Result struct {
	Valid   bool           `json:"valid"`
	Reason  Reason         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
	License *ParsedLicense `json:"license,omitempty"`
}

// Applicability is the business view of a valid license at a point in time.
type Applicability struct {
	Expired bool `json:"expired"`
	// DaysRemaining is -1 for lifetime licenses and 0 once expired.
	DaysRemaining    int             `json:"daysRemaining"`
	StandardsGranted map[string]bool `json:"standardsGranted"`
	VersionSupported bool            `json:"versionSupported"`
}

// Verifier checks license keys against the shared secret.
type Verifier struct {
	catalog *Catalog
	signer  *Signer
	policy  Policy
	logger  zerolog.Logger
}

// NewVerifier creates a Verifier. Catalog defaults to DefaultCatalog; a Signer
// is required.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Signer == nil {
		return nil, ErrMissingSecret
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	return &Verifier{
		catalog: cfg.Catalog,
		signer:  cfg.Signer,
		policy:  cfg.Policy,
		logger:  cfg.Logger.With().Str("component", "license_verifier").Logger(),
	}, nil
}

// Parse authenticates a license key and decodes its fields. The signature is
// checked before the expiry and standards blocks are interpreted.
func (v *Verifier) Parse(key string) (*ParsedLicense, error) {
	parts, err := splitKey(strings.TrimSpace(key))
	if err != nil {
		return nil, err
	}

	if !v.signer.Verify(parts.FactoryID, parts.StandardsCodes, parts.ExpiryToken, parts.Signature) {
		return nil, ErrInvalidSignature
	}

	expiry, err := ParseExpiry(parts.ExpiryToken)
	if err != nil {
		return nil, err
	}

	codes, err := v.catalog.DecodeStandards(parts.StandardsCodes)
	if err != nil {
		return nil, err
	}

	return &ParsedLicense{
		FactoryID:          parts.FactoryID,
		StandardsCodes:     parts.StandardsCodes,
		ShortCodes:         codes,
		PurchasedStandards: v.catalog.Standards(codes),
		ExpiryDate:         expiry,
		IsLifetime:         expiry == nil,
		Signature:          parts.Signature,
	}, nil
}

// Verify reports whether key is authentic. It never returns an error and never
// panics; failures are described by Result.Reason.
func (v *Verifier) Verify(key string) Result {
	parsed, err := v.Parse(key)
	if err != nil {
		reason := reasonFor(err)
		v.logger.Debug().
			Str("license_key", MaskKey(strings.TrimSpace(key))).
			Str("reason", string(reason)).
			Err(err).
			Msg("license verification failed")
		return Result{Valid: false, Reason: reason, Message: err.Error()}
	}
	return Result{Valid: true, License: parsed}
}

// CheckApplicability evaluates a parsed license at now for the running
// application version. It performs no cryptography.
func (v *Verifier) CheckApplicability(parsed *ParsedLicense, currentAppVersion string, now time.Time) Applicability {
	a := Applicability{
		DaysRemaining:    -1,
		StandardsGranted: make(map[string]bool, len(parsed.PurchasedStandards)),
		VersionSupported: version.AtLeast(currentAppVersion, v.policy.MinAppVersion),
	}
	for _, std := range parsed.PurchasedStandards {
		a.StandardsGranted[std] = true
	}

	if parsed.ExpiryDate != nil {
		remaining := parsed.ExpiryDate.Sub(now)
		a.Expired = now.After(*parsed.ExpiryDate)
		if a.Expired {
			a.DaysRemaining = 0
		} else {
			a.DaysRemaining = int(remaining.Hours() / 24)
		}
	}
	return a
}

// reasonFor maps a Parse error to its Reason.
func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrInvalidPrefix):
		return ReasonPrefix
	case errors.Is(err, ErrInvalidSignature):
		return ReasonSignature
	case errors.Is(err, ErrInvalidExpiry):
		return ReasonExpiry
	case errors.Is(err, ErrUnknownStandards):
		return ReasonStandards
	default:
		return ReasonMalformed
	}
}
