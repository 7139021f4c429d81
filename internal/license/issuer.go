package license

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Store persists issued license records.
type Store interface {
	SaveRecord(ctx context.Context, rec *Record) error
}

// Clock returns the current time.
type Clock func() time.Time

// IssuerConfig holds the dependencies of an Issuer.
type IssuerConfig struct {
	Catalog *Catalog
	Signer  *Signer
	// Store is optional. When set, every issued record is persisted before
	// Issue returns.
	Store  Store
	Clock  Clock
	Logger zerolog.Logger
}

// IssueRequest describes a license to issue.
type IssueRequest struct {
	FactoryName string
	// FactoryID overrides the derived FAC-{NAME6}-{timestamp} id.
	FactoryID string
	Standards []string
	// ExpiryDate is truncated to its UTC date. Nil issues a lifetime license.
	ExpiryDate *time.Time
	MaxUsers   *int
}

// Issuer creates signed license records.
type Issuer struct {
	catalog *Catalog
	signer  *Signer
	store   Store
	clock   Clock
	logger  zerolog.Logger
}

// NewIssuer creates an Issuer. Catalog defaults to DefaultCatalog and Clock to
// time.Now; a Signer is required.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Signer == nil {
		return nil, ErrMissingSecret
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Issuer{
		catalog: cfg.Catalog,
		signer:  cfg.Signer,
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With().Str("component", "license_issuer").Logger(),
	}, nil
}

// Issue validates the request, signs a license key and returns the record.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*Record, error) {
	name := strings.TrimSpace(req.FactoryName)
	if name == "" {
		return nil, ErrFactoryNameRequired
	}

	codes := i.catalog.Filter(req.Standards)
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoValidStandards, req.Standards)
	}

	now := i.clock()

	factoryID := strings.TrimSpace(req.FactoryID)
	if factoryID != "" {
		if err := ValidateFactoryID(factoryID); err != nil {
			return nil, err
		}
	} else {
		id, err := DeriveFactoryID(name, now)
		if err != nil {
			return nil, err
		}
		factoryID = id
	}

	if req.MaxUsers != nil && *req.MaxUsers < 1 {
		return nil, fmt.Errorf("max users must be positive, got %d", *req.MaxUsers)
	}

	expiry := ExpiryDate(req.ExpiryDate)
	standardsCodes := EncodeStandards(codes)
	expiryToken := FormatExpiry(expiry)

	key := formatKey(keyParts{
		FactoryID:      factoryID,
		StandardsCodes: standardsCodes,
		ExpiryToken:    expiryToken,
		Signature:      i.signer.Sign(factoryID, standardsCodes, expiryToken),
	})

	rec := &Record{
		FactoryID:           factoryID,
		FactoryName:         name,
		PurchasedStandards:  i.catalog.Standards(codes),
		StandardsShortCodes: codes,
		ExpiryDate:          expiry,
		IsLifetime:          expiry == nil,
		MaxUsers:            req.MaxUsers,
		GeneratedAt:         now.UTC(),
		TotalPrice:          i.catalog.Price(codes),
		LicenseKey:          key,
	}

	if i.store != nil {
		if err := i.store.SaveRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist license record: %w", err)
		}
	}

	i.logger.Info().
		Str("factory_id", factoryID).
		Strs("standards", codes).
		Str("expiry", expiryToken).
		Str("license_key", MaskKey(key)).
		Msg("license issued")

	return rec, nil
}

// MaskKey hides the signature of a license key for logging.
func MaskKey(key string) string {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return "****"
	}
	return key[:idx+1] + "****"
}
