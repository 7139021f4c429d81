package license

import "errors"

// Issuance errors.
var (
	// ErrMissingSecret indicates no signing secret was configured.
	ErrMissingSecret = errors.New("license signing secret is not configured")
	// ErrFactoryNameRequired indicates the factory name was empty.
	ErrFactoryNameRequired = errors.New("factory name is required")
	// ErrInvalidFactoryName indicates the factory name has no usable characters.
	ErrInvalidFactoryName = errors.New("factory name contains no alphanumeric characters")
	// ErrInvalidFactoryID indicates a caller supplied factory id is not well formed.
	ErrInvalidFactoryID = errors.New("invalid factory id")
	// ErrNoValidStandards indicates none of the requested standards are in the catalog.
	ErrNoValidStandards = errors.New("no valid standards selected")
)

// Verification errors.
var (
	// ErrMalformedKey indicates the key does not have the expected segments.
	ErrMalformedKey = errors.New("malformed license key")
	// ErrInvalidPrefix indicates the key does not start with the product prefix.
	ErrInvalidPrefix = errors.New("invalid license key prefix")
	// ErrInvalidSignature indicates the key signature does not match its fields.
	ErrInvalidSignature = errors.New("invalid license signature")
	// ErrInvalidExpiry indicates the expiry token is not LIFETIME or a valid YYYYMMDD date.
	ErrInvalidExpiry = errors.New("invalid license expiry")
	// ErrUnknownStandards indicates the standards block does not decode against the catalog.
	ErrUnknownStandards = errors.New("license contains unknown standards")
)

// Catalog errors.
var (
	// ErrInvalidCatalog indicates a catalog entry failed validation.
	ErrInvalidCatalog = errors.New("invalid standards catalog")
)
