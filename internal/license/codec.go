package license

import (
	"fmt"
	"strings"
	"time"
)

const (
	// KeyPrefix is the product prefix of every license key.
	KeyPrefix = "SM"
	// LifetimeToken is the expiry token of perpetual licenses.
	LifetimeToken = "LIFETIME"
	// expiryLayout is the fixed-width YYYYMMDD expiry format.
	expiryLayout = "20060102"
	// minKeySegments is prefix, factory id, standards, expiry and signature.
	minKeySegments = 5
)

// EncodeStandards concatenates short codes, uppercased, in input order.
func EncodeStandards(codes []string) string {
	var b strings.Builder
	for _, code := range codes {
		b.WriteString(strings.ToUpper(strings.TrimSpace(code)))
	}
	return b.String()
}

// DecodeStandards splits a standards block back into catalog short codes.
//
// The block must segment exactly into catalog codes; codes are tried longest
// first and the walk backtracks, so a code that is a prefix or substring of
// another never produces a spurious entitlement. Repeated codes collapse.
func (c *Catalog) DecodeStandards(block string) ([]string, error) {
	if block == "" {
		return nil, fmt.Errorf("%w: empty standards block", ErrUnknownStandards)
	}

	dead := make(map[int]bool)
	var walk func(pos int) ([]string, bool)
	walk = func(pos int) ([]string, bool) {
		if pos == len(block) {
			return nil, true
		}
		if dead[pos] {
			return nil, false
		}
		for _, code := range c.codes {
			if !strings.HasPrefix(block[pos:], code) {
				continue
			}
			if rest, ok := walk(pos + len(code)); ok {
				return append([]string{code}, rest...), true
			}
		}
		dead[pos] = true
		return nil, false
	}

	codes, ok := walk(0)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStandards, block)
	}

	seen := make(map[string]bool, len(codes))
	out := codes[:0]
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out, nil
}

// FormatExpiry returns LIFETIME for a nil expiry, otherwise the UTC date as YYYYMMDD.
func FormatExpiry(expiry *time.Time) string {
	if expiry == nil {
		return LifetimeToken
	}
	return expiry.UTC().Format(expiryLayout)
}

// ParseExpiry decodes an expiry token. LIFETIME yields nil. Dates decode to
// midnight UTC and must exist on the calendar.
func ParseExpiry(token string) (*time.Time, error) {
	if token == LifetimeToken {
		return nil, nil
	}
	if len(token) != len(expiryLayout) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExpiry, token)
	}
	t, err := time.ParseInLocation(expiryLayout, token, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExpiry, token)
	}
	return &t, nil
}

// ExpiryDate truncates t to its UTC calendar date. A nil t stays nil.
func ExpiryDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// keyParts are the dash-delimited fields of a license key.
type keyParts struct {
	Prefix         string
	FactoryID      string
	StandardsCodes string
	ExpiryToken    string
	Signature      string
}

// formatKey assembles SM-{factoryId}-{standardsCodes}-{expiryToken}-{signature}.
func formatKey(p keyParts) string {
	return strings.Join([]string{KeyPrefix, p.FactoryID, p.StandardsCodes, p.ExpiryToken, p.Signature}, "-")
}

// splitKey anchors the fixed fields at both ends of the key. The factory id
// is everything between the prefix and the standards block, so factory ids
// containing dashes survive the round trip.
func splitKey(key string) (keyParts, error) {
	segments := strings.Split(key, "-")
	if len(segments) < minKeySegments {
		return keyParts{}, fmt.Errorf("%w: expected at least %d segments, got %d", ErrMalformedKey, minKeySegments, len(segments))
	}

	n := len(segments)
	p := keyParts{
		Prefix:         segments[0],
		FactoryID:      strings.Join(segments[1:n-3], "-"),
		StandardsCodes: segments[n-3],
		ExpiryToken:    segments[n-2],
		Signature:      segments[n-1],
	}

	if p.Prefix != KeyPrefix {
		return p, fmt.Errorf("%w: %q", ErrInvalidPrefix, p.Prefix)
	}
	if p.FactoryID == "" || p.StandardsCodes == "" || p.ExpiryToken == "" || p.Signature == "" {
		return p, fmt.Errorf("%w: empty segment", ErrMalformedKey)
	}
	return p, nil
}
