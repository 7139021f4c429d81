package license

import (
	"fmt"
	"sort"
	"strings"
)

// Entitlement is a purchasable standard in the catalog.
type Entitlement struct {
	// ShortCode is the key packed into license keys (uppercase alphanumeric).
	ShortCode string `json:"shortCode" yaml:"short_code"`
	// Standard is the canonical standard name granted by the short code.
	Standard string `json:"standard" yaml:"standard"`
	// Price is informational and never part of the signed key.
	Price float64 `json:"price" yaml:"price"`
}

// Catalog is an immutable set of entitlements keyed by short code.
type Catalog struct {
	entries map[string]Entitlement
	// codes sorted longest first, then alphabetically, for segmentation.
	codes []string
	order []string
}

// DefaultCatalog returns the ScanMaster standards catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Entitlement{
		{ShortCode: "AMS", Standard: "AMS-STD-2154E", Price: 1500},
		{ShortCode: "ASTM", Standard: "ASTM-A388", Price: 1200},
		{ShortCode: "BS3", Standard: "BS-EN-10228-3", Price: 1000},
		{ShortCode: "BS4", Standard: "BS-EN-10228-4", Price: 1000},
		{ShortCode: "SEP", Standard: "SEP-1921", Price: 800},
		{ShortCode: "NDIP", Standard: "NDIP-1226", Price: 2500},
	})
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

// NewCatalog validates entries and builds a Catalog.
func NewCatalog(entries []Entitlement) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidCatalog)
	}

	c := &Catalog{entries: make(map[string]Entitlement, len(entries))}
	for _, e := range entries {
		if !isUpperAlnum(e.ShortCode) {
			return nil, fmt.Errorf("%w: short code %q must be uppercase alphanumeric", ErrInvalidCatalog, e.ShortCode)
		}
		if _, dup := c.entries[e.ShortCode]; dup {
			return nil, fmt.Errorf("%w: duplicate short code %q", ErrInvalidCatalog, e.ShortCode)
		}
		if strings.TrimSpace(e.Standard) == "" {
			return nil, fmt.Errorf("%w: short code %q has no standard", ErrInvalidCatalog, e.ShortCode)
		}
		if e.Price < 0 {
			return nil, fmt.Errorf("%w: short code %q has a negative price", ErrInvalidCatalog, e.ShortCode)
		}
		c.entries[e.ShortCode] = e
		c.order = append(c.order, e.ShortCode)
	}

	if a, b, ok := ambiguousCodes(c.order); ok {
		return nil, fmt.Errorf("%w: short codes are not uniquely decodable (%q and %q concatenate to the same block)", ErrInvalidCatalog, a, b)
	}

	c.codes = append([]string(nil), c.order...)
	sort.Slice(c.codes, func(i, j int) bool {
		if len(c.codes[i]) != len(c.codes[j]) {
			return len(c.codes[i]) > len(c.codes[j])
		}
		return c.codes[i] < c.codes[j]
	})

	return c, nil
}

// Lookup returns the entitlement for a short code.
func (c *Catalog) Lookup(shortCode string) (Entitlement, bool) {
	e, ok := c.entries[strings.ToUpper(strings.TrimSpace(shortCode))]
	return e, ok
}

// Entries returns the entitlements in catalog order.
func (c *Catalog) Entries() []Entitlement {
	out := make([]Entitlement, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.entries[code])
	}
	return out
}

// Filter keeps the known short codes from codes, uppercased, deduplicated and
// in input order.
func (c *Catalog) Filter(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	var out []string
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if _, ok := c.entries[code]; !ok || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// Price returns the summed catalog price of the given short codes.
func (c *Catalog) Price(codes []string) float64 {
	var total float64
	for _, code := range codes {
		total += c.entries[code].Price
	}
	return total
}

// Standards maps short codes to their canonical standard names.
func (c *Catalog) Standards(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if e, ok := c.entries[code]; ok {
			out = append(out, e.Standard)
		}
	}
	return out
}

// ambiguousCodes runs the Sardinas-Patterson test over codes. It reports
// whether some concatenation of codes can be split in two ways, and returns
// the pair of codes whose dangling suffix exposed the collision.
func ambiguousCodes(codes []string) (string, string, bool) {
	set := make(map[string]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}

	type dangling struct {
		suffix string
		a, b   string
	}

	seen := make(map[string]bool)
	var frontier []dangling
	for _, a := range codes {
		for _, b := range codes {
			if a != b && strings.HasPrefix(b, a) {
				frontier = append(frontier, dangling{suffix: b[len(a):], a: a, b: b})
			}
		}
	}

	for len(frontier) > 0 {
		var next []dangling
		for _, d := range frontier {
			if set[d.suffix] {
				return d.a, d.b, true
			}
			if seen[d.suffix] {
				continue
			}
			seen[d.suffix] = true

			for _, code := range codes {
				switch {
				case strings.HasPrefix(d.suffix, code):
					next = append(next, dangling{suffix: d.suffix[len(code):], a: d.a, b: d.b})
				case strings.HasPrefix(code, d.suffix):
					next = append(next, dangling{suffix: code[len(d.suffix):], a: d.a, b: d.b})
				}
			}
		}
		frontier = next
	}
	return "", "", false
}

func isUpperAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
