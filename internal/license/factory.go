package license

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// factoryIDPrefix starts every derived factory id.
	factoryIDPrefix = "FAC"
	// factoryNameLength is the number of name characters kept in a derived id.
	factoryNameLength = 6
)

var factoryIDPattern = regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]+)*$`)

// NormalizeFactoryName uppercases name, folds accented letters to their base
// letter and drops everything that is not A-Z or 0-9.
func NormalizeFactoryName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(folded) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DeriveFactoryID builds FAC-{NAME6}-{base36 millisecond timestamp}.
func DeriveFactoryID(name string, now time.Time) (string, error) {
	normalized := NormalizeFactoryName(name)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFactoryName, name)
	}
	if len(normalized) > factoryNameLength {
		normalized = normalized[:factoryNameLength]
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return factoryIDPrefix + "-" + normalized + "-" + stamp, nil
}

// ValidateFactoryID checks a caller supplied factory id.
func ValidateFactoryID(id string) error {
	if !factoryIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidFactoryID, id)
	}
	return nil
}
