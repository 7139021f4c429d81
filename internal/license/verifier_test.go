package license

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T, secret string, policy Policy) *Verifier {
	t.Helper()
	signer, err := NewSigner([]byte(secret))
	require.NoError(t, err)
	v, err := NewVerifier(VerifierConfig{Signer: signer, Policy: policy, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return v
}

// subsets returns every non-empty subset of codes, preserving order.
func subsets(codes []string) [][]string {
	var out [][]string
	for mask := 1; mask < 1<<len(codes); mask++ {
		var s []string
		for i, code := range codes {
			if mask&(1<<i) != 0 {
				s = append(s, code)
			}
		}
		out = append(out, s)
	}
	return out
}

func TestVerifier_RoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	verifier := newTestVerifier(t, "test-secret", Policy{})

	var codes []string
	for _, e := range DefaultCatalog().Entries() {
		codes = append(codes, e.ShortCode)
	}
	dated := time.Date(2030, 6, 30, 0, 0, 0, 0, time.UTC)
	expiries := []*time.Time{nil, &dated}

	for _, subset := range subsets(codes) {
		for _, expiry := range expiries {
			rec, err := issuer.Issue(context.Background(), IssueRequest{
				FactoryName: "Round Trip Works",
				Standards:   subset,
				ExpiryDate:  expiry,
			})
			require.NoError(t, err)

			res := verifier.Verify(rec.LicenseKey)
			require.True(t, res.Valid, "key %s: %s", rec.LicenseKey, res.Message)
			require.NotNil(t, res.License)
			assert.Equal(t, rec.FactoryID, res.License.FactoryID)
			assert.Equal(t, subset, res.License.ShortCodes)
			assert.ElementsMatch(t, rec.PurchasedStandards, res.License.PurchasedStandards)
			assert.Equal(t, rec.IsLifetime, res.License.IsLifetime)
			if expiry == nil {
				assert.Nil(t, res.License.ExpiryDate)
			} else {
				require.NotNil(t, res.License.ExpiryDate)
				assert.True(t, expiry.Equal(*res.License.ExpiryDate))
			}
		}
	}
}

func TestVerifier_TamperSensitivity(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	verifier := newTestVerifier(t, "test-secret", Policy{})

	expiry := time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC)
	rec, err := issuer.Issue(context.Background(), IssueRequest{
		FactoryName: "Acme",
		FactoryID:   "ACME",
		Standards:   []string{"AMS"},
		ExpiryDate:  &expiry,
	})
	require.NoError(t, err)
	sig := rec.LicenseKey[strings.LastIndex(rec.LicenseKey, "-")+1:]

	tests := []struct {
		name string
		key  string
	}{
		{"standards widened", "SM-ACME-AMSASTM-20271231-" + sig},
		{"standards swapped", "SM-ACME-NDIP-20271231-" + sig},
		{"expiry extended", "SM-ACME-AMS-20991231-" + sig},
		{"expiry to lifetime", "SM-ACME-AMS-LIFETIME-" + sig},
		{"factory changed", "SM-ACMF-AMS-20271231-" + sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := verifier.Verify(tt.key)
			assert.False(t, res.Valid)
			assert.Equal(t, ReasonSignature, res.Reason)

			_, err := verifier.Parse(tt.key)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}

	t.Run("different secret", func(t *testing.T) {
		other := newTestVerifier(t, "another-secret", Policy{})
		_, err := other.Parse(rec.LicenseKey)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerifier_Verify_Failures(t *testing.T) {
	signer, err := NewSigner([]byte("test-secret"))
	require.NoError(t, err)
	verifier := newTestVerifier(t, "test-secret", Policy{})

	signed := func(factoryID, standards, expiry string) string {
		return formatKey(keyParts{
			FactoryID:      factoryID,
			StandardsCodes: standards,
			ExpiryToken:    expiry,
			Signature:      signer.Sign(factoryID, standards, expiry),
		})
	}

	tests := []struct {
		name   string
		key    string
		reason Reason
	}{
		{"garbage", "garbage", ReasonMalformed},
		{"empty", "", ReasonMalformed},
		{"four segments", "SM-A-B-C", ReasonMalformed},
		{"wrong prefix", "XX-ACME-AMS-LIFETIME-ABCDEF123456", ReasonPrefix},
		{"bad signature", "SM-ACME-AMS-LIFETIME-000000000000", ReasonSignature},
		{"signed bad expiry", signed("ACME", "AMS", "20271332"), ReasonExpiry},
		{"signed unknown standard", signed("ACME", "AMSXYZ", "LIFETIME"), ReasonStandards},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res Result
			assert.NotPanics(t, func() { res = verifier.Verify(tt.key) })
			assert.False(t, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
			assert.NotEmpty(t, res.Message)
			assert.Nil(t, res.License)
		})
	}
}

func TestVerifier_Verify_TrimsWhitespace(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	verifier := newTestVerifier(t, "test-secret", Policy{})

	rec, err := issuer.Issue(context.Background(), IssueRequest{FactoryName: "Acme", Standards: []string{"SEP"}})
	require.NoError(t, err)

	res := verifier.Verify("  " + rec.LicenseKey + "\n")
	assert.True(t, res.Valid)
}

func TestVerifier_CheckApplicability(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	verifier := newTestVerifier(t, "test-secret", Policy{MinAppVersion: "2.0.0"})

	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 10, 29, 0, 0, 0, 0, time.UTC)

	issue := func(expiry *time.Time) *ParsedLicense {
		rec, err := issuer.Issue(context.Background(), IssueRequest{
			FactoryName: "Acme",
			Standards:   []string{"AMS", "SEP"},
			ExpiryDate:  expiry,
		})
		require.NoError(t, err)
		parsed, err := verifier.Parse(rec.LicenseKey)
		require.NoError(t, err, "an expired license still has a valid signature")
		return parsed
	}

	t.Run("past expiry", func(t *testing.T) {
		a := verifier.CheckApplicability(issue(&past), "2.1.0", testNow)
		assert.True(t, a.Expired)
		assert.Equal(t, 0, a.DaysRemaining)
	})

	t.Run("future expiry", func(t *testing.T) {
		a := verifier.CheckApplicability(issue(&future), "2.1.0", testNow)
		assert.False(t, a.Expired)
		assert.Equal(t, 9, a.DaysRemaining)
	})

	t.Run("expiry day itself has passed midnight", func(t *testing.T) {
		day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
		a := verifier.CheckApplicability(issue(&day), "2.1.0", testNow)
		assert.True(t, a.Expired)
	})

	t.Run("lifetime", func(t *testing.T) {
		a := verifier.CheckApplicability(issue(nil), "2.1.0", testNow.AddDate(100, 0, 0))
		assert.False(t, a.Expired)
		assert.Equal(t, -1, a.DaysRemaining)
		assert.Equal(t, map[string]bool{"AMS-STD-2154E": true, "SEP-1921": true}, a.StandardsGranted)
	})

	t.Run("version policy", func(t *testing.T) {
		parsed := issue(nil)
		assert.True(t, verifier.CheckApplicability(parsed, "2.0.0", testNow).VersionSupported)
		assert.True(t, verifier.CheckApplicability(parsed, "v2.3", testNow).VersionSupported)
		assert.False(t, verifier.CheckApplicability(parsed, "1.9.9", testNow).VersionSupported)

		open := newTestVerifier(t, "test-secret", Policy{})
		assert.True(t, open.CheckApplicability(parsed, "0.0.1", testNow).VersionSupported)
	})
}
