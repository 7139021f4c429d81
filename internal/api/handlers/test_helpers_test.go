package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/scanmaster/internal/license"
	"github.com/MacJediWizard/scanmaster/internal/updater"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// doJSON performs a request against r with body encoded as JSON. A nil body
// sends no body at all.
func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func newTestVerifier(t *testing.T) *license.Verifier {
	t.Helper()
	signer, err := license.NewSigner([]byte(testSecret))
	require.NoError(t, err)
	v, err := license.NewVerifier(license.VerifierConfig{
		Signer: signer,
		Policy: license.Policy{MinAppVersion: "2.0.0"},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return v
}

func issueTestKey(t *testing.T, expiry *time.Time) string {
	t.Helper()
	signer, err := license.NewSigner([]byte(testSecret))
	require.NoError(t, err)
	issuer, err := license.NewIssuer(license.IssuerConfig{Signer: signer, Logger: zerolog.Nop()})
	require.NoError(t, err)
	rec, err := issuer.Issue(context.Background(), license.IssueRequest{
		FactoryName: "Acme Corp",
		Standards:   []string{"AMS", "ASTM"},
		ExpiryDate:  expiry,
	})
	require.NoError(t, err)
	return rec.LicenseKey
}

// writeTestPackage writes a win32 package with a valid checksum manifest.
func writeTestPackage(t *testing.T, dir, version string, installer []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))

	name := "ScanMaster-Setup-" + version + ".exe"
	manifest, err := json.Marshal(map[string]string{
		"version":       version,
		"installerFile": name,
		"platform":      "win32",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, updater.ManifestFile), manifest, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), installer, 0644))

	sum := sha256.Sum256(installer)
	line := hex.EncodeToString(sum[:]) + "  " + name + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, updater.DefaultChecksumFile), []byte(line), 0644))
}

type fakeLauncher struct {
	calls int
	err   error
}

func (f *fakeLauncher) Launch(name string, args []string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 4242, nil
}

func newTestPipeline(t *testing.T, launcher updater.Launcher) *updater.Pipeline {
	t.Helper()
	p, err := updater.NewPipeline(updater.PipelineConfig{
		Integrity: updater.NewIntegrity(updater.IntegrityConfig{Logger: zerolog.Nop()}),
		Installer: updater.NewInstaller(updater.InstallerConfig{
			Launcher:    launcher,
			SettleDelay: time.Millisecond,
			Logger:      zerolog.Nop(),
		}),
		Platform: "win32",
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return p
}
