package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	states []State
}

func (r *recordingObserver) ObservePipeline(final State) {
	r.states = append(r.states, final)
}

func newTestPipeline(t *testing.T, integrity *Integrity, launcher Launcher, observer Observer) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineConfig{
		Integrity: integrity,
		Installer: NewInstaller(InstallerConfig{Launcher: launcher, SettleDelay: time.Millisecond, Logger: zerolog.Nop()}),
		Platform:  "win32",
		Observer:  observer,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return p
}

func scanOne(t *testing.T, dir, current string) *Package {
	t.Helper()
	pkg, err := NewScanner(current, zerolog.Nop()).LoadPackage(dir)
	require.NoError(t, err)
	return pkg
}

func TestNewPipeline_RequiresIntegrity(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestPipeline_Run_SignatureSkipped(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writePackage(t, dir, testPackage{version: "2.0.0", installer: []byte("payload")})

	launcher := &fakeLauncher{}
	observer := &recordingObserver{}
	p := newTestPipeline(t, NewIntegrity(IntegrityConfig{Logger: zerolog.Nop()}), launcher, observer)

	res, err := p.Run(context.Background(), scanOne(t, dir, "1.0.0"), InstallOptions{Silent: true})
	require.NoError(t, err)

	assert.Equal(t, StateDetached, res.State)
	assert.Equal(t, []State{StateScanned, StateChecksumVerified, StateSignatureSkipped, StateInstalling, StateDetached}, res.History)
	assert.True(t, res.Checksum.Valid)
	assert.True(t, res.Signature.Skipped)
	require.NotNil(t, res.Install)
	assert.Equal(t, 4242, res.Install.PID)
	assert.Equal(t, 1, launcher.calls)
	assert.Equal(t, []State{StateDetached}, observer.states)
}

func TestPipeline_Run_SignatureVerified(t *testing.T) {
	pub, priv := newKeyPair(t)
	dir := filepath.Join(t.TempDir(), "pkg")
	writePackage(t, dir, testPackage{version: "2.0.0", installer: []byte("payload"), signatureFile: "checksums.sig"})
	signPackage(t, dir, priv, func(b []byte) []byte { return b })

	p := newTestPipeline(t, NewIntegrity(IntegrityConfig{PublicKey: pub, Logger: zerolog.Nop()}), &fakeLauncher{}, nil)

	res, err := p.Run(context.Background(), scanOne(t, dir, "1.0.0"), InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, []State{StateScanned, StateChecksumVerified, StateSignatureVerified, StateInstalling, StateDetached}, res.History)
}

func TestPipeline_Failures(t *testing.T) {
	pub, _ := newKeyPair(t)

	tests := []struct {
		name      string
		pkg       testPackage
		current   string
		integrity *Integrity
		mutate    func(t *testing.T, dir string)
		wantErr   error
		history   []State
	}{
		{
			name:    "installer missing",
			pkg:     testPackage{version: "2.0.0"},
			current: "1.0.0",
			wantErr: ErrInstallerNotFound,
			history: []State{StateScanned, StateFailed},
		},
		{
			name:    "other platform",
			pkg:     testPackage{version: "2.0.0", installer: []byte("x"), platform: "darwin"},
			current: "1.0.0",
			wantErr: ErrUnsupportedPlatform,
			history: []State{StateScanned, StateFailed},
		},
		{
			name:    "below minimum version",
			pkg:     testPackage{version: "3.0.0", installer: []byte("x"), minVersion: "2.0.0"},
			current: "1.5.0",
			wantErr: ErrVersionTooOld,
			history: []State{StateScanned, StateFailed},
		},
		{
			name:    "checksum mismatch",
			pkg:     testPackage{version: "2.0.0", installerFile: "setup.exe", installer: []byte("x")},
			current: "1.0.0",
			mutate: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.exe"), []byte("y"), 0644))
			},
			wantErr: ErrChecksumMismatch,
			history: []State{StateScanned, StateFailed},
		},
		{
			name:      "signature required",
			pkg:       testPackage{version: "2.0.0", installer: []byte("x")},
			current:   "1.0.0",
			integrity: NewIntegrity(IntegrityConfig{PublicKey: pub, RequireSignature: true, Logger: zerolog.Nop()}),
			wantErr:   ErrSignatureRequired,
			history:   []State{StateScanned, StateChecksumVerified, StateFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "pkg")
			writePackage(t, dir, tt.pkg)
			if tt.mutate != nil {
				tt.mutate(t, dir)
			}
			integrity := tt.integrity
			if integrity == nil {
				integrity = NewIntegrity(IntegrityConfig{Logger: zerolog.Nop()})
			}
			launcher := &fakeLauncher{}
			observer := &recordingObserver{}
			p := newTestPipeline(t, integrity, launcher, observer)

			res, err := p.Run(context.Background(), scanOne(t, dir, tt.current), InstallOptions{})
			require.NoError(t, err)
			assert.True(t, res.Failed())
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.NotEmpty(t, res.Reason)
			assert.Equal(t, tt.history, res.History)
			assert.Zero(t, launcher.calls, "installer must not run after a failed stage")
			assert.Equal(t, []State{StateFailed}, observer.states)
		})
	}
}

func TestPipeline_Run_LaunchError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writePackage(t, dir, testPackage{version: "2.0.0", installer: []byte("x")})

	launcher := &fakeLauncher{err: errors.New("access denied")}
	p := newTestPipeline(t, NewIntegrity(IntegrityConfig{Logger: zerolog.Nop()}), launcher, nil)

	res, err := p.Run(context.Background(), scanOne(t, dir, "1.0.0"), InstallOptions{})
	require.Error(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, []State{StateScanned, StateChecksumVerified, StateSignatureSkipped, StateInstalling, StateFailed}, res.History)
}

func TestPipeline_Verify_DoesNotInstall(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writePackage(t, dir, testPackage{version: "2.0.0", installer: []byte("x")})

	launcher := &fakeLauncher{}
	p := newTestPipeline(t, NewIntegrity(IntegrityConfig{Logger: zerolog.Nop()}), launcher, nil)

	res := p.Verify(context.Background(), scanOne(t, dir, "1.0.0"))
	assert.False(t, res.Failed())
	assert.Equal(t, StateSignatureSkipped, res.State)
	assert.Zero(t, launcher.calls)
}
