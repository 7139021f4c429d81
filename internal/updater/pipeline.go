package updater

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// State is a step of the scan, verify and install flow.
type State string

// Pipeline states. Failed is terminal; there are no automatic retries.
const (
	StateScanned           State = "scanned"
	StateChecksumVerified  State = "checksum_verified"
	StateSignatureVerified State = "signature_verified"
	StateSignatureSkipped  State = "signature_skipped"
	StateInstalling        State = "installing"
	StateDetached          State = "detached"
	StateFailed            State = "failed"
)

// PipelineResult records how far a package progressed.
type PipelineResult struct {
	Package   *Package         `json:"package"`
	State     State            `json:"state"`
	History   []State          `json:"history"`
	Reason    string           `json:"reason,omitempty"`
	Checksum  *ChecksumResult  `json:"checksum,omitempty"`
	Signature *SignatureResult `json:"signature,omitempty"`
	Install   *InstallResult   `json:"install,omitempty"`
	// Err is the error behind a Failed state, for errors.Is.
	Err error `json:"-"`
}

func (r *PipelineResult) advance(s State) {
	r.State = s
	r.History = append(r.History, s)
}

func (r *PipelineResult) fail(err error) {
	r.advance(StateFailed)
	r.Reason = err.Error()
	r.Err = err
}

// Failed reports whether the package stopped in the Failed state.
func (r *PipelineResult) Failed() bool {
	return r.State == StateFailed
}

// Observer is notified when a pipeline run ends.
type Observer interface {
	ObservePipeline(final State)
}

// PipelineConfig holds the dependencies of a Pipeline.
type PipelineConfig struct {
	Integrity *Integrity
	Installer *Installer
	// Platform is the platform packages must target. Empty uses CurrentPlatform.
	Platform string
	Observer Observer
	Logger   zerolog.Logger
}

// Pipeline verifies and installs scanned packages.
type Pipeline struct {
	integrity *Integrity
	installer *Installer
	platform  string
	observer  Observer
	logger    zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Integrity == nil {
		return nil, errors.New("pipeline requires an integrity verifier")
	}
	if cfg.Installer == nil {
		cfg.Installer = NewInstaller(InstallerConfig{Logger: cfg.Logger})
	}
	if cfg.Platform == "" {
		cfg.Platform = CurrentPlatform()
	}
	return &Pipeline{
		integrity: cfg.Integrity,
		installer: cfg.Installer,
		platform:  cfg.Platform,
		observer:  cfg.Observer,
		logger:    cfg.Logger.With().Str("component", "update_pipeline").Logger(),
	}, nil
}

// Verify runs the pre-checks and the checksum and signature stages without
// installing. Verification failures are reported in the result.
func (p *Pipeline) Verify(ctx context.Context, pkg *Package) *PipelineResult {
	res := p.verify(ctx, pkg)
	p.finish(res)
	return res
}

// Run verifies pkg and, if every stage passes, launches its installer. A
// returned error means the installer could not be launched; all other
// failures are described by the result.
func (p *Pipeline) Run(ctx context.Context, pkg *Package, opts InstallOptions) (*PipelineResult, error) {
	res := p.verify(ctx, pkg)
	if res.Failed() {
		p.finish(res)
		return res, nil
	}

	res.advance(StateInstalling)
	install, err := p.installer.Install(ctx, pkg, opts)
	if err != nil {
		res.fail(err)
		p.finish(res)
		return res, err
	}
	res.Install = install
	res.advance(StateDetached)
	p.finish(res)
	return res, nil
}

func (p *Pipeline) verify(ctx context.Context, pkg *Package) *PipelineResult {
	res := &PipelineResult{Package: pkg}
	res.advance(StateScanned)

	switch {
	case pkg.InstallerMissing:
		res.fail(fmt.Errorf("%w: %s", ErrInstallerNotFound, pkg.InstallerFile))
		return res
	case pkg.Platform != p.platform:
		res.fail(fmt.Errorf("%w: package targets %s, running on %s", ErrUnsupportedPlatform, pkg.Platform, p.platform))
		return res
	case !pkg.MeetsMinVersion:
		res.fail(fmt.Errorf("%w: requires %s", ErrVersionTooOld, pkg.MinVersion))
		return res
	}

	res.Checksum = p.integrity.VerifyChecksum(ctx, pkg.Path, pkg.InstallerFile, pkg.ChecksumFile)
	if !res.Checksum.Valid {
		res.fail(res.Checksum.Err)
		return res
	}
	res.advance(StateChecksumVerified)

	res.Signature = p.integrity.VerifySignature(pkg.Path, pkg.ChecksumFile, pkg.SignatureFile)
	if !res.Signature.Valid {
		res.fail(res.Signature.Err)
		return res
	}
	if res.Signature.Skipped {
		res.advance(StateSignatureSkipped)
	} else {
		res.advance(StateSignatureVerified)
	}
	return res
}

func (p *Pipeline) finish(res *PipelineResult) {
	evt := p.logger.Info()
	if res.Failed() {
		evt = p.logger.Warn().Str("reason", res.Reason)
	}
	evt.Str("version", res.Package.Version).
		Str("path", res.Package.Path).
		Str("state", string(res.State)).
		Msg("update pipeline finished")

	if p.observer != nil {
		p.observer.ObservePipeline(res.State)
	}
}
