package updater

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/scanmaster/internal/version"
)

// DefaultSettleDelay is how long Install waits after launching an installer.
const DefaultSettleDelay = time.Second

// InstallOptions control installer invocation.
type InstallOptions struct {
	Silent      bool `json:"silent"`
	AutoRestart bool `json:"autoRestart"`
}

// InstallResult reports that an installer process was started. It says
// nothing about whether the installation itself succeeds.
type InstallResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	InstallerPath string `json:"installerPath"`
	PID           int    `json:"pid"`
}

// Launcher starts a process that outlives the caller.
type Launcher interface {
	Launch(name string, args []string) (pid int, err error)
}

// InstallerConfig holds the dependencies of an Installer.
type InstallerConfig struct {
	Launcher    Launcher
	SettleDelay time.Duration
	Logger      zerolog.Logger
}

// Installer hands update packages to their platform installer.
type Installer struct {
	launcher    Launcher
	settleDelay time.Duration
	logger      zerolog.Logger
}

// NewInstaller creates an Installer. A nil Launcher starts real detached
// processes; a zero SettleDelay uses DefaultSettleDelay.
func NewInstaller(cfg InstallerConfig) *Installer {
	if cfg.Launcher == nil {
		cfg.Launcher = ExecLauncher{}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Installer{
		launcher:    cfg.Launcher,
		settleDelay: cfg.SettleDelay,
		logger:      cfg.Logger.With().Str("component", "installer").Logger(),
	}
}

// Install launches the package installer detached and returns once it has
// had time to start. It does not wait for the installation to finish.
func (i *Installer) Install(ctx context.Context, pkg *Package, opts InstallOptions) (*InstallResult, error) {
	path := pkg.InstallerPath()
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInstallerNotFound, path)
	}

	name, args, err := installCommand(path, opts)
	if err != nil {
		return nil, err
	}

	i.logger.Info().
		Str("installer", path).
		Str("version", pkg.Version).
		Bool("silent", opts.Silent).
		Bool("auto_restart", opts.AutoRestart).
		Msg("launching installer")

	pid, err := i.launcher.Launch(name, args)
	if err != nil {
		return nil, fmt.Errorf("launch installer: %w", err)
	}

	select {
	case <-time.After(i.settleDelay):
	case <-ctx.Done():
	}

	return &InstallResult{
		Success:       true,
		Message:       fmt.Sprintf("Installer for version %s started", pkg.Version),
		InstallerPath: path,
		PID:           pid,
	}, nil
}

// installCommand selects the program and arguments for an installer file.
func installCommand(path string, opts InstallOptions) (string, []string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe":
		var args []string
		if opts.Silent {
			args = append(args, "/SILENT", "/VERYSILENT")
		}
		if opts.AutoRestart {
			args = append(args, "/RESTARTAPPLICATIONS")
		}
		return path, args, nil
	case ".msi":
		args := []string{"/i", path}
		if opts.Silent {
			args = append(args, "/quiet", "/norestart")
		}
		return "msiexec", args, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedInstaller, filepath.Base(path))
	}
}

// ExecLauncher starts processes in their own session or process group and
// releases them immediately.
type ExecLauncher struct{}

// Launch starts name detached from the current process.
func (ExecLauncher) Launch(name string, args []string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = detachedProcAttr()
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release installer process: %w", err)
	}
	return pid, nil
}

// VersionProbe reports the currently installed application version.
type VersionProbe func(ctx context.Context) (string, error)

// WaitForVersion polls probe until it reports at least want or ctx ends.
// Probe errors are treated as "not yet" since the application is usually
// restarting while the installer runs.
func WaitForVersion(ctx context.Context, probe VersionProbe, want string, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		got, err := probe(ctx)
		if err == nil && version.Compare(got, want) >= 0 {
			return got, nil
		}

		select {
		case <-ctx.Done():
			return got, fmt.Errorf("wait for version %s: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
}
