//go:build unix

package updater

import "syscall"

// detachedProcAttr starts the installer in a new session so it survives the
// parent exiting.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
