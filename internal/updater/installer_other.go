//go:build !windows && !unix

package updater

import "syscall"

func detachedProcAttr() *syscall.SysProcAttr {
	return nil
}
