//go:build linux

package supervisor

import "syscall"

// processAttributes puts the child in its own group and has the kernel
// terminate it if the supervisor dies first.
func processAttributes() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGTERM}
}
