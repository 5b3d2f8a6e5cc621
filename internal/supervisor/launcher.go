package supervisor

import (
	"context"
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a running engine child.
type Process interface {
	Pid() int
	Wait() error
	// Signal delivers sig to the child's whole process group.
	Signal(sig syscall.Signal) error
}

// Launcher starts the engine executable. Tests substitute their own.
type Launcher interface {
	Launch(ctx context.Context, binary string, args []string) (Process, error)
}

// ExecLauncher starts the engine with os/exec in a fresh process group.
type ExecLauncher struct{}

// Launch starts binary. The child is not bound to ctx; its lifetime is
// governed by Supervisor.Stop.
func (ExecLauncher) Launch(_ context.Context, binary string, args []string) (Process, error) {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = processAttributes()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Signal(sig syscall.Signal) error {
	err := unix.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return p.cmd.Process.Signal(sig)
	}
	return err
}
