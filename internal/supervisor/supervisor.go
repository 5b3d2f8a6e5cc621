package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"docgate/internal/bridge"
	"docgate/internal/engine"
	"docgate/internal/logging"
	"docgate/internal/services"
)

// ErrEngineExited reports that the engine stopped without being asked to.
var ErrEngineExited = errors.New("engine exited unexpectedly")

const defaultStopGrace = 10 * time.Second

// Options describes how to launch the engine. The launched program is the
// bridge agent; it starts the office executable itself and serves the bridge
// on Interface:Port.
type Options struct {
	Agent     string
	AgentArgs []string
	// Executable is the office suite the agent drives.
	Executable string
	Interface  string
	Port       int
	// ProfileBase holds the per-instance profile directories; empty uses os.TempDir.
	ProfileBase string
	// PIDFile, when set, receives the child's PID for the lifetime of the child.
	PIDFile   string
	StopGrace time.Duration
}

// Arguments builds the agent command line for a profile directory. Everything
// after "--" is handed to the office executable unchanged.
func Arguments(opts Options, profileDir string) ([]string, error) {
	profileURL, err := engine.SystemPathToURL(profileDir)
	if err != nil {
		return nil, err
	}
	args := append([]string(nil), opts.AgentArgs...)
	args = append(args,
		"--listen="+bridge.AcceptString(opts.Interface, opts.Port),
		"--office="+opts.Executable,
		"--",
		"--headless",
		"--invisible",
		"--nocrashreport",
		"--nodefault",
		"--nologo",
		"--nofirststartwizard",
		"--norestore",
		"-env:UserInstallation="+profileURL,
		"--accept="+bridge.PipeAcceptString("docgate-"+filepath.Base(profileDir)),
	)
	return args, nil
}

// Supervisor owns the engine child process.
type Supervisor struct {
	launcher Launcher
	logger   *slog.Logger

	mu         sync.Mutex
	opts       Options
	proc       Process
	profileDir string

	stopping atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	exitErr  error
}

// New returns a supervisor using launcher, or ExecLauncher when nil.
func New(launcher Launcher, logger *slog.Logger) *Supervisor {
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	return &Supervisor{
		launcher: launcher,
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		done:     make(chan struct{}),
	}
}

// Start launches the engine. Failures are configuration errors: the service
// cannot run without its engine.
func (s *Supervisor) Start(ctx context.Context, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil {
		return errors.New("engine already started")
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}

	binary, err := exec.LookPath(opts.Agent)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "supervisor", "locate bridge agent", opts.Agent, err)
	}
	office, err := exec.LookPath(opts.Executable)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "supervisor", "locate engine", opts.Executable, err)
	}
	opts.Executable = office

	base := opts.ProfileBase
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "supervisor", "create profile base", base, err)
	}
	profileDir := filepath.Join(base, "profile-"+uuid.NewString())
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return services.Wrap(services.ErrConfiguration, "supervisor", "create profile", profileDir, err)
	}

	args, err := Arguments(opts, profileDir)
	if err != nil {
		_ = os.RemoveAll(profileDir)
		return services.Wrap(services.ErrConfiguration, "supervisor", "build arguments", "", err)
	}

	proc, err := s.launcher.Launch(ctx, binary, args)
	if err != nil {
		_ = os.RemoveAll(profileDir)
		return services.Wrap(services.ErrConfiguration, "supervisor", "launch engine", binary, err)
	}

	s.opts = opts
	s.proc = proc
	s.profileDir = profileDir

	if opts.PIDFile != "" {
		if err := writePIDFile(opts.PIDFile, proc.Pid()); err != nil {
			s.logger.Warn("engine pid file not written",
				logging.String("pid_file", opts.PIDFile),
				logging.Error(err),
				logging.String(logging.FieldEventType, "engine_pid_file_failed"),
				logging.String(logging.FieldImpact, "external tooling cannot find the engine process"),
			)
		}
	}

	s.logger.Info("engine started",
		logging.String(logging.FieldEventType, "engine_started"),
		logging.Int("pid", proc.Pid()),
		logging.String("agent", binary),
		logging.String("executable", office),
		logging.String("listen", bridge.AcceptString(opts.Interface, opts.Port)),
		logging.String("profile_dir", profileDir),
	)

	go s.wait(proc, profileDir, opts.PIDFile)
	return nil
}

func (s *Supervisor) wait(proc Process, profileDir, pidFile string) {
	waitErr := proc.Wait()
	if err := os.RemoveAll(profileDir); err != nil {
		s.logger.Warn("engine profile not removed",
			logging.String("profile_dir", profileDir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "engine_profile_cleanup_failed"),
		)
	}
	if pidFile != "" {
		_ = os.Remove(pidFile)
	}

	if s.stopping.Load() {
		s.logger.Info("engine stopped", logging.String(logging.FieldEventType, "engine_stopped"))
	} else {
		if waitErr == nil {
			waitErr = errors.New("exit status 0")
		}
		s.exitErr = fmt.Errorf("%w: %w", ErrEngineExited, waitErr)
		logging.ErrorWithContext(s.logger, "engine exited unexpectedly", "engine_exited",
			logging.Error(waitErr),
			logging.String(logging.FieldImpact, "conversions cannot run until the service restarts"),
		)
	}
	close(s.done)
}

// Done is closed once the child has exited.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Err returns ErrEngineExited (wrapped) when the child died on its own, nil
// otherwise. Only meaningful after Done is closed.
func (s *Supervisor) Err() error {
	select {
	case <-s.done:
		return s.exitErr
	default:
		return nil
	}
}

// PID reports the child's process ID, or 0 before Start.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid()
}

// ProfileDir reports the child's private profile directory.
func (s *Supervisor) ProfileDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileDir
}

// Running reports whether the child is alive.
func (s *Supervisor) Running() bool {
	if s.PID() == 0 {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stop terminates the child's process group, escalating to SIGKILL after the
// grace period. It blocks until the child has exited and is safe to call
// more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.mu.Lock()
		proc, grace := s.proc, s.opts.StopGrace
		s.mu.Unlock()
		if proc == nil {
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			s.logger.Debug("terminate signal failed", logging.Error(err))
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-s.done:
			return
		case <-timer.C:
		}
		logging.WarnWithContext(s.logger, "engine ignored terminate, killing", "engine_killed",
			logging.Duration("grace", grace),
			logging.Int("pid", proc.Pid()),
		)
		if err := proc.Signal(syscall.SIGKILL); err != nil {
			s.logger.Debug("kill signal failed", logging.Error(err))
		}
	})
	s.mu.Lock()
	started := s.proc != nil
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// ForwardSignals stops the engine when the service receives SIGINT, SIGTERM,
// or SIGHUP, then calls onSignal. The handler runs on its own goroutine until
// ctx ends or one signal has been handled.
func (s *Supervisor) ForwardSignals(ctx context.Context, onSignal func(os.Signal)) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		defer signal.Stop(signals)
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			s.logger.Info("signal received, stopping engine",
				logging.String("signal", sig.String()),
				logging.String(logging.FieldEventType, "signal_received"),
			)
			s.Stop()
			if onSignal != nil {
				onSignal(sig)
			}
		}
	}()
}

func writePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}
