package daemonrun_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"docgate/internal/bridge"
	"docgate/internal/config"
	"docgate/internal/daemonrun"
	"docgate/internal/engine/enginetest"
	"docgate/internal/logging"
	"docgate/internal/rpcapi"
	"docgate/internal/services"
	"docgate/internal/supervisor"
	"docgate/internal/testsupport"
)

// agentProcess stands in for the bridge agent: it serves the bridge protocol
// in process on the address named by --listen.
type agentProcess struct {
	server *bridge.Server
	exit   chan error
	once   sync.Once

	// silent listener and the connections it accepted without answering
	listener net.Listener
	held     []net.Conn

	mu      sync.Mutex
	signals []syscall.Signal
}

func (p *agentProcess) Pid() int    { return 4242 }
func (p *agentProcess) Wait() error { return <-p.exit }

func (p *agentProcess) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	p.finish(errors.New("signal: " + sig.String()))
	return nil
}

func (p *agentProcess) finish(err error) {
	p.once.Do(func() {
		if p.server != nil {
			p.server.Close()
		}
		if p.listener != nil {
			_ = p.listener.Close()
		}
		p.mu.Lock()
		for _, conn := range p.held {
			_ = conn.Close()
		}
		p.mu.Unlock()
		p.exit <- err
	})
}

func (p *agentProcess) Signals() []syscall.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]syscall.Signal(nil), p.signals...)
}

type agentLauncher struct {
	fake     *enginetest.Engine
	noBridge bool
	// silent accepts bridge connections but never answers them.
	silent    bool
	mu        sync.Mutex
	processes []*agentProcess
}

func (l *agentLauncher) Launch(ctx context.Context, _ string, args []string) (supervisor.Process, error) {
	proc := &agentProcess{exit: make(chan error, 1)}
	if !l.noBridge {
		var listen string
		for _, arg := range args {
			if arg == "--" {
				break
			}
			if strings.HasPrefix(arg, "--listen=") {
				listen = strings.TrimPrefix(arg, "--listen=")
			}
		}
		endpoint, err := bridge.ParseConnectionString(listen)
		if err != nil {
			return nil, err
		}
		listener, err := net.Listen("tcp", endpoint.Address())
		if err != nil {
			return nil, err
		}
		if l.silent {
			proc.listener = listener
			go proc.hold()
			l.record(proc)
			return proc, nil
		}
		server, err := bridge.NewServer(context.WithoutCancel(ctx), l.fake, logging.NewNop())
		if err != nil {
			listener.Close()
			return nil, err
		}
		server.Serve(listener)
		proc.server = server
	}
	l.record(proc)
	return proc, nil
}

func (l *agentLauncher) record(proc *agentProcess) {
	l.mu.Lock()
	l.processes = append(l.processes, proc)
	l.mu.Unlock()
}

func (p *agentProcess) hold() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.held = append(p.held, conn)
		p.mu.Unlock()
	}
}

func (l *agentLauncher) last() *agentProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.processes) == 0 {
		return nil
	}
	return l.processes[len(l.processes)-1]
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func newConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithStubbedEngine("exit 0")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Server.Interface = "127.0.0.1"
	cfg.Engine.Interface = "127.0.0.1"
	cfg.Engine.Port = freePort(t)
	cfg.Engine.PIDFile = cfg.Paths.StateDir + "/engine.pid"
	return cfg
}

type runResult struct {
	endpoints daemonrun.Endpoints
	done      chan error
}

func start(t *testing.T, ctx context.Context, cfg *config.Config, launcher supervisor.Launcher) runResult {
	t.Helper()
	ready := make(chan daemonrun.Endpoints, 1)
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{
			Logger:   logging.NewNop(),
			Launcher: launcher,
			Ready:    func(e daemonrun.Endpoints) { ready <- e },
		})
	}()
	select {
	case endpoints := <-ready:
		return runResult{endpoints: endpoints, done: done}
	case err := <-done:
		t.Fatalf("Run returned before ready: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for ready")
	}
	return runResult{}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

func TestRunServesConversionsOverBridge(t *testing.T) {
	cfg := newConfig(t, testsupport.WithAPIBind("127.0.0.1:0"))
	fake := enginetest.New()
	launcher := &agentLauncher{fake: fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	run := start(t, ctx, cfg, launcher)

	if _, err := os.Stat(cfg.ServicePIDPath()); err != nil {
		t.Fatalf("service pid file missing: %v", err)
	}
	if data, err := os.ReadFile(cfg.Engine.PIDFile); err != nil || strings.TrimSpace(string(data)) != "4242" {
		t.Fatalf("engine pid file = %q, %v", data, err)
	}

	client, err := rpcapi.Dial(run.endpoints.RPC)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Convert(rpcapi.ConvertRequest{InputData: []byte("doc"), ConvertTo: "pdf"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !bytes.Equal(resp.Data, fake.Output) {
		t.Fatalf("unexpected data %q", resp.Data)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.EnginePID != 4242 || !status.EngineRunning || !status.Connected || status.Served != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if !strings.Contains(status.Connection, "port=") {
		t.Fatalf("unexpected connection string %q", status.Connection)
	}

	httpResp, err := http.Get("http://" + run.endpoints.API + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("http status = %d", httpResp.StatusCode)
	}

	cancel()
	if err := waitDone(t, run.done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sigs := launcher.last().Signals(); len(sigs) == 0 || sigs[0] != syscall.SIGTERM {
		t.Fatalf("expected SIGTERM on shutdown, got %v", sigs)
	}
	if _, err := os.Stat(cfg.ServicePIDPath()); !os.IsNotExist(err) {
		t.Fatalf("service pid file not removed: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("lock not released: %v %v", ok, err)
	}
	_ = lock.Unlock()
}

func TestRunStopsWhenEngineExits(t *testing.T) {
	cfg := newConfig(t, testsupport.WithJournalDisabled())
	launcher := &agentLauncher{fake: enginetest.New()}

	run := start(t, context.Background(), cfg, launcher)
	launcher.last().finish(errors.New("segmentation fault"))

	err := waitDone(t, run.done)
	if !errors.Is(err, supervisor.ErrEngineExited) {
		t.Fatalf("expected ErrEngineExited, got %v", err)
	}
}

func TestRunConnectTimeout(t *testing.T) {
	cfg := newConfig(t)
	cfg.Engine.ConnectTimeoutSeconds = 0
	launcher := &agentLauncher{noBridge: true}

	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Logger: logging.NewNop(), Launcher: launcher})
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if sigs := launcher.last().Signals(); len(sigs) == 0 {
		t.Fatal("expected the engine to be stopped after the connect timeout")
	}
}

func TestRunConnectTimeoutWithSilentBridge(t *testing.T) {
	cfg := newConfig(t)
	cfg.Engine.ConnectTimeoutSeconds = 1
	cfg.Engine.ConnectIntervalMillis = 50
	launcher := &agentLauncher{silent: true}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	started := time.Now()
	err := daemonrun.Run(ctx, cfg, daemonrun.Options{Logger: logging.NewNop(), Launcher: launcher})
	elapsed := time.Since(started)
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("connect budget ignored: Run only returned when the outer context ended (%s)", elapsed)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("Run took %s with a 1s connect timeout", elapsed)
	}
	if sigs := launcher.last().Signals(); len(sigs) == 0 {
		t.Fatal("expected the engine to be stopped after the connect timeout")
	}
}

func TestRunRejectsSecondInstance(t *testing.T) {
	cfg := newConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	launcher := &agentLauncher{fake: enginetest.New()}
	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Logger: logging.NewNop(), Launcher: launcher})
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected already running error, got %v", err)
	}
	if launcher.last() != nil {
		t.Fatal("engine must not start when the lock is held")
	}
}

func TestRunPreflightFailure(t *testing.T) {
	cfg := newConfig(t)
	cfg.Engine.Executable = "clearly-not-present-binary"

	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Logger: logging.NewNop(), Launcher: &agentLauncher{}})
	if !services.IsFatal(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
