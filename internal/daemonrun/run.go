package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"docgate/internal/bridge"
	"docgate/internal/config"
	"docgate/internal/gateway"
	"docgate/internal/httpapi"
	"docgate/internal/journal"
	"docgate/internal/logging"
	"docgate/internal/preflight"
	"docgate/internal/rpcapi"
	"docgate/internal/services"
	"docgate/internal/supervisor"
)

// Endpoints reports where the running gateway listens.
type Endpoints struct {
	RPC string
	API string
}

// Options configures daemon process runtime behavior. Zero values select the
// production collaborators.
type Options struct {
	Logger   *slog.Logger
	Launcher supervisor.Launcher
	Dial     gateway.Dialer
	// SkipPreflight disables the startup readiness checks.
	SkipPreflight bool
	// Ready is called once every listener is accepting connections.
	Ready func(Endpoints)
}

// Run starts the engine, waits for its bridge, and serves requests until a
// signal arrives, the engine exits, or a listener fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "ensure directories", "", err)
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docgate instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release instance lock", logging.Error(err))
		}
	}()

	if !opts.SkipPreflight {
		results := preflight.RunAll(cmdCtx, cfg)
		for _, r := range results {
			logger.Debug("preflight check",
				logging.String("check", r.Name),
				logging.Bool("passed", r.Passed),
				logging.String("detail", r.Detail),
			)
		}
		if err := preflight.Failures(results); err != nil {
			logging.ErrorWithContext(logger, "preflight failed", "preflight_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the reported checks or adjust the config"),
			)
			return services.Wrap(services.ErrConfiguration, "daemon", "preflight", "", err)
		}
	}

	pidPath := cfg.ServicePIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	runCtx, cancel := context.WithCancel(cmdCtx)
	defer cancel()

	sup := supervisor.New(opts.Launcher, logger)
	if err := sup.Start(runCtx, supervisor.Options{
		Agent:       cfg.Engine.AgentCommand,
		AgentArgs:   cfg.Engine.AgentArgs,
		Executable:  cfg.Engine.Executable,
		Interface:   cfg.Engine.Interface,
		Port:        cfg.Engine.Port,
		ProfileBase: cfg.Engine.ProfileDir,
		PIDFile:     cfg.Engine.PIDFile,
		StopGrace:   cfg.StopGrace(),
	}); err != nil {
		logging.ErrorWithContext(logger, "engine start failed", "engine_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check engine.agent_command and engine.executable"),
		)
		return err
	}
	defer sup.Stop()
	sup.ForwardSignals(runCtx, func(os.Signal) { cancel() })

	dial := opts.Dial
	if dial == nil {
		dial = gateway.BridgeDialer(cfg.Engine.Interface, cfg.Engine.Port)
	}
	provider := gateway.NewSharedProvider(dial, logger)
	if err := waitForEngine(runCtx, logger, provider, sup, cfg.ConnectTimeout(), cfg.ConnectInterval()); err != nil {
		_ = provider.Close()
		return err
	}

	var (
		gwJournal gateway.Journal
		history   rpcapi.History
		apiHist   httpapi.History
	)
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg)
		if err != nil {
			_ = provider.Close()
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		pruneJournal(runCtx, logger, store, cfg.JournalRetention())
		gwJournal, history, apiHist = store, store, store
	}

	gw, err := gateway.New(gateway.Options{
		Provider:           provider,
		Engine:             sup,
		Journal:            gwJournal,
		Connection:         bridge.ConnectionString(cfg.Engine.Interface, cfg.Engine.Port),
		UpdateIndexDefault: cfg.Conversion.UpdateIndexDefault,
	}, logger)
	if err != nil {
		_ = provider.Close()
		return fmt.Errorf("create gateway: %w", err)
	}
	defer gw.Close()

	rpcServer, err := rpcapi.NewServer(runCtx, cfg.RPCAddress(), gw, history, logger)
	if err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}
	defer rpcServer.Close()
	rpcServer.Serve()

	endpoints := Endpoints{RPC: rpcServer.Addr()}

	group, groupCtx := errgroup.WithContext(runCtx)
	if cfg.Server.APIBind != "" {
		api, err := httpapi.New(httpapi.Options{
			Bind:        cfg.Server.APIBind,
			Token:       cfg.Server.APIToken,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, gw, apiHist, logger)
		if err != nil {
			return fmt.Errorf("create http api: %w", err)
		}
		apiErrs, err := api.Start()
		if err != nil {
			return fmt.Errorf("start http api: %w", err)
		}
		defer api.Stop(context.WithoutCancel(runCtx))
		endpoints.API = api.Addr()

		group.Go(func() error {
			select {
			case err, ok := <-apiErrs:
				if ok && err != nil {
					return fmt.Errorf("http api: %w", err)
				}
				return nil
			case <-groupCtx.Done():
				return nil
			}
		})
	}

	group.Go(func() error {
		select {
		case <-sup.Done():
			if err := sup.Err(); err != nil {
				logging.ErrorWithContext(logger, "engine exited, shutting down", "engine_exited",
					logging.Error(err),
					logging.String(logging.FieldImpact, "gateway stops accepting requests"),
				)
				return err
			}
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	logger.Info("docgate ready",
		logging.String(logging.FieldEventType, "gateway_ready"),
		logging.String("rpc_address", endpoints.RPC),
		logging.String("api_address", endpoints.API),
		logging.Int("engine_pid", sup.PID()),
		logging.Bool("journal_enabled", cfg.Journal.Enabled),
	)
	if opts.Ready != nil {
		opts.Ready(endpoints)
	}

	err = group.Wait()
	logger.Info("docgate shutting down", logging.String(logging.FieldEventType, "gateway_shutdown"))
	return err
}

// waitForEngine polls the bridge until a session is established, the timeout
// elapses, or the engine exits. Each attempt is bounded by the same deadline.
func waitForEngine(ctx context.Context, logger *slog.Logger, provider gateway.SessionProvider, sup *supervisor.Supervisor, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	attempts := 0
	for {
		attempts++
		// A listener that accepts but never answers must not outlive the budget.
		attemptCtx, cancelAttempt := context.WithDeadline(ctx, deadline)
		_, err := provider.Session(attemptCtx)
		cancelAttempt()
		if err == nil {
			logger.Info("engine bridge connected",
				logging.String(logging.FieldEventType, "engine_connected"),
				logging.Int("attempts", attempts),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("engine bridge not ready", logging.Int("attempt", attempts), logging.Error(err))
		if !time.Now().Before(deadline) {
			logging.ErrorWithContext(logger, "engine bridge did not come up", "engine_connect_timeout",
				logging.Duration("timeout", timeout),
				logging.Int("attempts", attempts),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise engine.connect_timeout_seconds or check the engine port"),
			)
			return services.Wrap(services.ErrEngineUnavailable, "daemon", "connect engine",
				fmt.Sprintf("no bridge after %s", timeout), err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-sup.Done():
			timer.Stop()
			if err := sup.Err(); err != nil {
				return err
			}
			return supervisor.ErrEngineExited
		case <-timer.C:
		}
	}
}

func pruneJournal(ctx context.Context, logger *slog.Logger, store *journal.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	removed, err := store.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		logging.WarnWithContext(logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old journal rows are kept until the next start"),
		)
		return
	}
	if removed > 0 {
		logger.Info("journal pruned", logging.Int64("removed", removed), logging.Duration("retention", retention))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
