package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"docgate/internal/convert"
	"docgate/internal/engine"
	"docgate/internal/filters"
	"docgate/internal/journal"
	"docgate/internal/logging"
	"docgate/internal/services"
)

// EngineStatus reports on the supervised engine process.
type EngineStatus interface {
	PID() int
	Running() bool
}

// Journal receives one entry per finished request.
type Journal interface {
	Record(ctx context.Context, entry journal.Entry) (int64, error)
	Summarize(ctx context.Context) (journal.Summary, error)
}

// Options wires a Gateway to its collaborators. Engine and Journal are optional.
type Options struct {
	Provider           SessionProvider
	Engine             EngineStatus
	Journal            Journal
	Connection         string
	UpdateIndexDefault bool
}

// Status is a point-in-time view of the gateway.
type Status struct {
	EnginePID       int              `json:"engine_pid"`
	EngineRunning   bool             `json:"engine_running"`
	Connection      string           `json:"connection"`
	Connected       bool             `json:"connected"`
	Busy            bool             `json:"busy"`
	QueueDepth      int              `json:"queue_depth"`
	Served          int              `json:"served"`
	Failed          int              `json:"failed"`
	LastError       string           `json:"last_error,omitempty"`
	LastRequestID   string           `json:"last_request_id,omitempty"`
	UptimeSeconds   int64            `json:"uptime_seconds"`
	Journal         *journal.Summary `json:"journal,omitempty"`
	JournalDisabled bool             `json:"journal_disabled"`
}

type job struct {
	ctx  context.Context
	run  func(ctx context.Context, session engine.Session) error
	done chan error
}

// Gateway serializes every engine interaction through one worker.
type Gateway struct {
	opts      Options
	logger    *slog.Logger
	startedAt time.Time

	jobs chan *job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	waiting atomic.Int64
	busy    atomic.Bool

	mu            sync.Mutex
	served        int
	failed        int
	lastError     string
	lastRequestID string
}

// New starts the worker. Call Close to stop it.
func New(opts Options, logger *slog.Logger) (*Gateway, error) {
	if opts.Provider == nil {
		return nil, errors.New("gateway requires a session provider")
	}
	g := &Gateway{
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "gateway"),
		startedAt: time.Now(),
		jobs:      make(chan *job),
		quit:      make(chan struct{}),
	}
	g.wg.Add(1)
	go g.worker()
	return g, nil
}

func (g *Gateway) worker() {
	defer g.wg.Done()
	for {
		select {
		case <-g.quit:
			return
		case j := <-g.jobs:
			g.waiting.Add(-1)
			g.busy.Store(true)
			j.done <- g.execute(j)
			g.busy.Store(false)
		}
	}
}

func (g *Gateway) execute(j *job) error {
	ctx := context.WithoutCancel(j.ctx)
	session, err := g.opts.Provider.Session(ctx)
	if err != nil {
		return err
	}
	return j.run(ctx, session)
}

// submit queues run and waits for it. A request whose ctx ends while still
// queued is dropped; once the worker takes it, it runs to completion.
func (g *Gateway) submit(ctx context.Context, run func(ctx context.Context, session engine.Session) error) error {
	j := &job{ctx: ctx, run: run, done: make(chan error, 1)}
	g.waiting.Add(1)
	select {
	case g.jobs <- j:
	case <-ctx.Done():
		g.waiting.Add(-1)
		return ctx.Err()
	case <-g.quit:
		g.waiting.Add(-1)
		return ErrClosed
	}
	return <-j.done
}

// Convert validates req, runs it on the worker, and journals the outcome.
func (g *Gateway) Convert(ctx context.Context, req ConvertRequest) (ConvertResponse, error) {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)
	ctx = services.WithOperation(ctx, "convert")
	logger := logging.WithContext(ctx, g.logger)

	entry := journal.Entry{
		RequestID:    requestID,
		Operation:    "convert",
		TargetFormat: req.ConvertTo,
		ImportFilter: req.ImportFilterName,
		ExportFilter: req.FilterName,
		StartedAt:    time.Now().UTC(),
	}

	if err := req.Validate(); err != nil {
		return ConvertResponse{}, g.finish(ctx, logger, entry, err)
	}
	conversion := req.conversion(g.opts.UpdateIndexDefault)
	entry.Source = convert.SourceLabel(conversion.Source)
	entry.Sink = convert.SinkLabel(conversion.Sink)

	logger.Debug("conversion queued",
		logging.String("source", entry.Source),
		logging.String("sink", entry.Sink),
		logging.Int("queue_depth", int(g.waiting.Load())),
	)

	var result convert.Result
	err := g.submit(ctx, func(ctx context.Context, session engine.Session) error {
		entry.StartedAt = time.Now().UTC()
		var convErr error
		result, convErr = convert.New(session, g.logger).Convert(ctx, conversion)
		return convErr
	})
	if err != nil {
		return ConvertResponse{}, g.finish(ctx, logger, entry, err)
	}

	entry.ImportFilter = result.ImportFilter
	entry.ExportFilter = result.ExportFilter
	entry.OutputBytes = int64(len(result.Data))
	_ = g.finish(ctx, logger, entry, nil)

	return ConvertResponse{
		RequestID:    requestID,
		Data:         result.Data,
		OutputPath:   req.OutputPath,
		DocumentType: result.DocumentType,
		TargetType:   result.TargetType,
		ImportFilter: result.ImportFilter,
		ExportFilter: result.ExportFilter,
	}, nil
}

// Filters lists the engine's filters for direction.
func (g *Gateway) Filters(ctx context.Context, direction filters.Direction) ([]filters.Descriptor, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithOperation(ctx, "filters")
	var out []filters.Descriptor
	err := g.submit(ctx, func(ctx context.Context, session engine.Session) error {
		var listErr error
		out, listErr = filters.Collect(filters.NewRegistry(session).Filters(ctx, direction))
		return listErr
	})
	if err != nil {
		fault := FaultFrom(err)
		if requestID, ok := services.RequestIDFromContext(ctx); ok {
			fault.RequestID = requestID
		}
		return nil, fault
	}
	return out, nil
}

// Status does not touch the engine and never waits for the worker.
func (g *Gateway) Status(ctx context.Context) Status {
	g.mu.Lock()
	status := Status{
		Connection:    g.opts.Connection,
		Connected:     g.opts.Provider.Connected(),
		Busy:          g.busy.Load(),
		QueueDepth:    int(g.waiting.Load()),
		Served:        g.served,
		Failed:        g.failed,
		LastError:     g.lastError,
		LastRequestID: g.lastRequestID,
		UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
	}
	g.mu.Unlock()
	if g.opts.Engine != nil {
		status.EnginePID = g.opts.Engine.PID()
		status.EngineRunning = g.opts.Engine.Running()
	}
	if g.opts.Journal == nil {
		status.JournalDisabled = true
		return status
	}
	if summary, err := g.opts.Journal.Summarize(ctx); err == nil {
		status.Journal = &summary
	} else {
		g.logger.Debug("journal summary unavailable", logging.Error(err))
	}
	return status
}

// Close stops accepting work, lets the running job finish, and drops the
// engine session.
func (g *Gateway) Close() error {
	var err error
	g.once.Do(func() {
		close(g.quit)
		g.wg.Wait()
		err = g.opts.Provider.Close()
	})
	return err
}

func (g *Gateway) finish(ctx context.Context, logger *slog.Logger, entry journal.Entry, err error) error {
	entry.FinishedAt = time.Now().UTC()
	var fault *Fault
	if err != nil {
		fault = FaultFrom(err)
		fault.RequestID = entry.RequestID
		entry.Status = journal.StatusFailed
		entry.ErrorCode = fault.Code
		entry.ErrorMessage = fault.Message
	} else {
		entry.Status = journal.StatusSucceeded
	}

	g.mu.Lock()
	g.lastRequestID = entry.RequestID
	if fault != nil {
		g.failed++
		g.lastError = fault.Error()
	} else {
		g.served++
	}
	g.mu.Unlock()

	if fault != nil {
		logging.WarnWithContext(logger, "conversion failed", "conversion_failed",
			logging.String("code", fault.Code),
			logging.String("reason", fault.Message),
			logging.String("source", entry.Source),
			logging.String(logging.FieldImpact, "request returned an error to the caller"),
		)
	} else {
		logger.Info("conversion finished",
			logging.String(logging.FieldEventType, "conversion_finished"),
			logging.String("source", entry.Source),
			logging.String("sink", entry.Sink),
			logging.String("export_filter", entry.ExportFilter),
			logging.Int64("output_bytes", entry.OutputBytes),
			logging.Duration("duration", entry.Duration()),
		)
	}

	if g.opts.Journal != nil {
		if _, recErr := g.opts.Journal.Record(context.WithoutCancel(ctx), entry); recErr != nil {
			logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
				logging.Error(recErr),
				logging.String(logging.FieldImpact, "request missing from conversion history"),
			)
		}
	}

	if fault == nil {
		return nil
	}
	return fault
}
