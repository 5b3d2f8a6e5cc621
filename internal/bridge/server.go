package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strconv"
	"sync"

	"docgate/internal/engine"
	"docgate/internal/logging"
)

// agentName is reported by Ping.
const agentName = "docgate-bridge"

// Server is the engine side of the bridge: it exposes an engine.Session to
// remote Session clients over JSON-RPC.
type Server struct {
	logger    *slog.Logger
	rpcServer *rpc.Server
	agent     *agent

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer registers session behind the bridge protocol.
func NewServer(ctx context.Context, session engine.Session, logger *slog.Logger) (*Server, error) {
	if session == nil {
		return nil, errors.New("bridge server requires an engine session")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "bridge")

	serverCtx, cancel := context.WithCancel(ctx)
	a := &agent{session: session, ctx: serverCtx, cursors: make(map[string]engine.FilterCursor)}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, a); err != nil {
		cancel()
		return nil, fmt.Errorf("register bridge service: %w", err)
	}
	return &Server{
		logger:    logger,
		rpcServer: rpcServer,
		agent:     a,
		conns:     make(map[net.Conn]struct{}),
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts bridge clients on listener until Close.
func (s *Server) Serve(listener net.Listener) {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Debug("bridge listening", logging.String("address", listener.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "bridge_accept_failed"),
					logging.String(logging.FieldImpact, "bridge clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check the engine port and restart the service if needed"))
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops accepting, drops connected clients, and releases open cursors.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.agent.closeCursors()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

type agent struct {
	session engine.Session
	ctx     context.Context

	mu         sync.Mutex
	cursors    map[string]engine.FilterCursor
	nextCursor int
}

func (a *agent) Ping(_ PingRequest, resp *PingResponse) error {
	resp.Agent = agentName
	return nil
}

func (a *agent) LoadDocument(req LoadRequest, resp *LoadResponse) error {
	doc, err := a.session.LoadDocument(a.ctx, req.URL, req.Properties)
	if err != nil {
		return err
	}
	resp.Document = doc
	return nil
}

func (a *agent) RefreshDocument(req DocumentRequest, resp *CapabilityResponse) error {
	err := a.session.RefreshDocument(a.ctx, req.Document)
	if errors.Is(err, engine.ErrUnsupported) {
		resp.Unsupported = true
		return nil
	}
	return err
}

func (a *agent) DocumentIndexes(req DocumentRequest, resp *IndexesResponse) error {
	count, err := a.session.DocumentIndexes(a.ctx, req.Document)
	if errors.Is(err, engine.ErrUnsupported) {
		resp.Unsupported = true
		return nil
	}
	if err != nil {
		return err
	}
	resp.Count = count
	return nil
}

func (a *agent) UpdateIndex(req UpdateIndexRequest, _ *Empty) error {
	return a.session.UpdateIndex(a.ctx, req.Document, req.Index)
}

func (a *agent) DocumentServices(req DocumentRequest, resp *ServicesResponse) error {
	services, err := a.session.DocumentServices(a.ctx, req.Document)
	if err != nil {
		return err
	}
	resp.Services = services
	return nil
}

func (a *agent) ExportDocument(req ExportRequest, resp *ExportResponse) error {
	data, err := a.session.ExportDocument(a.ctx, req.Document, req.URL, req.Properties)
	if err != nil {
		return err
	}
	resp.Data = data
	return nil
}

func (a *agent) CloseDocument(req CloseRequest, _ *Empty) error {
	return a.session.CloseDocument(a.ctx, req.Document, req.Discard)
}

func (a *agent) QueryTypeByURL(req TypeRequest, resp *TypeResponse) error {
	typ, err := a.session.QueryTypeByURL(a.ctx, req.URL)
	if err != nil {
		return err
	}
	resp.Type = typ
	return nil
}

func (a *agent) QueryFilters(req QueryRequest, resp *QueryResponse) error {
	cursor, err := a.session.QueryFilters(a.ctx, req.Query)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.nextCursor++
	id := "cursor-" + strconv.Itoa(a.nextCursor)
	a.cursors[id] = cursor
	a.mu.Unlock()
	resp.Cursor = id
	return nil
}

func (a *agent) NextFilters(req CursorRequest, resp *CursorResponse) error {
	a.mu.Lock()
	cursor, ok := a.cursors[req.Cursor]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown cursor %q", req.Cursor)
	}
	for len(resp.Records) < cursorBatch {
		record, more, err := cursor.Next(a.ctx)
		if err != nil {
			a.dropCursor(req.Cursor)
			return err
		}
		if !more {
			resp.Done = true
			a.dropCursor(req.Cursor)
			return nil
		}
		resp.Records = append(resp.Records, record)
	}
	return nil
}

func (a *agent) CloseCursor(req CursorRequest, _ *Empty) error {
	return a.dropCursor(req.Cursor)
}

func (a *agent) dropCursor(id string) error {
	a.mu.Lock()
	cursor, ok := a.cursors[id]
	delete(a.cursors, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return cursor.Close()
}

func (a *agent) closeCursors() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.cursors))
	for id := range a.cursors {
		ids = append(ids, id)
	}
	a.mu.Unlock()
	for _, id := range ids {
		_ = a.dropCursor(id)
	}
}
