package rpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"docgate/internal/filters"
	"docgate/internal/gateway"
	"docgate/internal/journal"
	"docgate/internal/logging"
)

// serviceName is the RPC service clients address.
const serviceName = "DocGate"

// Gateway is the subset of *gateway.Gateway the server exposes.
type Gateway interface {
	Convert(ctx context.Context, req gateway.ConvertRequest) (gateway.ConvertResponse, error)
	Filters(ctx context.Context, direction filters.Direction) ([]filters.Descriptor, error)
	Status(ctx context.Context) gateway.Status
}

// History lists journal entries. Nil disables the History call.
type History interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server exposes the gateway via JSON-RPC over TCP.
type Server struct {
	addr      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer listens on addr and registers the DocGate service.
func NewServer(ctx context.Context, addr string, gw Gateway, history History, logger *slog.Logger) (*Server, error) {
	if gw == nil {
		return nil, errors.New("rpc server requires gateway")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "rpcapi")

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{gateway: gw, history: history, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		addr:      addr,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		conns:     make(map[net.Conn]struct{}),
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Addr reports the bound listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve starts accepting RPC connections until Close or the context ends.
func (s *Server) Serve() {
	s.logger.Info("rpc server listening",
		logging.String("address", s.Addr()),
		logging.String(logging.FieldEventType, "rpc_listening"))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
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
					logging.String(logging.FieldEventType, "rpc_accept_failed"),
					logging.String(logging.FieldImpact, "RPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check the server port and restart the service if needed"))
				continue
			}
			s.mu.Lock()
			s.conns[conn] = struct{}{}
			s.mu.Unlock()
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
				s.mu.Lock()
				delete(s.conns, c)
				s.mu.Unlock()
			}(conn)
		}
	}()
}

// Close stops the listener and disconnects clients. A call that is already
// running on the gateway still completes there.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

type service struct {
	gateway Gateway
	history History
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) Convert(req ConvertRequest, resp *ConvertResponse) error {
	s.logger.Debug("convert requested",
		logging.String("input_path", req.InputPath),
		logging.Int("input_bytes", len(req.InputData)),
		logging.String("output_path", req.OutputPath),
		logging.String("convert_to", req.ConvertTo))
	result, err := s.gateway.Convert(s.ctx, req)
	if err != nil {
		return faultError(err)
	}
	*resp = result
	return nil
}

func (s *service) Filters(req FiltersRequest, resp *FiltersResponse) error {
	direction, err := filters.ParseDirection(req.Direction)
	if err != nil {
		return err
	}
	list, err := s.gateway.Filters(s.ctx, direction)
	if err != nil {
		return faultError(err)
	}
	resp.Filters = list
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.gateway.Status(s.ctx)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	if s.history == nil {
		resp.Disabled = true
		return nil
	}
	entries, err := s.history.List(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

// faultError flattens a fault into the "code: message" text net/rpc carries.
func faultError(err error) error {
	return errors.New(gateway.FaultFrom(err).Error())
}
