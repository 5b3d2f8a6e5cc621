package bridge

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"sync/atomic"
	"time"

	"docgate/internal/engine"
	"docgate/internal/services"
)

// handshakeTimeout bounds the Ping sent after dialing when the caller's
// context has no deadline of its own.
const handshakeTimeout = 5 * time.Second

// Session is a bridge connection to the engine. It implements engine.Session.
type Session struct {
	endpoint Endpoint
	client   *rpc.Client
	closed   atomic.Bool
	once     sync.Once
}

var _ engine.Session = (*Session)(nil)

// Connect dials the engine bridge once and waits for the agent to answer a
// Ping. A listener that accepts but never answers fails once ctx expires or
// handshakeTimeout passes. Retrying is the caller's decision.
func Connect(ctx context.Context, host string, port int) (*Session, error) {
	endpoint := Endpoint{Host: host, Port: port}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		return nil, services.Wrap(services.ErrEngineUnavailable, "bridge", "connect", ConnectionString(host, port), err)
	}
	s := &Session{
		endpoint: endpoint,
		client:   rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)),
	}
	pingCtx, cancel := ctx, context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		pingCtx, cancel = context.WithTimeout(ctx, handshakeTimeout)
	}
	defer cancel()
	var pong PingResponse
	if err := s.call(pingCtx, "Ping", PingRequest{}, &pong); err != nil {
		_ = s.Close()
		if pingCtx.Err() != nil {
			return nil, services.Wrap(services.ErrEngineUnavailable, "bridge", "handshake", ConnectionString(host, port), err)
		}
		return nil, err
	}
	return s, nil
}

// Endpoint reports where the session is connected.
func (s *Session) Endpoint() Endpoint { return s.endpoint }

// Closed reports whether the connection is gone.
func (s *Session) Closed() bool { return s.closed.Load() }

// Close tears down the connection.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		if closeErr := s.client.Close(); closeErr != nil && !errors.Is(closeErr, rpc.ErrShutdown) {
			err = closeErr
		}
	})
	return err
}

func (s *Session) call(ctx context.Context, method string, args, reply any) error {
	if s.closed.Load() {
		return services.Wrap(services.ErrEngineUnavailable, "bridge", method, "session closed", nil)
	}
	pending := s.client.Go(serviceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-pending.Done:
		if done.Error == nil {
			return nil
		}
		var remote rpc.ServerError
		if errors.As(done.Error, &remote) {
			return services.Wrap(services.ErrEngine, "bridge", method, "", done.Error)
		}
		s.closed.Store(true)
		return services.Wrap(services.ErrEngineUnavailable, "bridge", method, "", done.Error)
	}
}

func (s *Session) LoadDocument(ctx context.Context, url string, props []engine.PropertyValue) (*engine.Document, error) {
	var resp LoadResponse
	if err := s.call(ctx, "LoadDocument", LoadRequest{URL: url, Properties: props}, &resp); err != nil {
		return nil, err
	}
	return resp.Document, nil
}

func (s *Session) RefreshDocument(ctx context.Context, doc engine.Document) error {
	var resp CapabilityResponse
	if err := s.call(ctx, "RefreshDocument", DocumentRequest{Document: doc}, &resp); err != nil {
		return err
	}
	if resp.Unsupported {
		return engine.ErrUnsupported
	}
	return nil
}

func (s *Session) DocumentIndexes(ctx context.Context, doc engine.Document) (int, error) {
	var resp IndexesResponse
	if err := s.call(ctx, "DocumentIndexes", DocumentRequest{Document: doc}, &resp); err != nil {
		return 0, err
	}
	if resp.Unsupported {
		return 0, engine.ErrUnsupported
	}
	return resp.Count, nil
}

func (s *Session) UpdateIndex(ctx context.Context, doc engine.Document, index int) error {
	return s.call(ctx, "UpdateIndex", UpdateIndexRequest{Document: doc, Index: index}, &Empty{})
}

func (s *Session) DocumentServices(ctx context.Context, doc engine.Document) ([]string, error) {
	var resp ServicesResponse
	if err := s.call(ctx, "DocumentServices", DocumentRequest{Document: doc}, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

func (s *Session) ExportDocument(ctx context.Context, doc engine.Document, url string, props []engine.PropertyValue) ([]byte, error) {
	var resp ExportResponse
	if err := s.call(ctx, "ExportDocument", ExportRequest{Document: doc, URL: url, Properties: props}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (s *Session) CloseDocument(ctx context.Context, doc engine.Document, discard bool) error {
	return s.call(ctx, "CloseDocument", CloseRequest{Document: doc, Discard: discard}, &Empty{})
}

func (s *Session) QueryTypeByURL(ctx context.Context, url string) (string, error) {
	var resp TypeResponse
	if err := s.call(ctx, "QueryTypeByURL", TypeRequest{URL: url}, &resp); err != nil {
		return "", err
	}
	return resp.Type, nil
}

func (s *Session) QueryFilters(ctx context.Context, query string) (engine.FilterCursor, error) {
	var resp QueryResponse
	if err := s.call(ctx, "QueryFilters", QueryRequest{Query: query}, &resp); err != nil {
		return nil, err
	}
	return &remoteCursor{session: s, id: resp.Cursor}, nil
}

// remoteCursor buffers batches pulled from the agent.
type remoteCursor struct {
	session *Session
	id      string
	buf     []engine.FilterRecord
	done    bool
	closed  bool
}

func (c *remoteCursor) Next(ctx context.Context) (engine.FilterRecord, bool, error) {
	if len(c.buf) == 0 && !c.done && !c.closed {
		var resp CursorResponse
		if err := c.session.call(ctx, "NextFilters", CursorRequest{Cursor: c.id}, &resp); err != nil {
			c.done = true
			return engine.FilterRecord{}, false, err
		}
		c.buf = resp.Records
		c.done = resp.Done
	}
	if len(c.buf) == 0 {
		return engine.FilterRecord{}, false, nil
	}
	record := c.buf[0]
	c.buf = c.buf[1:]
	return record, true, nil
}

func (c *remoteCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.buf = nil
	if c.done || c.session.Closed() {
		return nil
	}
	return c.session.call(context.Background(), "CloseCursor", CursorRequest{Cursor: c.id}, &Empty{})
}
