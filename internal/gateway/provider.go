package gateway

import (
	"context"
	"log/slog"
	"sync"

	"docgate/internal/bridge"
	"docgate/internal/engine"
	"docgate/internal/logging"
)

// SessionProvider hands the worker a live engine session.
type SessionProvider interface {
	Session(ctx context.Context) (engine.Session, error)
	Connected() bool
	Close() error
}

// Dialer opens one engine session.
type Dialer func(ctx context.Context) (engine.Session, error)

// BridgeDialer dials the engine bridge at host:port.
func BridgeDialer(host string, port int) Dialer {
	return func(ctx context.Context) (engine.Session, error) {
		session, err := bridge.Connect(ctx, host, port)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// SharedProvider keeps one session and redials, once per call, when the held
// session has closed.
type SharedProvider struct {
	dial   Dialer
	logger *slog.Logger

	mu      sync.Mutex
	session engine.Session
}

func NewSharedProvider(dial Dialer, logger *slog.Logger) *SharedProvider {
	return &SharedProvider{dial: dial, logger: logging.NewComponentLogger(logger, "gateway")}
}

func (p *SharedProvider) Session(ctx context.Context) (engine.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil && !isClosed(p.session) {
		return p.session, nil
	}
	if p.session != nil {
		p.logger.Info("engine session lost, reconnecting",
			logging.String(logging.FieldEventType, "engine_reconnect"))
		_ = p.session.Close()
		p.session = nil
	}
	session, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.session = session
	return session, nil
}

func (p *SharedProvider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil && !isClosed(p.session)
}

func (p *SharedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}

func isClosed(session engine.Session) bool {
	c, ok := session.(interface{ Closed() bool })
	return ok && c.Closed()
}
