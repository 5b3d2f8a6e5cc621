package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"docgate/internal/convert"
	"docgate/internal/filters"
	"docgate/internal/gateway"
	"docgate/internal/journal"
	"docgate/internal/logging"
)

// maxRequestBytes bounds a convert request body, inline document included.
const maxRequestBytes = 256 << 20

// Gateway is the subset of *gateway.Gateway the HTTP API serves.
type Gateway interface {
	Convert(ctx context.Context, req gateway.ConvertRequest) (gateway.ConvertResponse, error)
	Filters(ctx context.Context, direction filters.Direction) ([]filters.Descriptor, error)
	Status(ctx context.Context) gateway.Status
}

// History lists journal entries. Nil makes /api/history report it disabled.
type History interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Options configures the HTTP API.
type Options struct {
	Bind        string
	Token       string
	CORSOrigins []string
}

// Server is the optional HTTP front end of the gateway.
type Server struct {
	opts     Options
	logger   *slog.Logger
	gateway  Gateway
	history  History
	handler  http.Handler
	server   *http.Server
	listener net.Listener
}

// New builds the server. It does not listen until Start.
func New(opts Options, gw Gateway, history History, logger *slog.Logger) (*Server, error) {
	if gw == nil {
		return nil, errors.New("http api requires gateway")
	}
	if strings.TrimSpace(opts.Bind) == "" {
		return nil, errors.New("http api requires a bind address")
	}
	s := &Server{
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "httpapi"),
		gateway: gw,
		history: history,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/filters", s.handleFilters)
	mux.HandleFunc("/api/convert", s.handleConvert)
	mux.HandleFunc("/api/history", s.handleHistory)

	var handler http.Handler = mux
	handler = authMiddleware(opts.Token, handler)
	handler = recoveryMiddleware(s.logger, handler)
	if len(opts.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposedHeaders: []string{"X-Request-ID", "X-Export-Filter"},
		}).Handler(handler)
	}
	s.handler = handler

	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler exposes the full middleware chain.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr reports the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.opts.Bind
	}
	return s.listener.Addr().String()
}

// Start listens on the bind address and serves in the background. Serve
// errors after startup are sent on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return nil, fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	errs := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed", logging.Error(err))
			errs <- err
		}
		close(errs)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.opts.Token != ""),
		logging.Int("cors_origins", len(s.opts.CORSOrigins)),
	)
	return errs, nil
}

// Stop shuts the server down, waiting briefly for in-flight responses.
func (s *Server) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, s.gateway.Status(r.Context()))
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	direction, err := filters.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.gateway.Filters(r.Context(), direction)
	if err != nil {
		s.writeFault(w, gateway.FaultFrom(err))
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"filters": list})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req gateway.ConvertRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeFault(w, &gateway.Fault{Code: string(convert.KindInvalidRequest), Message: fmt.Sprintf("decode request: %v", err)})
		return
	}

	resp, err := s.gateway.Convert(r.Context(), req)
	if err != nil {
		s.writeFault(w, gateway.FaultFrom(err))
		return
	}
	w.Header().Set("X-Request-ID", resp.RequestID)
	w.Header().Set("X-Export-Filter", resp.ExportFilter)
	if req.OutputPath != "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Data); err != nil {
		s.logger.Debug("write converted bytes", logging.Error(err))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeJSON(s.logger, w, http.StatusOK, map[string]any{"entries": []journal.Entry{}, "disabled": true})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"entries": entries, "disabled": false})
}

type errorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Available []string `json:"available,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func (s *Server) writeFault(w http.ResponseWriter, fault *gateway.Fault) {
	if fault.RequestID != "" {
		w.Header().Set("X-Request-ID", fault.RequestID)
	}
	writeJSON(s.logger, w, StatusForCode(fault.Code), errorBody{
		Code:      fault.Code,
		Message:   fault.Message,
		Available: fault.Available,
		RequestID: fault.RequestID,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(s.logger, w, status, errorBody{Code: strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_"), Message: message})
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

// StatusForCode maps a fault code to an HTTP status.
func StatusForCode(code string) int {
	switch code {
	case string(convert.KindInvalidRequest), string(convert.KindInvalidFilterOption):
		return http.StatusBadRequest
	case string(convert.KindSourceNotFound):
		return http.StatusNotFound
	case string(convert.KindLoadFailed),
		string(convert.KindUnknownImportFilter),
		string(convert.KindUnknownExportFilter),
		string(convert.KindUnknownExportType),
		string(convert.KindNoFilterFound):
		return http.StatusUnprocessableEntity
	case string(convert.KindEngineUnavailable), gateway.CodeGatewayClosed:
		return http.StatusServiceUnavailable
	case gateway.CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
