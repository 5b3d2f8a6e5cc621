package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docgate/internal/engine"
	"docgate/internal/engine/enginetest"
	"docgate/internal/gateway"
	"docgate/internal/httpapi"
	"docgate/internal/journal"
	"docgate/internal/logging"
	"docgate/internal/testsupport"
)

type fixture struct {
	fake    *enginetest.Engine
	store   *journal.Store
	handler http.Handler
}

func newFixture(t *testing.T, opts httpapi.Options) fixture {
	t.Helper()
	fake := enginetest.New()
	store := testsupport.MustOpenJournal(t, testsupport.NewConfig(t))
	provider := gateway.NewSharedProvider(func(context.Context) (engine.Session, error) { return fake, nil }, logging.NewNop())
	gw, err := gateway.New(gateway.Options{Provider: provider, Journal: store, Connection: "test"}, logging.NewNop())
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:0"
	}
	srv, err := httpapi.New(opts, gw, store, logging.NewNop())
	if err != nil {
		t.Fatalf("httpapi.New: %v", err)
	}
	return fixture{fake: fake, store: store, handler: srv.Handler()}
}

func (f fixture) do(t *testing.T, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type faultBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Available []string `json:"available"`
	RequestID string   `json:"request_id"`
}

func decodeFault(t *testing.T, rec *httptest.ResponseRecorder) faultBody {
	t.Helper()
	var body faultBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode fault %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestConvertInlineReturnsBytes(t *testing.T) {
	f := newFixture(t, httpapi.Options{})

	rec := f.do(t, http.MethodPost, "/api/convert", gateway.ConvertRequest{InputData: []byte("doc"), ConvertTo: "pdf"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("content type = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), f.fake.Output) {
		t.Fatalf("body = %q", rec.Body.Bytes())
	}
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Export-Filter") != "writer_pdf_Export" {
		t.Fatalf("missing headers %v", rec.Header())
	}
}

func TestConvertToPathReturnsNoContent(t *testing.T) {
	f := newFixture(t, httpapi.Options{})
	dir := t.TempDir()
	input := filepath.Join(dir, "in.odt")
	if err := os.WriteFile(input, []byte("doc"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/convert", gateway.ConvertRequest{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "out.pdf"),
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

func TestConvertFaultStatuses(t *testing.T) {
	f := newFixture(t, httpapi.Options{})

	tests := []struct {
		name   string
		req    gateway.ConvertRequest
		status int
		code   string
	}{
		{name: "missing source", req: gateway.ConvertRequest{ConvertTo: "pdf"}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing file", req: gateway.ConvertRequest{InputPath: "/nonexistent/in.odt", ConvertTo: "pdf"}, status: http.StatusNotFound, code: "source_not_found"},
		{name: "no filter", req: gateway.ConvertRequest{InputData: []byte("doc"), ConvertTo: "xlsx"}, status: http.StatusUnprocessableEntity, code: "no_filter_found"},
		{name: "unknown export filter", req: gateway.ConvertRequest{InputData: []byte("doc"), ConvertTo: "pdf", FilterName: "nope"}, status: http.StatusUnprocessableEntity, code: "unknown_export_filter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/convert", tt.req, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			body := decodeFault(t, rec)
			if body.Code != tt.code {
				t.Fatalf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}

	rec := f.do(t, http.MethodPost, "/api/convert", gateway.ConvertRequest{InputData: []byte("doc"), ConvertTo: "pdf", FilterName: "nope"}, nil)
	if body := decodeFault(t, rec); len(body.Available) == 0 {
		t.Fatalf("expected available filter names, got %+v", body)
	}
}

func TestConvertRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, httpapi.Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(`{"convert_to":`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeFault(t, rec); body.Code != "invalid_request" {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestFiltersAndStatus(t *testing.T) {
	f := newFixture(t, httpapi.Options{})

	rec := f.do(t, http.MethodGet, "/api/filters?direction=import", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("filters status = %d", rec.Code)
	}
	var list struct {
		Filters []struct {
			Name string `json:"name"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode filters: %v", err)
	}
	if len(list.Filters) != 3 {
		t.Fatalf("expected 3 import filters, got %+v", list.Filters)
	}

	if rec := f.do(t, http.MethodGet, "/api/filters?direction=sideways", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad direction status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/filters", nil, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST filters status = %d", rec.Code)
	}

	f.do(t, http.MethodPost, "/api/convert", gateway.ConvertRequest{InputData: []byte("doc"), ConvertTo: "pdf"}, nil)

	rec = f.do(t, http.MethodGet, "/api/status", nil, nil)
	var status gateway.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Served != 1 || status.Connection != "test" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, httpapi.Options{})
	f.do(t, http.MethodPost, "/api/convert", gateway.ConvertRequest{InputData: []byte("doc"), ConvertTo: "pdf"}, nil)

	rec := f.do(t, http.MethodGet, "/api/history?limit=5", nil, nil)
	var body struct {
		Entries  []journal.Entry `json:"entries"`
		Disabled bool            `json:"disabled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if body.Disabled || len(body.Entries) != 1 || body.Entries[0].Status != journal.StatusSucceeded {
		t.Fatalf("unexpected history %+v", body)
	}
	if rec := f.do(t, http.MethodGet, "/api/history?limit=-1", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status = %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	f := newFixture(t, httpapi.Options{Token: "secret"})

	if rec := f.do(t, http.MethodGet, "/api/status", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/status", nil, map[string]string{"Authorization": "Bearer wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/status", nil, map[string]string{"Authorization": "Bearer secret"}); rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, httpapi.Options{Token: "secret", CORSOrigins: []string{"http://localhost:3000"}})

	rec := f.do(t, http.MethodOptions, "/api/convert", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}

	rec = f.do(t, http.MethodOptions, "/api/convert", nil, map[string]string{
		"Origin":                        "http://evil.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestStatusForCode(t *testing.T) {
	tests := map[string]int{
		"invalid_filter_option": http.StatusBadRequest,
		"load_failed":           http.StatusUnprocessableEntity,
		"engine_unavailable":    http.StatusServiceUnavailable,
		"gateway_closed":        http.StatusServiceUnavailable,
		"cancelled":             http.StatusRequestTimeout,
		"engine_failure":        http.StatusInternalServerError,
		"unknown_document_type": http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := httpapi.StatusForCode(code); got != want {
			t.Fatalf("StatusForCode(%q) = %d, want %d", code, got, want)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	store := testsupport.MustOpenJournal(t, testsupport.NewConfig(t))
	provider := gateway.NewSharedProvider(func(context.Context) (engine.Session, error) { return enginetest.New(), nil }, logging.NewNop())
	gw, err := gateway.New(gateway.Options{Provider: provider}, logging.NewNop())
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	srv, err := httpapi.New(httpapi.Options{Bind: "127.0.0.1:0"}, gw, store, logging.NewNop())
	if err != nil {
		t.Fatalf("httpapi.New: %v", err)
	}
	errs, err := srv.Start()
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	resp, err := http.Get("http://" + srv.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	srv.Stop(context.Background())
	if err, ok := <-errs; ok && err != nil {
		t.Fatalf("serve error: %v", err)
	}
}
