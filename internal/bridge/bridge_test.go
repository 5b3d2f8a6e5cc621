package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"docgate/internal/bridge"
	"docgate/internal/convert"
	"docgate/internal/engine"
	"docgate/internal/engine/enginetest"
	"docgate/internal/filters"
	"docgate/internal/logging"
	"docgate/internal/services"
)

func startAgent(t *testing.T, fake *enginetest.Engine) (*bridge.Server, bridge.Endpoint) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	srv, err := bridge.NewServer(context.Background(), fake, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Serve(listener)
	t.Cleanup(srv.Close)
	addr := listener.Addr().(*net.TCPAddr)
	return srv, bridge.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func connect(t *testing.T, ep bridge.Endpoint) *bridge.Session {
	t.Helper()
	session, err := bridge.Connect(context.Background(), ep.Host, ep.Port)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestConnectionStrings(t *testing.T) {
	if got := bridge.ConnectionString("localhost", 2002); got != "uno:socket,host=localhost,port=2002;urp;StarOffice.ComponentContext" {
		t.Fatalf("unexpected connection string %q", got)
	}
	if got := bridge.AcceptString("127.0.0.1", 2002); got != "socket,host=127.0.0.1,port=2002,tcpNoDelay=1;urp;StarOffice.ComponentContext" {
		t.Fatalf("unexpected accept string %q", got)
	}
}

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		raw     string
		want    bridge.Endpoint
		wantErr bool
	}{
		{raw: bridge.ConnectionString("localhost", 2002), want: bridge.Endpoint{Host: "localhost", Port: 2002}},
		{raw: bridge.AcceptString("10.0.0.1", 3000), want: bridge.Endpoint{Host: "10.0.0.1", Port: 3000}},
		{raw: "uno:pipe,name=x;urp;StarOffice.ComponentContext", wantErr: true},
		{raw: "uno:socket,host=a,port=zero;urp;StarOffice.ComponentContext", wantErr: true},
		{raw: "uno:socket,host=a;urp;StarOffice.ComponentContext", wantErr: true},
		{raw: "socket,host=a,port=1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := bridge.ParseConnectionString(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConnectionString: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConvertOverBridge(t *testing.T) {
	fake := enginetest.New()
	_, ep := startAgent(t, fake)
	session := connect(t, ep)

	result, err := convert.New(session, logging.NewNop()).Convert(context.Background(), convert.Request{
		Source:        convert.InlineSource{Data: []byte("hello")},
		Sink:          convert.InlineSink{},
		TargetFormat:  "pdf",
		FilterOptions: []string{"Quality=90", "Lossless=true"},
		UpdateIndex:   true,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !bytes.Equal(result.Data, fake.Output) {
		t.Fatalf("unexpected data %q", result.Data)
	}
	if result.ExportFilter != "writer_pdf_Export" {
		t.Fatalf("unexpected export filter %q", result.ExportFilter)
	}
	counts := fake.Counts()
	if counts.Loads != 1 || counts.Closes != 1 || counts.Open != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if counts.IndexUpdates != 4 {
		t.Fatalf("expected 4 index updates, got %d", counts.IndexUpdates)
	}

	_, props := fake.LastExport()
	data, ok := engine.LookupProperty(props, "FilterData")
	if !ok || len(data.Properties) != 2 {
		t.Fatalf("filter data lost in transit: %+v", props)
	}
	if data.Properties[0].Kind != engine.KindInt || data.Properties[0].Int != 90 {
		t.Fatalf("integer option not preserved: %+v", data.Properties[0])
	}
	if data.Properties[1].Kind != engine.KindBool || !data.Properties[1].Bool {
		t.Fatalf("boolean option not preserved: %+v", data.Properties[1])
	}
	_, loadProps := fake.LastLoad()
	stream, ok := engine.LookupProperty(loadProps, "InputStream")
	if !ok || string(stream.Bytes) != "hello" {
		t.Fatalf("input stream lost in transit: %+v", loadProps)
	}
}

func TestUnsupportedIndexesCrossBridge(t *testing.T) {
	fake := enginetest.New()
	fake.NoIndexes = true
	_, ep := startAgent(t, fake)
	session := connect(t, ep)

	doc, err := session.LoadDocument(context.Background(), "file:///tmp/a.odt", nil)
	if err != nil || doc == nil {
		t.Fatalf("LoadDocument = %v, %v", doc, err)
	}
	if err := session.RefreshDocument(context.Background(), *doc); !errors.Is(err, engine.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := session.DocumentIndexes(context.Background(), *doc); !errors.Is(err, engine.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNoHandleCrossesBridgeAsNil(t *testing.T) {
	fake := enginetest.New()
	fake.RejectLoad = true
	_, ep := startAgent(t, fake)
	session := connect(t, ep)

	doc, err := session.LoadDocument(context.Background(), "file:///tmp/a.odt", nil)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document, got %+v", doc)
	}
}

func TestRemoteFilterCursorBatches(t *testing.T) {
	fake := enginetest.New()
	fake.ExportCatalog = nil
	for i := 0; i < 150; i++ {
		fake.ExportCatalog = append(fake.ExportCatalog, engine.FilterRecord{
			Name:            fmt.Sprintf("filter_%03d", i),
			DocumentService: engine.TextDocument,
			Type:            fmt.Sprintf("type_%03d", i),
		})
	}
	_, ep := startAgent(t, fake)
	session := connect(t, ep)

	descriptors, err := filters.Collect(filters.NewRegistry(session).ExportFilters(context.Background()))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(descriptors) != 150 {
		t.Fatalf("expected 150 filters, got %d", len(descriptors))
	}
	if descriptors[149].Name != "filter_149" {
		t.Fatalf("unexpected order, last = %q", descriptors[149].Name)
	}

	found, ok, err := filters.NewRegistry(session).FindFilter(context.Background(), engine.TextDocument, "type_010")
	if err != nil || !ok || found != "filter_010" {
		t.Fatalf("FindFilter = %q, %v, %v", found, ok, err)
	}
}

func TestEngineErrorsStayEngineErrors(t *testing.T) {
	fake := enginetest.New()
	fake.LoadErr = errors.New("disk on fire")
	_, ep := startAgent(t, fake)
	session := connect(t, ep)

	_, err := session.LoadDocument(context.Background(), "file:///tmp/a.odt", nil)
	if !errors.Is(err, services.ErrEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if session.Closed() {
		t.Fatal("an engine error must not close the session")
	}
}

func TestSessionClosesWhenAgentStops(t *testing.T) {
	fake := enginetest.New()
	srv, ep := startAgent(t, fake)
	session := connect(t, ep)

	srv.Close()
	_, err := session.QueryTypeByURL(context.Background(), "file:///dummy.pdf")
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected engine unavailable, got %v", err)
	}
	if !session.Closed() {
		t.Fatal("expected session to report closed")
	}
	if _, err := session.QueryTypeByURL(context.Background(), "file:///dummy.pdf"); !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected engine unavailable after close, got %v", err)
	}
}

func TestConnectFailsWithoutListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	_, err = bridge.Connect(context.Background(), "127.0.0.1", port)
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected engine unavailable, got %v", err)
	}
}

func TestConnectGivesUpOnSilentListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	defer listener.Close()
	var (
		mu   sync.Mutex
		held []net.Conn
	)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range held {
			_ = conn.Close()
		}
	})
	port := listener.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err = bridge.Connect(ctx, "127.0.0.1", port)
	if !errors.Is(err, services.ErrEngineUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected unavailable after deadline, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("Connect took %s against a silent listener", elapsed)
	}
}
