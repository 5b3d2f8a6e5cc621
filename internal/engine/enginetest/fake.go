// Package enginetest provides an in-memory engine.Session for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"docgate/internal/engine"
)

// Engine is a counting fake of the document engine. Zero value is usable but
// has an empty catalog; New returns one preloaded with a small writer/calc set.
type Engine struct {
	mu sync.Mutex

	// ImportCatalog and ExportCatalog back the two filter queries.
	ImportCatalog []engine.FilterRecord
	ExportCatalog []engine.FilterRecord
	// Types maps a file extension (without dot) to a type token.
	Types map[string]string
	// Services is reported for every loaded document unless ServicesFor matches.
	Services    []string
	ServicesFor map[string][]string
	// IndexCount is the number of indexes each document reports.
	IndexCount int
	// NoIndexes makes documents report engine.ErrUnsupported for index calls.
	NoIndexes bool
	// RejectLoad makes LoadDocument return no handle.
	RejectLoad bool
	// LoadErr, ExportErr, and QueryErr inject transport failures.
	LoadErr   error
	ExportErr error
	QueryErr  error
	// Output is what exports produce.
	Output []byte

	loads        int
	closes       int
	refreshes    int
	indexUpdates int
	exports      int
	queries      int
	nextID       int
	open         map[string]loaded
	lastLoadURL  string
	lastLoad     []engine.PropertyValue
	lastExport   []engine.PropertyValue
	lastExportTo string
	closed       bool
}

type loaded struct {
	url      string
	services []string
}

// New returns a fake with a representative filter catalog.
func New() *Engine {
	return &Engine{
		ImportCatalog: []engine.FilterRecord{
			{Name: "writer8", DocumentService: engine.TextDocument, Type: "writer8", UIName: "ODF Text Document", UserData: []string{"", "odt"}},
			{Name: "MS Word 2007 XML", DocumentService: engine.TextDocument, Type: "writer_MS_Word_2007", UIName: "Word 2007-365", UserData: []string{"true", "docx", "ms.word"}},
			{Name: "calc8", DocumentService: engine.SpreadsheetDocument, Type: "calc8", UIName: "ODF Spreadsheet", UserData: []string{"ods"}},
		},
		ExportCatalog: []engine.FilterRecord{
			{Name: "writer8", DocumentService: engine.TextDocument, Type: "writer8", UIName: "ODF Text Document", UserData: []string{"odt"}},
			{Name: "writer_pdf_Export", DocumentService: engine.TextDocument, Type: "pdf_Portable_Document_Format", UIName: "PDF", UserData: []string{"", "pdf", "true"}},
			{Name: "calc_pdf_Export", DocumentService: engine.SpreadsheetDocument, Type: "pdf_Portable_Document_Format", UIName: "PDF", UserData: []string{"pdf"}},
			{Name: "Calc MS Excel 2007 XML", DocumentService: engine.SpreadsheetDocument, Type: "MS Excel 2007 XML", UIName: "Excel 2007-365", UserData: []string{"xlsx", "/tmp/x"}},
		},
		Types: map[string]string{
			"odt":  "writer8",
			"pdf":  "pdf_Portable_Document_Format",
			"xlsx": "MS Excel 2007 XML",
			"ods":  "calc8",
		},
		Services:   []string{"com.sun.star.document.OfficeDocument", engine.TextDocument},
		IndexCount: 2,
		Output:     []byte("%PDF-fake"),
	}
}

func (e *Engine) LoadDocument(_ context.Context, rawURL string, props []engine.PropertyValue) (*engine.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	e.lastLoadURL = rawURL
	e.lastLoad = append([]engine.PropertyValue(nil), props...)
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	if e.RejectLoad {
		return nil, nil
	}
	if rawURL == engine.StreamURL {
		if _, ok := engine.LookupProperty(props, "InputStream"); !ok {
			return nil, nil
		}
	}
	e.nextID++
	id := fmt.Sprintf("doc-%d", e.nextID)
	if e.open == nil {
		e.open = make(map[string]loaded)
	}
	services := e.Services
	if svc, ok := e.ServicesFor[rawURL]; ok {
		services = svc
	}
	e.open[id] = loaded{url: rawURL, services: services}
	return &engine.Document{ID: id}, nil
}

func (e *Engine) RefreshDocument(_ context.Context, doc engine.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOpen(doc); err != nil {
		return err
	}
	if e.NoIndexes {
		return engine.ErrUnsupported
	}
	e.refreshes++
	return nil
}

func (e *Engine) DocumentIndexes(_ context.Context, doc engine.Document) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOpen(doc); err != nil {
		return 0, err
	}
	if e.NoIndexes {
		return 0, engine.ErrUnsupported
	}
	return e.IndexCount, nil
}

func (e *Engine) UpdateIndex(_ context.Context, doc engine.Document, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOpen(doc); err != nil {
		return err
	}
	if index < 0 || index >= e.IndexCount {
		return fmt.Errorf("index %d out of range", index)
	}
	e.indexUpdates++
	return nil
}

func (e *Engine) DocumentServices(_ context.Context, doc engine.Document) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOpen(doc); err != nil {
		return nil, err
	}
	return append([]string(nil), e.open[doc.ID].services...), nil
}

func (e *Engine) ExportDocument(_ context.Context, doc engine.Document, rawURL string, props []engine.PropertyValue) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOpen(doc); err != nil {
		return nil, err
	}
	e.exports++
	e.lastExportTo = rawURL
	e.lastExport = append([]engine.PropertyValue(nil), props...)
	if e.ExportErr != nil {
		return nil, e.ExportErr
	}
	if rawURL == engine.StreamURL {
		return append([]byte(nil), e.Output...), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("unsupported export url %q", rawURL)
	}
	if err := os.WriteFile(u.Path, e.Output, 0o644); err != nil {
		return nil, err
	}
	return nil, nil
}

func (e *Engine) CloseDocument(_ context.Context, doc engine.Document, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOpen(doc); err != nil {
		return err
	}
	e.closes++
	delete(e.open, doc.ID)
	return nil
}

func (e *Engine) QueryFilters(_ context.Context, query string) (engine.FilterCursor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries++
	if e.QueryErr != nil {
		return nil, e.QueryErr
	}
	var records []engine.FilterRecord
	switch query {
	case engine.ImportFilterQuery:
		records = e.ImportCatalog
	case engine.ExportFilterQuery:
		records = e.ExportCatalog
	default:
		return nil, fmt.Errorf("unsupported filter query %q", query)
	}
	return &cursor{records: append([]engine.FilterRecord(nil), records...)}, nil
}

func (e *Engine) QueryTypeByURL(_ context.Context, rawURL string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rawURL == engine.StreamURL {
		return "", nil
	}
	ext := strings.TrimPrefix(path.Ext(rawURL), ".")
	return e.Types[ext], nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) requireOpen(doc engine.Document) error {
	if _, ok := e.open[doc.ID]; !ok {
		return errors.New("document " + doc.ID + " is not open")
	}
	return nil
}

// Counts is a snapshot of the fake's call counters.
type Counts struct {
	Loads        int
	Closes       int
	Refreshes    int
	IndexUpdates int
	Exports      int
	Queries      int
	Open         int
}

func (e *Engine) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Counts{
		Loads:        e.loads,
		Closes:       e.closes,
		Refreshes:    e.refreshes,
		IndexUpdates: e.indexUpdates,
		Exports:      e.exports,
		Queries:      e.queries,
		Open:         len(e.open),
	}
}

// LastLoad returns the URL and properties of the most recent load.
func (e *Engine) LastLoad() (string, []engine.PropertyValue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastLoadURL, append([]engine.PropertyValue(nil), e.lastLoad...)
}

// LastExport returns the URL and properties of the most recent export.
func (e *Engine) LastExport() (string, []engine.PropertyValue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastExportTo, append([]engine.PropertyValue(nil), e.lastExport...)
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type cursor struct {
	records []engine.FilterRecord
	pos     int
	closed  bool
}

func (c *cursor) Next(context.Context) (engine.FilterRecord, bool, error) {
	if c.closed {
		return engine.FilterRecord{}, false, errors.New("cursor closed")
	}
	if c.pos >= len(c.records) {
		return engine.FilterRecord{}, false, nil
	}
	rec := c.records[c.pos]
	c.pos++
	return rec, true, nil
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
