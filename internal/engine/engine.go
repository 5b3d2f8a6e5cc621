package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
)

// StreamURL addresses an in-memory stream instead of a file on disk.
const StreamURL = "private:stream"

const (
	// ImportFilterQuery enumerates import-capable filters in stable order.
	ImportFilterQuery = "getSortedFilterList():iflags=1"
	// ExportFilterQuery enumerates export-capable filters in stable order.
	ExportFilterQuery = "getSortedFilterList():iflags=2"
)

// Document type identifiers the engine may report for a loaded document.
const (
	SpreadsheetDocument  = "com.sun.star.sheet.SpreadsheetDocument"
	TextDocument         = "com.sun.star.text.TextDocument"
	PresentationDocument = "com.sun.star.presentation.PresentationDocument"
	DrawingDocument      = "com.sun.star.drawing.DrawingDocument"
	DocumentDataSource   = "com.sun.star.sdb.DocumentDataSource"
	FormulaProperties    = "com.sun.star.formula.FormulaProperties"
	BasicIDE             = "com.sun.star.script.BasicIDE"
	WebDocument          = "com.sun.star.text.WebDocument"
)

// knownDocumentTypes is checked in order; the first supported entry wins.
var knownDocumentTypes = []string{
	SpreadsheetDocument,
	TextDocument,
	PresentationDocument,
	DrawingDocument,
	DocumentDataSource,
	FormulaProperties,
	BasicIDE,
	WebDocument,
}

// ErrUnsupported reports that a document lacks an optional capability.
var ErrUnsupported = errors.New("capability not supported by document")

// Document is an opaque handle to a document loaded inside the engine.
type Document struct {
	ID string `json:"id"`
}

// FilterRecord is one entry of the engine's filter catalog.
type FilterRecord struct {
	Name            string   `json:"name"`
	UIName          string   `json:"ui_name,omitempty"`
	DocumentService string   `json:"document_service"`
	Type            string   `json:"type"`
	Flags           int      `json:"flags,omitempty"`
	UserData        []string `json:"user_data,omitempty"`
}

// FilterCursor walks a catalog query result once.
type FilterCursor interface {
	Next(ctx context.Context) (FilterRecord, bool, error)
	Close() error
}

// Loader drives documents inside the engine.
type Loader interface {
	// LoadDocument returns nil without error when the engine produced no document.
	LoadDocument(ctx context.Context, url string, props []PropertyValue) (*Document, error)
	RefreshDocument(ctx context.Context, doc Document) error
	DocumentIndexes(ctx context.Context, doc Document) (int, error)
	UpdateIndex(ctx context.Context, doc Document, index int) error
	DocumentServices(ctx context.Context, doc Document) ([]string, error)
	// ExportDocument returns the captured bytes when url is StreamURL.
	ExportDocument(ctx context.Context, doc Document, url string, props []PropertyValue) ([]byte, error)
	CloseDocument(ctx context.Context, doc Document, discard bool) error
}

// FilterCatalog exposes the engine's import/export filter definitions.
type FilterCatalog interface {
	QueryFilters(ctx context.Context, query string) (FilterCursor, error)
}

// TypeDetector maps URLs to engine file-type tokens.
type TypeDetector interface {
	// QueryTypeByURL returns an empty string when no type matches.
	QueryTypeByURL(ctx context.Context, url string) (string, error)
}

// Session is a live connection to the engine and the services obtained through it.
type Session interface {
	Loader
	FilterCatalog
	TypeDetector
	Close() error
}

// KnownDocumentTypes returns the closed set of document types in match order.
func KnownDocumentTypes() []string {
	out := make([]string, len(knownDocumentTypes))
	copy(out, knownDocumentTypes)
	return out
}

// DocumentType picks the first known document type present in services.
func DocumentType(services []string) (string, bool) {
	supported := make(map[string]struct{}, len(services))
	for _, svc := range services {
		supported[svc] = struct{}{}
	}
	for _, candidate := range knownDocumentTypes {
		if _, ok := supported[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// SystemPathToURL converts a local path into an absolute file URL.
func SystemPathToURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// DummyURL builds the probe URL used to detect a file type from an extension.
func DummyURL(extension string) string {
	return "file:///dummy." + extension
}
