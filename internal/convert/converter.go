package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"docgate/internal/engine"
	"docgate/internal/filters"
	"docgate/internal/logging"
)

// indexPasses bounds how many times indexes are refreshed before export.
const indexPasses = 2

// Result is the outcome of a successful conversion. Data is set only for inline sinks.
type Result struct {
	Data         []byte
	State        State
	DocumentType string
	TargetType   string
	ImportFilter string
	ExportFilter string
}

// Converter drives one conversion against an engine session. It is not safe
// for concurrent use; build one per request.
type Converter struct {
	session  engine.Session
	registry *filters.Registry
	logger   *slog.Logger
	state    State
	history  []State
}

// New binds a converter to session.
func New(session engine.Session, logger *slog.Logger) *Converter {
	return &Converter{
		session:  session,
		registry: filters.NewRegistry(session),
		logger:   logging.NewComponentLogger(logger, "convert"),
		state:    StateIdle,
	}
}

// State returns the converter's current state.
func (c *Converter) State() State { return c.state }

// History lists the states entered after Idle, in order.
func (c *Converter) History() []State {
	return append([]State(nil), c.history...)
}

// Convert runs load, optional index refresh, filter resolution, export, and
// close. Once a document is loaded it is closed exactly once on every path.
func (c *Converter) Convert(ctx context.Context, req Request) (result Result, err error) {
	logger := logging.WithContext(ctx, c.logger)
	defer func() {
		if err != nil {
			var convErr *Error
			if !errors.As(err, &convErr) {
				err = engineError(c.state, "conversion", err)
			}
			if c.state != StateClosed {
				c.transition(logger, StateClosed)
			}
			result = Result{State: StateClosed}
		}
	}()

	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	importFilter, err := c.resolveImportFilter(ctx, req.ImportFilter)
	if err != nil {
		return Result{}, err
	}

	c.transition(logger, StateLoading)
	doc, err := c.load(ctx, logger, req, importFilter)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		closeErr := c.session.CloseDocument(context.WithoutCancel(ctx), *doc, true)
		c.transition(logger, StateClosed)
		if closeErr != nil {
			logging.WarnWithContext(logger, "document close failed", "document_close_failed",
				logging.String("document_id", doc.ID),
				logging.Error(closeErr),
				logging.String(logging.FieldImpact, "engine may hold the document until restart"),
			)
			if err == nil {
				err = engineError(StateClosed, "close document", closeErr)
			}
		}
	}()

	if req.UpdateIndex {
		c.transition(logger, StateIndexRefresh)
		if err := c.refreshIndexes(ctx, *doc); err != nil {
			return Result{}, err
		}
	}

	c.transition(logger, StateFilterResolution)
	services, err := c.session.DocumentServices(ctx, *doc)
	if err != nil {
		return Result{}, engineError(c.state, "document type lookup", err)
	}
	docType, ok := engine.DocumentType(services)
	if !ok {
		return Result{}, &Error{
			Kind:    KindUnknownDocumentType,
			Message: fmt.Sprintf("The engine reported a document type outside the known set (services %v). This is a bug, please report it.", services),
			State:   c.state,
		}
	}

	exportURL := engine.StreamURL
	if sink, ok := req.Sink.(FileSink); ok {
		exportURL, err = engine.SystemPathToURL(sink.Path)
		if err != nil {
			return Result{}, &Error{Kind: KindInvalidRequest, Message: "invalid output path", State: c.state, Err: err}
		}
	}

	targetType, err := c.targetType(ctx, req, exportURL)
	if err != nil {
		return Result{}, err
	}

	exportFilter, err := c.resolveExportFilter(ctx, req.ExportFilter, docType, targetType)
	if err != nil {
		return Result{}, err
	}

	filterData, err := ParseFilterOptions(req.FilterOptions)
	if err != nil {
		var convErr *Error
		if errors.As(err, &convErr) {
			convErr.State = c.state
		}
		return Result{}, err
	}

	c.transition(logger, StateExporting)
	logger.Info("exporting document",
		logging.String("sink", SinkLabel(req.Sink)),
		logging.String("export_filter", exportFilter),
		logging.String("import_filter", displayFilter(importFilter)),
		logging.String("target_type", targetType),
	)
	props := []engine.PropertyValue{
		engine.StringProperty("FilterName", exportFilter),
		engine.BoolProperty("Overwrite", true),
	}
	if len(filterData) > 0 {
		props = append(props, engine.PropertiesProperty("FilterData", filterData))
	}
	data, err := c.session.ExportDocument(ctx, *doc, exportURL, props)
	if err != nil {
		return Result{}, engineError(c.state, "export", err)
	}

	result = Result{
		State:        StateClosed,
		DocumentType: docType,
		TargetType:   targetType,
		ImportFilter: importFilter,
		ExportFilter: exportFilter,
	}
	if _, inline := req.Sink.(InlineSink); inline {
		if data == nil {
			data = []byte{}
		}
		result.Data = data
	}
	return result, nil
}

func (c *Converter) transition(logger *slog.Logger, next State) {
	logger.Debug("conversion state",
		logging.String("from", string(c.state)),
		logging.String("to", string(next)),
		logging.Bool("expected", CanTransition(c.state, next)),
	)
	c.state = next
	c.history = append(c.history, next)
}

func (c *Converter) resolveImportFilter(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	aliases, err := filters.AliasMap(c.registry.ImportFilters(ctx))
	if err != nil {
		return "", engineError(c.state, "import filter listing", err)
	}
	canonical, ok := aliases.Resolve(name)
	if !ok {
		names := aliases.Names()
		return "", &Error{
			Kind:      KindUnknownImportFilter,
			Message:   fmt.Sprintf("There is no '%s' import filter. Available filters: %v", name, names),
			Available: names,
			State:     c.state,
		}
	}
	return canonical, nil
}

func (c *Converter) load(ctx context.Context, logger *slog.Logger, req Request, importFilter string) (*engine.Document, error) {
	props := []engine.PropertyValue{engine.BoolProperty("ReadOnly", true)}
	if importFilter != "" {
		props = append(props, engine.StringProperty("FilterName", importFilter))
	}

	var sourceURL string
	switch src := req.Source.(type) {
	case FileSource:
		if _, err := os.Stat(src.Path); err != nil {
			return nil, &Error{
				Kind:    KindSourceNotFound,
				Message: fmt.Sprintf("Path %s does not exist.", src.Path),
				State:   c.state,
			}
		}
		u, err := engine.SystemPathToURL(src.Path)
		if err != nil {
			return nil, &Error{Kind: KindSourceNotFound, Message: fmt.Sprintf("Path %s does not exist.", src.Path), State: c.state, Err: err}
		}
		sourceURL = u
		logger.Info("opening source", logging.String("path", src.Path))
	case InlineSource:
		props = append(props, engine.BytesProperty("InputStream", src.Data))
		sourceURL = engine.StreamURL
		logger.Info("opening source", logging.String("path", engine.StreamURL), logging.Int("bytes", len(src.Data)))
	default:
		return nil, &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("unsupported source %T", req.Source), State: c.state}
	}

	doc, err := c.session.LoadDocument(ctx, sourceURL, props)
	if err != nil {
		return nil, engineError(c.state, "load", err)
	}
	if doc == nil {
		msg := fmt.Sprintf("Could not load document %s using the %s filter.", SourceLabel(req.Source), displayFilter(importFilter))
		logging.ErrorWithContext(logger, msg, "document_load_failed",
			logging.String(logging.FieldErrorHint, "check that the source is a document the engine can read"),
		)
		return nil, &Error{Kind: KindLoadFailed, Message: msg, State: c.state}
	}
	return doc, nil
}

// refreshIndexes runs up to two refresh passes. A document without index
// support ends the loop without error.
func (c *Converter) refreshIndexes(ctx context.Context, doc engine.Document) error {
	for pass := 0; pass < indexPasses; pass++ {
		if err := c.session.RefreshDocument(ctx, doc); err != nil {
			if errors.Is(err, engine.ErrUnsupported) {
				return nil
			}
			return engineError(c.state, "refresh", err)
		}
		count, err := c.session.DocumentIndexes(ctx, doc)
		if err != nil {
			if errors.Is(err, engine.ErrUnsupported) {
				return nil
			}
			return engineError(c.state, "index listing", err)
		}
		for i := 0; i < count; i++ {
			if err := c.session.UpdateIndex(ctx, doc, i); err != nil {
				return engineError(c.state, "index update", err)
			}
		}
	}
	return nil
}

func (c *Converter) targetType(ctx context.Context, req Request, exportURL string) (string, error) {
	probe := exportURL
	if req.TargetFormat != "" {
		probe = engine.DummyURL(req.TargetFormat)
	}
	targetType, err := c.session.QueryTypeByURL(ctx, probe)
	if err != nil {
		return "", engineError(c.state, "type detection", err)
	}
	if targetType != "" {
		return targetType, nil
	}
	extension := req.TargetFormat
	if extension == "" {
		if sink, ok := req.Sink.(FileSink); ok {
			extension = filepath.Ext(sink.Path)
		}
	}
	return "", &Error{
		Kind:    KindUnknownExportType,
		Message: fmt.Sprintf("Unknown export file type, unknown extension '%s'", extension),
		State:   c.state,
	}
}

func (c *Converter) resolveExportFilter(ctx context.Context, name, docType, targetType string) (string, error) {
	if name != "" {
		aliases, err := filters.AliasMap(c.registry.ExportFilters(ctx))
		if err != nil {
			return "", engineError(c.state, "export filter listing", err)
		}
		canonical, ok := aliases.Resolve(name)
		if !ok {
			names := aliases.Names()
			return "", &Error{
				Kind:      KindUnknownExportFilter,
				Message:   fmt.Sprintf("There is no '%s' export-filter. Available filters: %v", name, names),
				Available: names,
				State:     c.state,
			}
		}
		return canonical, nil
	}
	found, ok, err := c.registry.FindFilter(ctx, docType, targetType)
	if err != nil {
		return "", engineError(c.state, "filter search", err)
	}
	if !ok {
		return "", &Error{
			Kind:    KindNoFilterFound,
			Message: fmt.Sprintf("Could not find an export filter from %s to %s", docType, targetType),
			State:   c.state,
		}
	}
	return found, nil
}

func displayFilter(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
