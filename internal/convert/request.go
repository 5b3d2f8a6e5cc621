package convert

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Source is where the document to convert comes from: FileSource or InlineSource.
type Source interface {
	sourceLabel() string
}

// FileSource reads the document from a local path.
type FileSource struct {
	Path string `json:"path"`
}

// InlineSource carries the document bytes in the request.
type InlineSource struct {
	Data []byte `json:"data"`
}

func (s FileSource) sourceLabel() string { return s.Path }
func (InlineSource) sourceLabel() string { return "<remote file>" }

func (s FileSource) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Path, validation.Required),
	)
}

func (s InlineSource) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Data, validation.Required),
	)
}

// Sink is where the converted document goes: FileSink or InlineSink.
type Sink interface {
	sinkLabel() string
}

// FileSink writes the converted document to a local path.
type FileSink struct {
	Path string `json:"path"`
}

// InlineSink returns the converted bytes to the caller.
type InlineSink struct{}

func (s FileSink) sinkLabel() string { return s.Path }
func (InlineSink) sinkLabel() string { return "<inline>" }

func (s FileSink) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Path, validation.Required),
	)
}

// SourceLabel describes the source for messages and the journal.
func SourceLabel(s Source) string {
	if s == nil {
		return ""
	}
	return s.sourceLabel()
}

// SinkLabel describes the sink for messages and the journal.
func SinkLabel(s Sink) string {
	if s == nil {
		return ""
	}
	return s.sinkLabel()
}

// Request describes one conversion.
type Request struct {
	Source        Source   `json:"source"`
	Sink          Sink     `json:"sink"`
	TargetFormat  string   `json:"target_format"`
	ExportFilter  string   `json:"export_filter"`
	ImportFilter  string   `json:"import_filter"`
	FilterOptions []string `json:"filter_options"`
	UpdateIndex   bool     `json:"update_index"`
}

// Validate rejects malformed requests before any engine interaction.
func (r Request) Validate() error {
	_, inline := r.Sink.(InlineSink)
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Sink, validation.Required),
		validation.Field(&r.TargetFormat,
			validation.When(inline, validation.Required.Error("is required when the result is returned inline")),
			validation.By(plainToken),
		),
		validation.Field(&r.FilterOptions, validation.Each(validation.By(filterOptionShape))),
	)
	if err == nil {
		return nil
	}
	kind := KindInvalidRequest
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) && len(fieldErrs) == 1 {
		if _, ok := fieldErrs["filter_options"]; ok {
			kind = KindInvalidFilterOption
		}
	}
	return &Error{Kind: kind, Message: err.Error(), State: StateIdle}
}

func plainToken(value any) error {
	s, _ := value.(string)
	if strings.ContainsRune(s, filepath.Separator) {
		return errors.New("must be a file extension, not a path")
	}
	return nil
}

func filterOptionShape(value any) error {
	s, _ := value.(string)
	if !strings.Contains(s, "=") {
		return fmt.Errorf("option %q must have the form name=value", s)
	}
	return nil
}
