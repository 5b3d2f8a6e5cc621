package gateway

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"docgate/internal/convert"
)

// ConvertRequest is the transport-neutral conversion request.
//
// Exactly one of InputPath and InputData names the source. Without an
// OutputPath the converted bytes come back inline and ConvertTo is required.
// InputData is not omitted when empty so an empty upload stays distinguishable
// from no upload.
type ConvertRequest struct {
	InputPath        string   `json:"input_path,omitempty"`
	InputData        []byte   `json:"input_data"`
	OutputPath       string   `json:"output_path,omitempty"`
	ConvertTo        string   `json:"convert_to,omitempty"`
	FilterName       string   `json:"filter_name,omitempty"`
	ImportFilterName string   `json:"import_filter_name,omitempty"`
	FilterOptions    []string `json:"filter_options,omitempty"`
	// UpdateIndex falls back to the configured default when unset.
	UpdateIndex *bool `json:"update_index,omitempty"`
}

// ConvertResponse reports a finished conversion. Data is set only when no
// OutputPath was requested.
type ConvertResponse struct {
	RequestID    string `json:"request_id"`
	Data         []byte `json:"data,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
	DocumentType string `json:"document_type"`
	TargetType   string `json:"target_type"`
	ImportFilter string `json:"import_filter,omitempty"`
	ExportFilter string `json:"export_filter"`
}

// Validate checks the request shape before it reaches the queue.
func (r ConvertRequest) Validate() error {
	hasData := len(r.InputData) > 0
	emptyData := r.InputData != nil && !hasData && r.InputPath == ""
	hasFormat := strings.TrimSpace(r.ConvertTo) != ""
	err := validation.ValidateStruct(&r,
		validation.Field(&r.InputPath,
			validation.When(!hasData && !emptyData, validation.Required.Error("input_path or input_data is required")),
			validation.When(hasData, validation.Empty.Error("cannot be combined with input_data")),
		),
		validation.Field(&r.InputData,
			validation.When(emptyData, validation.Required.Error("is empty: the uploaded document has no bytes")),
		),
		validation.Field(&r.OutputPath,
			validation.When(!hasFormat, validation.Required.Error("output_path or convert_to is required")),
		),
	)
	if err != nil {
		return &convert.Error{Kind: convert.KindInvalidRequest, Message: err.Error(), State: convert.StateIdle}
	}
	return nil
}

// conversion maps the wire request onto the orchestrator's tagged unions.
func (r ConvertRequest) conversion(updateIndexDefault bool) convert.Request {
	req := convert.Request{
		TargetFormat:  strings.TrimPrefix(strings.TrimSpace(r.ConvertTo), "."),
		ExportFilter:  strings.TrimSpace(r.FilterName),
		ImportFilter:  strings.TrimSpace(r.ImportFilterName),
		FilterOptions: r.FilterOptions,
		UpdateIndex:   updateIndexDefault,
	}
	if r.UpdateIndex != nil {
		req.UpdateIndex = *r.UpdateIndex
	}
	if len(r.InputData) > 0 {
		req.Source = convert.InlineSource{Data: r.InputData}
	} else {
		req.Source = convert.FileSource{Path: r.InputPath}
	}
	if r.OutputPath != "" {
		req.Sink = convert.FileSink{Path: r.OutputPath}
	} else {
		req.Sink = convert.InlineSink{}
	}
	return req
}
