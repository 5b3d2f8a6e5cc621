package gateway

import (
	"context"
	"errors"
	"strings"

	"docgate/internal/convert"
)

// Codes that do not come from a conversion error kind.
const (
	CodeCancelled     = "cancelled"
	CodeGatewayClosed = "gateway_closed"
)

// ErrClosed is returned for requests submitted after Close.
var ErrClosed = errors.New("gateway closed")

// Fault is the caller-visible form of every gateway error.
type Fault struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Available []string `json:"available,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func (f *Fault) Error() string {
	return f.Code + ": " + f.Message
}

// ErrorKind reports the fault code.
func (f *Fault) ErrorKind() string { return f.Code }

// FaultFrom translates err into a Fault with a stable code.
func FaultFrom(err error) *Fault {
	if err == nil {
		return nil
	}
	var fault *Fault
	if errors.As(err, &fault) {
		return fault
	}
	switch {
	case errors.Is(err, ErrClosed):
		return &Fault{Code: CodeGatewayClosed, Message: "the gateway is shutting down"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Fault{Code: CodeCancelled, Message: "request cancelled before it started"}
	}
	var convErr *convert.Error
	if errors.As(err, &convErr) {
		return &Fault{
			Code:      string(convErr.Kind),
			Message:   convErr.Error(),
			Available: append([]string(nil), convErr.Available...),
		}
	}
	return &Fault{Code: string(convert.KindOf(err)), Message: err.Error()}
}

// ParseFault rebuilds a Fault from its Error() text, as carried by transports
// that only pass strings. Unrecognized text becomes an engine_failure fault.
func ParseFault(text string) *Fault {
	code, message, ok := strings.Cut(text, ": ")
	if ok && knownCode(code) {
		return &Fault{Code: code, Message: message}
	}
	return &Fault{Code: string(convert.KindEngineFailure), Message: text}
}

func knownCode(code string) bool {
	switch code {
	case CodeCancelled, CodeGatewayClosed:
		return true
	}
	switch convert.Kind(code) {
	case convert.KindConfiguration,
		convert.KindInvalidRequest,
		convert.KindSourceNotFound,
		convert.KindLoadFailed,
		convert.KindUnknownDocumentType,
		convert.KindUnknownImportFilter,
		convert.KindUnknownExportFilter,
		convert.KindUnknownExportType,
		convert.KindNoFilterFound,
		convert.KindInvalidFilterOption,
		convert.KindEngineUnavailable,
		convert.KindEngineFailure:
		return true
	}
	return false
}
