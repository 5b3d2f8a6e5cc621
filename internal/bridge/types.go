package bridge

import "docgate/internal/engine"

// serviceName is the RPC service the engine-side agent registers.
const serviceName = "Engine"

// cursorBatch bounds how many filter records one Next call returns.
const cursorBatch = 64

// PingRequest checks that the agent is answering.
type PingRequest struct{}

// PingResponse identifies the agent.
type PingResponse struct {
	Agent string `json:"agent"`
}

// LoadRequest opens a document.
type LoadRequest struct {
	URL        string                 `json:"url"`
	Properties []engine.PropertyValue `json:"properties"`
}

// LoadResponse carries the handle, or nil when the engine produced none.
type LoadResponse struct {
	Document *engine.Document `json:"document"`
}

// DocumentRequest addresses an open document.
type DocumentRequest struct {
	Document engine.Document `json:"document"`
}

// CapabilityResponse reports whether an optional call was supported.
type CapabilityResponse struct {
	Unsupported bool `json:"unsupported"`
}

// IndexesResponse lists how many indexes a document has.
type IndexesResponse struct {
	Count       int  `json:"count"`
	Unsupported bool `json:"unsupported"`
}

// UpdateIndexRequest refreshes one index.
type UpdateIndexRequest struct {
	Document engine.Document `json:"document"`
	Index    int             `json:"index"`
}

// ServicesResponse lists the services a document supports.
type ServicesResponse struct {
	Services []string `json:"services"`
}

// ExportRequest stores a document.
type ExportRequest struct {
	Document   engine.Document        `json:"document"`
	URL        string                 `json:"url"`
	Properties []engine.PropertyValue `json:"properties"`
}

// ExportResponse holds captured bytes for stream exports.
type ExportResponse struct {
	Data []byte `json:"data"`
}

// CloseRequest releases a document.
type CloseRequest struct {
	Document engine.Document `json:"document"`
	Discard  bool            `json:"discard"`
}

// Empty is the reply for calls with no result.
type Empty struct{}

// QueryRequest opens a filter cursor.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse names the server-side cursor.
type QueryResponse struct {
	Cursor string `json:"cursor"`
}

// CursorRequest pulls from or closes a cursor.
type CursorRequest struct {
	Cursor string `json:"cursor"`
}

// CursorResponse carries the next batch. Done is set once the cursor is exhausted.
type CursorResponse struct {
	Records []engine.FilterRecord `json:"records"`
	Done    bool                  `json:"done"`
}

// TypeRequest asks for the type token of a URL.
type TypeRequest struct {
	URL string `json:"url"`
}

// TypeResponse is empty when no type matched.
type TypeResponse struct {
	Type string `json:"type"`
}
