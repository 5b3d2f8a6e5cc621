package rpcapi

import (
	"docgate/internal/filters"
	"docgate/internal/gateway"
	"docgate/internal/journal"
)

// ConvertRequest is the wire form of a conversion; see gateway.ConvertRequest.
type ConvertRequest = gateway.ConvertRequest

// ConvertResponse carries inline bytes (base64 in JSON) or the written path.
type ConvertResponse = gateway.ConvertResponse

// FiltersRequest selects import or export filters. Empty means export.
type FiltersRequest struct {
	Direction string `json:"direction"`
}

// FiltersResponse lists filters in catalog order.
type FiltersResponse struct {
	Filters []filters.Descriptor `json:"filters"`
}

// StatusRequest fetches gateway status.
type StatusRequest struct{}

// StatusResponse is the gateway status snapshot.
type StatusResponse = gateway.Status

// HistoryRequest lists recent journal entries.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains journal entries, newest first.
type HistoryResponse struct {
	Entries  []journal.Entry `json:"entries"`
	Disabled bool            `json:"disabled"`
}
