package filters

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"docgate/internal/engine"
)

// Direction says whether a filter reads or writes documents.
type Direction string

const (
	Import Direction = "import"
	Export Direction = "export"
)

// ParseDirection accepts "import" or "export" in any case.
func ParseDirection(value string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case Import:
		return Import, nil
	case Export, "":
		return Export, nil
	default:
		return "", fmt.Errorf("unknown filter direction %q", value)
	}
}

// Descriptor is one filter as discovered from the engine catalog.
type Descriptor struct {
	Name            string    `json:"name" yaml:"name"`
	Direction       Direction `json:"direction" yaml:"direction"`
	DocumentService string    `json:"document_service" yaml:"document_service"`
	Type            string    `json:"type" yaml:"type"`
	UIName          string    `json:"ui_name,omitempty" yaml:"ui_name,omitempty"`
	Aliases         []string  `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Registry enumerates filters from a live engine session.
type Registry struct {
	catalog engine.FilterCatalog
}

func NewRegistry(catalog engine.FilterCatalog) *Registry {
	return &Registry{catalog: catalog}
}

// ImportFilters lists import-capable filters in catalog order.
func (r *Registry) ImportFilters(ctx context.Context) iter.Seq2[Descriptor, error] {
	return r.list(ctx, Import, engine.ImportFilterQuery)
}

// ExportFilters lists export-capable filters in catalog order.
func (r *Registry) ExportFilters(ctx context.Context) iter.Seq2[Descriptor, error] {
	return r.list(ctx, Export, engine.ExportFilterQuery)
}

// Filters dispatches on direction.
func (r *Registry) Filters(ctx context.Context, direction Direction) iter.Seq2[Descriptor, error] {
	if direction == Import {
		return r.ImportFilters(ctx)
	}
	return r.ExportFilters(ctx)
}

// list opens the cursor lazily on first pull. The returned sequence yields at
// most one error and stops; a second range over it yields nothing.
func (r *Registry) list(ctx context.Context, direction Direction, query string) iter.Seq2[Descriptor, error] {
	consumed := false
	return func(yield func(Descriptor, error) bool) {
		if consumed {
			return
		}
		consumed = true

		cursor, err := r.catalog.QueryFilters(ctx, query)
		if err != nil {
			yield(Descriptor{}, fmt.Errorf("query %s filters: %w", direction, err))
			return
		}
		defer cursor.Close()

		for {
			rec, ok, err := cursor.Next(ctx)
			if err != nil {
				yield(Descriptor{}, fmt.Errorf("read %s filter: %w", direction, err))
				return
			}
			if !ok {
				return
			}
			if !yield(describe(rec, direction), nil) {
				return
			}
		}
	}
}

// FindFilter returns the first export filter owned by docType that writes fileType.
func (r *Registry) FindFilter(ctx context.Context, docType, fileType string) (string, bool, error) {
	for desc, err := range r.ExportFilters(ctx) {
		if err != nil {
			return "", false, err
		}
		if desc.DocumentService != docType {
			continue
		}
		if desc.Type != fileType {
			continue
		}
		return desc.Name, true, nil
	}
	return "", false, nil
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Descriptor, error]) ([]Descriptor, error) {
	var out []Descriptor
	for desc, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func describe(rec engine.FilterRecord, direction Direction) Descriptor {
	return Descriptor{
		Name:            rec.Name,
		Direction:       direction,
		DocumentService: rec.DocumentService,
		Type:            rec.Type,
		UIName:          rec.UIName,
		Aliases:         aliasTokens(rec.UserData),
	}
}

// aliasTokens keeps user-data entries that look like short names, dropping
// empty strings, boolean markers, and anything path or extension shaped.
func aliasTokens(userData []string) []string {
	var out []string
	for _, token := range userData {
		if token == "" || token == "true" {
			continue
		}
		if strings.ContainsAny(token, "./") {
			continue
		}
		if slices.Contains(out, token) {
			continue
		}
		out = append(out, token)
	}
	return out
}
