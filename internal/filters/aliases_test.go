package filters

import (
	"context"
	"iter"
	"reflect"
	"testing"

	"docgate/internal/engine/enginetest"
)

func seqOf(descs ...Descriptor) iter.Seq2[Descriptor, error] {
	return func(yield func(Descriptor, error) bool) {
		for _, d := range descs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func TestAliasMapFirstSeenWins(t *testing.T) {
	descs := []Descriptor{
		{Name: "writer_pdf_Export", Aliases: []string{"pdf"}},
		{Name: "calc_pdf_Export", Aliases: []string{"pdf", "calcpdf"}},
	}
	got, err := AliasMap(seqOf(descs...))
	if err != nil {
		t.Fatalf("AliasMap: %v", err)
	}
	want := Aliases{
		"writer_pdf_Export": "writer_pdf_Export",
		"calc_pdf_Export":   "calc_pdf_Export",
		"pdf":               "writer_pdf_Export",
		"calcpdf":           "calc_pdf_Export",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AliasMap = %v, want %v", got, want)
	}
}

func TestAliasMapCanonicalNameBeatsAlias(t *testing.T) {
	descs := []Descriptor{
		{Name: "a", Aliases: []string{"b"}},
		{Name: "b", Aliases: []string{"a"}},
	}
	got, err := AliasMap(seqOf(descs...))
	if err != nil {
		t.Fatalf("AliasMap: %v", err)
	}
	if got["a"] != "a" || got["b"] != "b" {
		t.Fatalf("canonical names must map to themselves, got %v", got)
	}
}

func TestAliasMapIsIdempotent(t *testing.T) {
	descs := []Descriptor{
		{Name: "x", Aliases: []string{"one", "two"}},
		{Name: "y", Aliases: []string{"two", "three"}},
	}
	first, err := AliasMap(seqOf(descs...))
	if err != nil {
		t.Fatalf("AliasMap: %v", err)
	}
	second, err := AliasMap(seqOf(descs...))
	if err != nil {
		t.Fatalf("AliasMap: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("AliasMap not idempotent: %v vs %v", first, second)
	}
}

func TestAliasMapFromEngine(t *testing.T) {
	aliases, err := AliasMap(NewRegistry(enginetest.New()).ExportFilters(context.Background()))
	if err != nil {
		t.Fatalf("AliasMap: %v", err)
	}
	if got, ok := aliases.Resolve("pdf"); !ok || got != "writer_pdf_Export" {
		t.Fatalf("Resolve(pdf) = %q,%v", got, ok)
	}
	if _, ok := aliases.Resolve("nonexistent"); ok {
		t.Fatal("expected unknown name to miss")
	}
	names := aliases.Names()
	want := []string{"Calc MS Excel 2007 XML", "calc_pdf_Export", "odt", "pdf", "writer8", "writer_pdf_Export", "xlsx"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
}
