package convert

import (
	"errors"
	"reflect"
	"testing"

	"docgate/internal/engine"
)

func TestParseFilterOptionsCoercion(t *testing.T) {
	tests := []struct {
		option string
		want   engine.PropertyValue
	}{
		{option: "A=true", want: engine.BoolProperty("A", true)},
		{option: "A=false", want: engine.BoolProperty("A", false)},
		{option: "A=42", want: engine.IntProperty("A", 42)},
		{option: "A=42.5", want: engine.StringProperty("A", "42.5")},
		{option: "A=foo", want: engine.StringProperty("A", "foo")},
		{option: "A=", want: engine.StringProperty("A", "")},
		{option: "A=True", want: engine.StringProperty("A", "True")},
		{option: "A=-1", want: engine.StringProperty("A", "-1")},
		{option: "A=b=c", want: engine.StringProperty("A", "b=c")},
		{option: "A=99999999999999999999", want: engine.StringProperty("A", "99999999999999999999")},
		{option: "A=\u0664\u0662", want: engine.StringProperty("A", "\u0664\u0662")},
	}
	for _, tt := range tests {
		t.Run(tt.option, func(t *testing.T) {
			got, err := ParseFilterOptions([]string{tt.option})
			if err != nil {
				t.Fatalf("ParseFilterOptions: %v", err)
			}
			if len(got) != 1 || !reflect.DeepEqual(got[0], tt.want) {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseFilterOptionsKeepsOrder(t *testing.T) {
	got, err := ParseFilterOptions([]string{"B=1", "A=2"})
	if err != nil {
		t.Fatalf("ParseFilterOptions: %v", err)
	}
	if got[0].Name != "B" || got[1].Name != "A" {
		t.Fatalf("order not preserved: %+v", got)
	}
}

func TestParseFilterOptionsRejectsMissingEquals(t *testing.T) {
	_, err := ParseFilterOptions([]string{"ok=1", "broken"})
	var convErr *Error
	if !errors.As(err, &convErr) || convErr.Kind != KindInvalidFilterOption {
		t.Fatalf("expected invalid option error, got %v", err)
	}
}

func TestParseFilterOptionsEmpty(t *testing.T) {
	got, err := ParseFilterOptions(nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil,nil got %v,%v", got, err)
	}
}
