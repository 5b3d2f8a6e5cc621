package convert

import (
	"fmt"
	"strconv"
	"strings"

	"docgate/internal/engine"
)

// ParseFilterOptions turns name=value strings into typed filter data.
//
// Values are coerced in a fixed order: "false", then "true", then a run of
// ASCII digits becomes an integer, and anything else stays a string. There
// is no escape, so the string "42" cannot be expressed.
func ParseFilterOptions(options []string) ([]engine.PropertyValue, error) {
	if len(options) == 0 {
		return nil, nil
	}
	out := make([]engine.PropertyValue, 0, len(options))
	for _, option := range options {
		prop, err := parseFilterOption(option)
		if err != nil {
			return nil, err
		}
		out = append(out, prop)
	}
	return out, nil
}

func parseFilterOption(option string) (engine.PropertyValue, error) {
	name, value, ok := strings.Cut(option, "=")
	if !ok {
		return engine.PropertyValue{}, &Error{
			Kind:    KindInvalidFilterOption,
			Message: fmt.Sprintf("Filter option %q is not of the form name=value", option),
		}
	}
	switch {
	case value == "false":
		return engine.BoolProperty(name, false), nil
	case value == "true":
		return engine.BoolProperty(name, true), nil
	case isDecimal(value):
		// Digit runs beyond int64 range stay strings.
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return engine.IntProperty(name, n), nil
		}
	}
	return engine.StringProperty(name, value), nil
}

// isDecimal accepts ASCII digits only; other Unicode decimal digits, such as
// Arabic-Indic numerals, are not coerced and stay strings.
func isDecimal(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
