package engine

import "fmt"

// ValueKind tags the concrete type carried by a PropertyValue.
type ValueKind string

const (
	KindString     ValueKind = "string"
	KindBool       ValueKind = "bool"
	KindInt        ValueKind = "int"
	KindBytes      ValueKind = "bytes"
	KindProperties ValueKind = "properties"
)

// PropertyValue is a named, typed argument passed to load and export calls.
// The explicit kind keeps booleans and integers intact across the bridge.
type PropertyValue struct {
	Name       string          `json:"name"`
	Kind       ValueKind       `json:"kind"`
	String     string          `json:"string,omitempty"`
	Bool       bool            `json:"bool,omitempty"`
	Int        int64           `json:"int,omitempty"`
	Bytes      []byte          `json:"bytes,omitempty"`
	Properties []PropertyValue `json:"properties,omitempty"`
}

func StringProperty(name, value string) PropertyValue {
	return PropertyValue{Name: name, Kind: KindString, String: value}
}

func BoolProperty(name string, value bool) PropertyValue {
	return PropertyValue{Name: name, Kind: KindBool, Bool: value}
}

func IntProperty(name string, value int64) PropertyValue {
	return PropertyValue{Name: name, Kind: KindInt, Int: value}
}

func BytesProperty(name string, value []byte) PropertyValue {
	return PropertyValue{Name: name, Kind: KindBytes, Bytes: value}
}

func PropertiesProperty(name string, values []PropertyValue) PropertyValue {
	return PropertyValue{Name: name, Kind: KindProperties, Properties: values}
}

// Value returns the payload as a plain Go value.
func (p PropertyValue) Value() any {
	switch p.Kind {
	case KindBool:
		return p.Bool
	case KindInt:
		return p.Int
	case KindBytes:
		return p.Bytes
	case KindProperties:
		return p.Properties
	default:
		return p.String
	}
}

func (p PropertyValue) GoString() string {
	return fmt.Sprintf("%s=%v (%s)", p.Name, p.Value(), p.Kind)
}

// LookupProperty finds the first property with the given name.
func LookupProperty(props []PropertyValue, name string) (PropertyValue, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyValue{}, false
}
