package vectorstore

import (
	"encoding/json"
	"fmt"
)

// Payload is the scalar metadata attached to a point. Values are
// restricted to strings, numbers, booleans, and null; nesting is not
// supported on purpose, keeping every backend's payload model identical.
type Payload map[string]Value

type valueKind uint8

const (
	kindNull valueKind = iota
	kindString
	kindNumber
	kindBool
)

// Value is a closed scalar payload value. The zero value is null.
type Value struct {
	kind valueKind
	str  string
	num  float64
	b    bool
}

// StringValue returns a string payload value.
func StringValue(s string) Value { return Value{kind: kindString, str: s} }

// NumberValue returns a numeric payload value.
func NumberValue(n float64) Value { return Value{kind: kindNumber, num: n} }

// IntValue returns a numeric payload value from an int.
func IntValue(n int) Value { return Value{kind: kindNumber, num: float64(n)} }

// BoolValue returns a boolean payload value.
func BoolValue(b bool) Value { return Value{kind: kindBool, b: b} }

// NullValue returns the null payload value.
func NullValue() Value { return Value{} }

// AsString reports the string content and whether the value is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == kindString }

// AsNumber reports the numeric content and whether the value is a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == kindNumber }

// AsBool reports the boolean content and whether the value is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == kindBool }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == kindNull }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindString:
		return json.Marshal(v.str)
	case kindNumber:
		return json.Marshal(v.num)
	case kindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = NullValue()
	case string:
		*v = StringValue(t)
	case float64:
		*v = NumberValue(t)
	case bool:
		*v = BoolValue(t)
	default:
		return fmt.Errorf("vectorstore: payload value must be a scalar, got %T", t)
	}
	return nil
}

// Interface returns the value as a plain Go scalar for clients that
// speak map[string]any, such as the Qdrant gRPC payload builder.
func (v Value) Interface() any {
	switch v.kind {
	case kindString:
		return v.str
	case kindNumber:
		return v.num
	case kindBool:
		return v.b
	default:
		return nil
	}
}

// asAnyMap converts a payload into map[string]any form.
func (p Payload) asAnyMap() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

// payloadFromAny converts a decoded map[string]any payload back into a
// Payload, skipping non-scalar values.
func payloadFromAny(m map[string]any) Payload {
	p := make(Payload, len(m))
	for k, raw := range m {
		switch t := raw.(type) {
		case nil:
			p[k] = NullValue()
		case string:
			p[k] = StringValue(t)
		case float64:
			p[k] = NumberValue(t)
		case bool:
			p[k] = BoolValue(t)
		}
	}
	return p
}
