package scenario

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
)

// Kind discriminates the tagged parameter values carried by actions and
// assertions. The engine never reaches for runtime typing; drivers and
// evaluators go through the typed accessors.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDuration
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDuration:
		return "duration"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "invalid"
}

// Value is one tagged parameter value
type Value struct {
	kind    Kind
	str     string
	num     int64
	flt     float64
	boolean bool
	dur     time.Duration
	list    []Value
	entries map[string]Value
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }
func IntValue(i int64) Value     { return Value{kind: KindInt, num: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, flt: f} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, boolean: b} }

func DurationValue(d time.Duration) Value { return Value{kind: KindDuration, dur: d} }

func ListValue(items ...Value) Value { return Value{kind: KindList, list: items} }

func MapValue(entries map[string]Value) Value { return Value{kind: KindMap, entries: entries} }

// Kind return the tag of the value
func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsInt() (int64, bool) {
	return v.num, v.kind == KindInt
}

// AsFloat widens ints, every numeric value is readable as a float
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.flt, true
	case KindInt:
		return float64(v.num), true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

// AsDuration reads duration values, falling back to parsing the strict
// scenario duration grammar out of string values
func (v Value) AsDuration() (time.Duration, bool) {
	switch v.kind {
	case KindDuration:
		return v.dur, true
	case KindString:
		d, err := parseDuration(v.str)
		if err != nil {
			return 0, false
		}
		return d, true
	}
	return 0, false
}

func (v Value) AsList() ([]Value, bool) {
	return v.list, v.kind == KindList
}

func (v Value) AsMap() (map[string]Value, bool) {
	return v.entries, v.kind == KindMap
}

// Interface flattens the value back to plain Go data, used at the
// serialization and CEL boundaries only
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.boolean
	case KindDuration:
		return v.dur.String()
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.entries))
		for k, item := range v.entries {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalYAML implements the yaml.v2 unmarshaler for parameter maps
func (v *Value) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	value, err := fromInterface(raw)
	if err != nil {
		return err
	}
	*v = value
	return nil
}

func fromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return StringValue(""), nil
	case string:
		return StringValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float64:
		return FloatValue(t), nil
	case bool:
		return BoolValue(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			value, err := fromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = value
		}
		return ListValue(items...), nil
	case map[interface{}]interface{}:
		entries := make(map[string]Value, len(t))
		for key, item := range t {
			name, ok := key.(string)
			if !ok {
				return Value{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("non-string parameter key %v", key)}
			}
			value, err := fromInterface(item)
			if err != nil {
				return Value{}, err
			}
			entries[name] = value
		}
		return MapValue(entries), nil
	case map[string]interface{}:
		entries := make(map[string]Value, len(t))
		for name, item := range t {
			value, err := fromInterface(item)
			if err != nil {
				return Value{}, err
			}
			entries[name] = value
		}
		return MapValue(entries), nil
	}
	return Value{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("unsupported parameter type %T", raw)}
}

// Params flattens a parameter map for evidence and wire bodies
func Params(params map[string]Value) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v.Interface()
	}
	return out
}
