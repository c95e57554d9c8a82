package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind enumerates the closed set of primitive kinds allowed in
// additional context. Keeping the set closed keeps the canonical
// encoding deterministic and portable across implementations.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

// Value is one additional-context value: a string, a number, or a bool.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// String wraps s as a context value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps n as a context value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool wraps b as a context value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// MarshalJSON renders the value as its underlying JSON primitive.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return nil, fmt.Errorf("unknown context value kind %d", v.Kind)
	}
}

// Field is one key/value pair of additional context.
type Field struct {
	Key   string
	Value Value
}

// Context is the ordered additional-context list. Order is preserved
// for callers; the canonical encoder sorts keys lexicographically, so
// insertion order never influences the signed bytes.
type Context []Field

// Set appends or replaces the value for key, returning the updated
// context.
func (c Context) Set(key string, v Value) Context {
	for i := range c {
		if c[i].Key == key {
			c[i].Value = v
			return c
		}
	}
	return append(c, Field{Key: key, Value: v})
}

// Get returns the value for key, if present.
func (c Context) Get(key string) (Value, bool) {
	for _, f := range c {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON renders the context as a JSON object in insertion order.
func (c Context) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into an ordered context,
// preserving document order. Values outside the closed primitive set
// (objects, arrays, null) are an InvalidFieldError.
func (c *Context) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &InvalidFieldError{Field: "additional_context", Reason: "must be a JSON object"}
	}

	out := Context{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		switch v := valTok.(type) {
		case string:
			out = append(out, Field{Key: key, Value: String(v)})
		case bool:
			out = append(out, Field{Key: key, Value: Bool(v)})
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				return &InvalidFieldError{Field: "additional_context", Reason: fmt.Sprintf("key %q: unrepresentable number %s", key, v)}
			}
			out = append(out, Field{Key: key, Value: Number(n)})
		default:
			return &InvalidFieldError{
				Field:  "additional_context",
				Reason: fmt.Sprintf("key %q: value must be a string, number, or boolean", key),
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*c = out
	return nil
}
