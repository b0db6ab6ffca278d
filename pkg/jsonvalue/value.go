// Package jsonvalue models JSON documents as an explicit tagged tree so that
// response bodies are assembled field by field, in a fixed order.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is one key of an object. Objects keep members in insertion order.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	boolean bool
	number  float64
	str     string
	items   []Value
	members []Member
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }
func Number(n float64) Value { return Value{kind: KindNumber, number: n} }
func Int(n int) Value { return Number(float64(n)) }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Field(key string, v Value) Member { return Member{Key: key, Value: v} }

// Array builds an array from items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value{}, items...)}
}

// Object builds an object. A repeated key keeps its first position and its
// last value.
func Object(members ...Member) Value {
	out := Value{kind: KindObject, members: make([]Member, 0, len(members))}
	for _, m := range members {
		out = out.With(m.Key, m.Value)
	}
	return out
}

// Strings builds an array of strings.
func Strings(items []string) Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return Array(out...)
}

// StringMap builds an object from m with keys in lexical order.
func StringMap(m map[string]string) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	members := make([]Member, len(keys))
	for i, k := range keys {
		members[i] = Field(k, String(m[k]))
	}
	return Object(members...)
}

// OptionalString is null for an empty string.
func OptionalString(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.boolean, v.kind == KindBool }

// AsNumber returns the number and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.number, v.kind == KindNumber }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// Items returns a copy of an array's elements, or nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return append([]Value{}, v.items...)
}

// Members returns a copy of an object's members, or nil for other kinds.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	return append([]Member{}, v.members...)
}

// Len is the number of elements or members; zero for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Get looks up key in an object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// With returns a copy of object v with key set to val. Non-objects are
// treated as an empty object.
func (v Value) With(key string, val Value) Value {
	members := make([]Member, 0, len(v.members)+1)
	if v.kind == KindObject {
		members = append(members, v.members...)
	}
	for i := range members {
		if members[i].Key == key {
			members[i].Value = val
			return Value{kind: KindObject, members: members}
		}
	}
	return Value{kind: KindObject, members: append(members, Member{Key: key, Value: val})}
}

// Equal reports deep equality. Object member order is significant.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolean == other.boolean
	case KindNumber:
		return v.number == other.number
	case KindString:
		return v.str == other.str
	case KindArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.members) != len(other.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Key != other.members[i].Key || !v.members[i].Value.Equal(other.members[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON encodes v with object members in order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case KindNumber:
		if math.IsNaN(v.number) || math.IsInf(v.number, 0) {
			return fmt.Errorf("jsonvalue: unsupported number %v", v.number)
		}
		buf.Write(formatNumber(v.number))
	case KindString:
		encoded, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("jsonvalue: unknown kind %s", v.kind)
	}
	return nil
}

func formatNumber(n float64) []byte {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.AppendInt(nil, int64(n), 10)
	}
	return strconv.AppendFloat(nil, n, 'g', -1, 64)
}

// UnmarshalJSON decodes any JSON document, keeping object member order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse decodes a single JSON document.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decode(dec)
	if err != nil {
		return Value{}, fmt.Errorf("jsonvalue: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("jsonvalue: unexpected data after document")
	}
	return v, nil
}

func decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decode(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindArray, items: items}, nil
		case '{':
			obj := Value{kind: KindObject, members: []Member{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T", keyTok)
				}
				val, err := decode(dec)
				if err != nil {
					return Value{}, err
				}
				obj = obj.With(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return obj, nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return Value{}, fmt.Errorf("unexpected token %T", tok)
	}
}
