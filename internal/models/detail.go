package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Detail holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindNode
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNode:
		return "node"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Detail is the protocol-layer tree attached to a record. It is either a
// leaf (string, number, bool or null), a node with ordered named children,
// or a list. The zero value is a null leaf.
type Detail struct {
	kind   Kind
	text   string
	fields []Field
	items  []Detail
}

// Field is one named child of a node.
type Field struct {
	Name  string
	Value Detail
}

func Null() Detail { return Detail{} }
func String(s string) Detail { return Detail{kind: KindString, text: s} }
func Int(n int64) Detail { return Detail{kind: KindNumber, text: strconv.FormatInt(n, 10)} }
func Uint(n uint64) Detail { return Detail{kind: KindNumber, text: strconv.FormatUint(n, 10)} }
func Float(f float64) Detail { return Detail{kind: KindNumber, text: strconv.FormatFloat(f, 'g', -1, 64)} }
func Bool(b bool) Detail { return Detail{kind: KindBool, text: strconv.FormatBool(b)} }
func F(name string, v Detail) Field { return Field{Name: name, Value: v} }

// Node builds a node. Duplicate names are kept in order; Get returns the first.
func Node(fields ...Field) Detail {
	return Detail{kind: KindNode, fields: fields}
}

// With returns a node holding d's fields followed by extra. d is not
// modified. A null d is treated as an empty node; other leaves and lists are
// returned unchanged.
func (d Detail) With(extra ...Field) Detail {
	if d.kind != KindNode && d.kind != KindNull {
		return d
	}
	fields := make([]Field, 0, len(d.fields)+len(extra))
	fields = append(fields, d.fields...)
	fields = append(fields, extra...)
	return Node(fields...)
}

func List(items ...Detail) Detail {
	return Detail{kind: KindList, items: items}
}

// Strings builds a list of string leaves.
func Strings(ss ...string) Detail {
	items := make([]Detail, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return List(items...)
}

func (d Detail) Kind() Kind { return d.kind }

// IsComposite reports whether d is a node or a list.
func (d Detail) IsComposite() bool {
	return d.kind == KindNode || d.kind == KindList
}

func (d Detail) IsNull() bool { return d.kind == KindNull }

func (d Detail) Fields() []Field { return d.fields }

func (d Detail) Items() []Detail { return d.items }

// Len returns the number of children of a composite, 0 for leaves.
func (d Detail) Len() int {
	switch d.kind {
	case KindNode:
		return len(d.fields)
	case KindList:
		return len(d.items)
	}
	return 0
}

// Text renders a leaf for display. Booleans are "true"/"false". Composites
// render as an empty string.
func (d Detail) Text() string {
	switch d.kind {
	case KindNull:
		return "null"
	case KindString, KindNumber, KindBool:
		return d.text
	}
	return ""
}

// Get returns the named child of a node.
func (d Detail) Get(name string) (Detail, bool) {
	if d.kind != KindNode {
		return Detail{}, false
	}
	for _, f := range d.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Detail{}, false
}

// Lookup walks path through nodes (by name) and lists (by decimal index).
// Missing segments report false instead of failing.
func (d Detail) Lookup(path ...string) (Detail, bool) {
	cur := d
	for _, seg := range path {
		switch cur.kind {
		case KindNode:
			next, ok := cur.Get(seg)
			if !ok {
				return Detail{}, false
			}
			cur = next
		case KindList:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(cur.items) {
				return Detail{}, false
			}
			cur = cur.items[i]
		default:
			return Detail{}, false
		}
	}
	return cur, true
}

// LookupText is Lookup followed by Text, returning "" when absent or composite.
func (d Detail) LookupText(path ...string) string {
	v, ok := d.Lookup(path...)
	if !ok || v.IsComposite() || v.IsNull() {
		return ""
	}
	return v.Text()
}

func (d Detail) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d Detail) encode(buf *bytes.Buffer) error {
	switch d.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, err := json.Marshal(d.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindNumber, KindBool:
		buf.WriteString(d.text)
	case KindNode:
		buf.WriteByte('{')
		for i, f := range d.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindList:
		buf.WriteByte('[')
		for i, item := range d.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("encode detail: unknown kind %d", d.kind)
	}
	return nil
}

// UnmarshalJSON accepts any JSON value and keeps object key order.
func (d *Detail) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeDetail(dec)
	if err != nil {
		return fmt.Errorf("decode detail: %w", err)
	}
	*d = v
	return nil
}

func decodeDetail(dec *json.Decoder) (Detail, error) {
	tok, err := dec.Token()
	if err != nil {
		return Detail{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			fields := []Field{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Detail{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Detail{}, fmt.Errorf("object key %v is not a string", keyTok)
				}
				val, err := decodeDetail(dec)
				if err != nil {
					return Detail{}, err
				}
				fields = append(fields, Field{Name: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Detail{}, err
			}
			return Node(fields...), nil
		case '[':
			items := []Detail{}
			for dec.More() {
				item, err := decodeDetail(dec)
				if err != nil {
					return Detail{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Detail{}, err
			}
			return List(items...), nil
		}
	case string:
		return String(t), nil
	case json.Number:
		return Detail{kind: KindNumber, text: t.String()}, nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Detail{}, fmt.Errorf("unexpected token %v", tok)
}
