package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/tidwall/jsonc"
)

// Field is a single named value of a Payload.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for Field{Name: name, Value: value}.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Payload is an ordered set of named values. Iteration and encoding follow
// insertion order; replacing an existing name keeps its position.
//
// The zero value is an empty payload ready to use.
type Payload struct {
	fields []Field
}

// New returns a Payload holding fields in the given order. A repeated name
// replaces the earlier value in place.
func New(fields ...Field) *Payload {
	p := &Payload{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		p.Set(f.Name, f.Value)
	}

	return p
}

// Set stores value under name and returns p for chaining.
func (p *Payload) Set(name string, value any) *Payload {
	if i := p.index(name); i >= 0 {
		p.fields[i].Value = value
		return p
	}

	p.fields = append(p.fields, Field{Name: name, Value: value})

	return p
}

// Get returns the value stored under name.
func (p *Payload) Get(name string) (any, bool) {
	if i := p.index(name); i >= 0 {
		return p.fields[i].Value, true
	}

	return nil, false
}

// Delete removes name and reports whether it was present.
func (p *Payload) Delete(name string) bool {
	i := p.index(name)
	if i < 0 {
		return false
	}

	p.fields = slices.Delete(p.fields, i, i+1)

	return true
}

// Len returns the number of fields. A nil Payload has none.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}

	return len(p.fields)
}

// Names returns field names in order.
func (p *Payload) Names() []string {
	if p == nil {
		return nil
	}

	names := make([]string, len(p.fields))
	for i, f := range p.fields {
		names[i] = f.Name
	}

	return names
}

// Fields returns a copy of the ordered field list.
func (p *Payload) Fields() []Field {
	if p == nil {
		return nil
	}

	return slices.Clone(p.fields)
}

// Clone returns a shallow copy of p.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}

	return &Payload{fields: slices.Clone(p.fields)}
}

func (p *Payload) index(name string) int {
	if p == nil {
		return -1
	}

	return slices.IndexFunc(p.fields, func(f Field) bool { return f.Name == name })
}

// MarshalJSON encodes the payload as a compact JSON object in field order.
//
// encoding/json HTML-escapes Marshaler output by default; use Marshal or
// Canonicalize to get the canonical bytes.
func (p Payload) MarshalJSON() ([]byte, error) {
	return Marshal(p)
}

// UnmarshalJSON decodes a JSON object keeping the document order of its
// keys. Nested objects decode to *Payload, arrays to []any and numbers to
// json.Number so that re-encoding reproduces the input.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if tok != json.Delim('{') {
		return ErrNotObject
	}

	fields, err := decodeObject(dec)
	if err != nil {
		return err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("canonical: unexpected trailing data after JSON object")
	}

	p.fields = fields

	return nil
}

// Parse decodes a JSON object into an ordered Payload.
func Parse(data []byte) (*Payload, error) {
	p := &Payload{}
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}

	return p, nil
}

// ParseJSONC is Parse for JSON with comments and trailing commas.
func ParseJSONC(data []byte) (*Payload, error) {
	return Parse(jsonc.ToJSON(data))
}

func decodeObject(dec *json.Decoder) ([]Field, error) {
	fields := []Field{}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("canonical: object key must be a string, got %T", tok)
		}

		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}

		if i := slices.IndexFunc(fields, func(f Field) bool { return f.Name == name }); i >= 0 {
			fields[i].Value = value
			continue
		}

		fields = append(fields, Field{Name: name, Value: value})
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return fields, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		fields, err := decodeObject(dec)
		if err != nil {
			return nil, err
		}

		return &Payload{fields: fields}, nil
	case '[':
		items := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}

			items = append(items, v)
		}

		if _, err := dec.Token(); err != nil {
			return nil, err
		}

		return items, nil
	default:
		return nil, fmt.Errorf("canonical: unexpected delimiter %q", delim)
	}
}
