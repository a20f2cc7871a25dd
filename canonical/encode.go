package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"unicode/utf8"
)

// Encoded holds both byte forms of one payload.
type Encoded struct {
	// Send is the request body as transmitted.
	Send []byte

	// Canonical is the compact form a signature is computed over.
	Canonical []byte
}

// Canonicalize encodes v into its send and canonical forms. Calling it twice
// on equal payloads yields equal Canonical bytes.
//
// It returns an error wrapping ErrSerialization when v holds a value with no
// JSON representation.
func Canonicalize(v any) (Encoded, error) {
	canonical, err := Marshal(v)
	if err != nil {
		return Encoded{}, err
	}

	return Encoded{
		Send:      Spaced(canonical),
		Canonical: canonical,
	}, nil
}

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	e := &encoder{seen: make(map[visit]struct{})}
	if err := e.encode(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	return e.buf.Bytes(), nil
}

// Spaced re-lays compact JSON with one space after each comma and colon
// that sits outside a string. The input must be compact.
func Spaced(compact []byte) []byte {
	out := make([]byte, 0, len(compact)+len(compact)/4)

	inString, escaped := false, false
	for _, c := range compact {
		out = append(out, c)

		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		case c == '"':
			inString = true
		case c == ',' || c == ':':
			out = append(out, ' ')
		}
	}

	return out
}

// visit identifies a container on the current encoding path by its type,
// its backing pointer and, for slices, its length.
type visit struct {
	typ reflect.Type
	ptr uintptr
	len int
}

func visitOf(rv reflect.Value) visit {
	v := visit{typ: rv.Type(), ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		v.len = rv.Len()
	}

	return v
}

var payloadType = reflect.TypeFor[Payload]()

// encoder walks the container types a Payload is built from and hands
// everything else to encoding/json. Containers on the current path are
// tracked so a self-referencing payload fails instead of recursing forever.
type encoder struct {
	buf  bytes.Buffer
	seen map[visit]struct{}
}

func (e *encoder) encode(v any) error {
	switch x := v.(type) {
	case *Payload:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}

		return e.enter(reflect.ValueOf(x), func() error { return e.fields(x.fields) })
	case Payload:
		return e.fields(x.fields)
	case []Field:
		return e.fields(x)
	case []any:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}

		return e.enter(reflect.ValueOf(x), func() error { return e.array(x) })
	case map[string]any:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}

		return e.enter(reflect.ValueOf(x), func() error { return e.sortedObject(x) })
	default:
		if err := e.scan(reflect.ValueOf(v)); err != nil {
			return err
		}

		return e.leaf(v)
	}
}

func (e *encoder) fields(fields []Field) error {
	if len(fields) == 0 {
		return e.object(fields)
	}

	return e.enter(reflect.ValueOf(fields), func() error { return e.object(fields) })
}

func (e *encoder) enter(rv reflect.Value, fn func() error) error {
	key := visitOf(rv)
	if _, ok := e.seen[key]; ok {
		return errCycle
	}

	e.seen[key] = struct{}{}
	defer delete(e.seen, key)

	return fn()
}

// scan looks for a reference back to a container on the current path inside
// a value encoding/json is about to encode. A Payload reached that way is
// encoded through MarshalJSON with no knowledge of the path, so the cycle
// has to be caught before the value is handed over.
func (e *encoder) scan(rv reflect.Value) error {
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Interface:
		return e.scan(rv.Elem())
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}

		return e.enter(rv, func() error { return e.scan(rv.Elem()) })
	case reflect.Map:
		if rv.Len() == 0 || !nested(rv.Type().Elem()) {
			return nil
		}

		return e.enter(rv, func() error {
			iter := rv.MapRange()
			for iter.Next() {
				if err := e.scan(iter.Value()); err != nil {
					return err
				}
			}

			return nil
		})
	case reflect.Slice:
		if rv.Len() == 0 || !nested(rv.Type().Elem()) {
			return nil
		}

		return e.enter(rv, func() error { return e.scanElems(rv) })
	case reflect.Array:
		if !nested(rv.Type().Elem()) {
			return nil
		}

		return e.scanElems(rv)
	case reflect.Struct:
		if rv.Type() == payloadType {
			return e.scan(rv.Field(0))
		}

		for i := range rv.NumField() {
			if f := rv.Type().Field(i); !f.IsExported() && !f.Anonymous {
				continue
			}

			if err := e.scan(rv.Field(i)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *encoder) scanElems(rv reflect.Value) error {
	for i := range rv.Len() {
		if err := e.scan(rv.Index(i)); err != nil {
			return err
		}
	}

	return nil
}

// nested reports whether values of t can hold references.
func nested(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}

func (e *encoder) object(fields []Field) error {
	e.buf.WriteByte('{')

	for i, f := range fields {
		if i > 0 {
			e.buf.WriteByte(',')
		}

		if err := e.leaf(f.Name); err != nil {
			return err
		}

		e.buf.WriteByte(':')

		if err := e.encode(f.Value); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}

	e.buf.WriteByte('}')

	return nil
}

func (e *encoder) sortedObject(m map[string]any) error {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	slices.Sort(names)

	fields := make([]Field, len(names))
	for i, name := range names {
		fields[i] = Field{Name: name, Value: m[name]}
	}

	return e.object(fields)
}

func (e *encoder) array(items []any) error {
	e.buf.WriteByte('[')

	for i, item := range items {
		if i > 0 {
			e.buf.WriteByte(',')
		}

		if err := e.encode(item); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}

	e.buf.WriteByte(']')

	return nil
}

// leaf encodes v with encoding/json, without HTML escaping and without the
// trailing newline json.Encoder appends. encoding/json always escapes U+2028
// and U+2029; those escapes are written back as the literal characters.
func (e *encoder) leaf(v any) error {
	enc := json.NewEncoder(&e.buf)
	enc.SetEscapeHTML(false)

	mark := e.buf.Len()
	if err := enc.Encode(v); err != nil {
		e.buf.Truncate(mark)
		return err
	}

	e.buf.Truncate(e.buf.Len() - 1)

	if out := e.buf.Bytes()[mark:]; bytes.Contains(out, lineSepEscape) {
		unescaped := unescapeLineSeparators(out)
		e.buf.Truncate(mark)
		e.buf.Write(unescaped)
	}

	return nil
}

var lineSepEscape = []byte(`\u202`)

// unescapeLineSeparators replaces the \u2028 and \u2029 escapes in JSON text
// with their UTF-8 encoding. Other escapes, including an escaped backslash
// followed by the letters u2028, are copied unchanged.
func unescapeLineSeparators(src []byte) []byte {
	out := make([]byte, 0, len(src))

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '\\' || i+1 >= len(src) {
			out = append(out, c)
			continue
		}

		if src[i+1] == 'u' && i+6 <= len(src) {
			switch string(src[i+2 : i+6]) {
			case "2028":
				out = utf8.AppendRune(out, '\u2028')
				i += 5

				continue
			case "2029":
				out = utf8.AppendRune(out, '\u2029')
				i += 5

				continue
			}
		}

		out = append(out, c, src[i+1])
		i++
	}

	return out
}
