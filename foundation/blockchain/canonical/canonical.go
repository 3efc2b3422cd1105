// Package canonical implements the deterministic byte encoding that block
// hashes are computed over.
//
// The encoding is versioned and is part of the wire contract. Two
// implementations only agree on a block hash when they produce byte identical
// output for logically identical blocks, so the rules below are fixed here and
// never left to a library default.
//
// powchain-canonical/v1:
//
//   - Output is JSON text in UTF-8 with no whitespace between tokens.
//   - Object keys must be strings and are sorted by byte-wise comparison.
//   - Strings escape '"' and '\' with a backslash, newline, carriage return
//     and tab as \n \r \t, every other byte below 0x20 as \u00XX (lowercase
//     hex). All other characters are written as raw UTF-8. Invalid UTF-8 is
//     rejected.
//   - Integers are written in base 10 without leading zeros or a plus sign.
//   - Numbers holding an integral value are written as integers with every
//     digit, whatever their type or spelling: 5, 5.0, 5e0 and float64(5) all
//     encode as 5. Other numbers use the shortest float64 representation that
//     round trips. NaN and infinities are rejected.
//   - nil is null, booleans are true and false, slices and arrays are arrays.
//   - Any other type is rejected with an EncodingError.
//
// A block is encoded as the object holding the keys index, nonce, payload,
// previous_hash and timestamp, which is also their sorted order.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf8"
)

// Version identifies the encoding rules implemented by this package.
const Version = "powchain-canonical/v1"

var numberType = reflect.TypeOf(json.Number(""))

// EncodingError is returned when a value can't be represented under the
// canonical encoding rules.
type EncodingError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	return fmt.Sprintf("canonical encoding: %s: %s", e.Path, e.Reason)
}

// IsEncodingError checks if an error of type EncodingError exists.
func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}

// =============================================================================

// Encode returns the canonical encoding of the specified value.
func Encode(v any) ([]byte, error) {
	var e encoder
	if err := e.value("$", reflect.ValueOf(v)); err != nil {
		return nil, err
	}

	return e.buf.Bytes(), nil
}

// Decode parses canonical (or any JSON) object text back into a map. Numbers
// are kept as json.Number so re-encoding reproduces the original digits.
func Decode(data []byte) (map[string]any, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()

	var m map[string]any
	if err := d.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding canonical text: %w", err)
	}

	if _, err := d.Token(); err != io.EOF {
		return nil, errors.New("decoding canonical text: unexpected data after the object")
	}

	return m, nil
}

// =============================================================================

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) value(path string, v reflect.Value) error {
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}

	if v.Type() == numberType {
		return e.number(path, v.String())
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.value(path, v.Elem())

	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(v.Bool()))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
		return nil

	case reflect.Float32:
		return e.float(path, v.Float(), 32)

	case reflect.Float64:
		return e.float(path, v.Float(), 64)

	case reflect.String:
		return e.string(path, v.String())

	case reflect.Map:
		return e.object(path, v)

	case reflect.Slice:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.array(path, v)

	case reflect.Array:
		return e.array(path, v)
	}

	return &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported type %s", v.Type())}
}

func (e *encoder) object(path string, v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return &EncodingError{Path: path, Reason: fmt.Sprintf("map key type %s is not a string", v.Type().Key())}
	}

	if v.IsNil() {
		e.buf.WriteString("null")
		return nil
	}

	keys := make([]string, 0, v.Len())
	values := make(map[string]reflect.Value, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		keys = append(keys, k)
		values[k] = iter.Value()
	}
	slices.Sort(keys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.string(path, k); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.value(path+"."+k, values[k]); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')

	return nil
}

func (e *encoder) array(path string, v reflect.Value) error {
	e.buf.WriteByte('[')
	for i := range v.Len() {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.value(fmt.Sprintf("%s[%d]", path, i), v.Index(i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')

	return nil
}

func (e *encoder) string(path string, s string) error {
	if !utf8.ValidString(s) {
		return &EncodingError{Path: path, Reason: "string is not valid UTF-8"}
	}

	e.buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			e.buf.WriteString(`\"`)
		case c == '\\':
			e.buf.WriteString(`\\`)
		case c == '\n':
			e.buf.WriteString(`\n`)
		case c == '\r':
			e.buf.WriteString(`\r`)
		case c == '\t':
			e.buf.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&e.buf, `\u%04x`, c)
		default:
			e.buf.WriteByte(c)
		}
	}
	e.buf.WriteByte('"')

	return nil
}

func (e *encoder) float(path string, f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &EncodingError{Path: path, Reason: fmt.Sprintf("number %v has no canonical form", f)}
	}

	if f == math.Trunc(f) {
		if math.Abs(f) < math.MaxInt64 {
			e.buf.WriteString(strconv.FormatInt(int64(f), 10))
			return nil
		}

		n, _ := new(big.Float).SetFloat64(f).Int(nil)
		e.buf.WriteString(n.String())
		return nil
	}

	e.buf.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
	return nil
}

func (e *encoder) number(path string, s string) error {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		e.buf.WriteString(strconv.FormatInt(n, 10))
		return nil
	}

	// Integer literals outside the int64 range keep every digit.
	if n, ok := new(big.Int).SetString(s, 10); ok {
		e.buf.WriteString(n.String())
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &EncodingError{Path: path, Reason: fmt.Sprintf("invalid number %q", s)}
	}

	// Integral decimal text like 12345678901234567891.0 keeps its digits. A
	// finite non-zero integral value bounds the exponent by the text length.
	if f != 0 && f == math.Trunc(f) {
		if r, ok := new(big.Rat).SetString(s); ok && r.IsInt() {
			e.buf.WriteString(r.Num().String())
			return nil
		}
	}

	return e.float(path, f, 64)
}
