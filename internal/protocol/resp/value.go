// Package resp implements the length-prefixed array-of-bulk-strings wire
// protocol (classic RESP) spoken by the file and user services.
//
// Requests are arrays of bulk strings; the first element is the upper-cased
// command verb. Inline single-line commands are also accepted for debugging
// with a plain TCP client. Responses are one of: simple string, error,
// integer, bulk string, null, or array.
package resp

import (
	"fmt"
	"strconv"
)

// Kind discriminates the response value variants.
type Kind int

const (
	KindSimple Kind = iota
	KindError
	KindInteger
	KindBulk
	KindNull
	KindArray
	KindNullArray
)

// Value is one RESP reply. Values are immutable once constructed.
type Value struct {
	kind  Kind
	str   string
	num   int64
	items []Value
}

// Simple returns a simple-string reply ("+s").
func Simple(s string) Value { return Value{kind: KindSimple, str: s} }

// Err returns an error reply ("-msg").
func Err(msg string) Value { return Value{kind: KindError, str: msg} }

// Integer returns an integer reply (":n").
func Integer(n int64) Value { return Value{kind: KindInteger, num: n} }

// Bulk returns a bulk-string reply ("$len"). Bulk strings are binary-safe.
func Bulk(s string) Value { return Value{kind: KindBulk, str: s} }

// Null returns the null bulk reply ("$-1").
func Null() Value { return Value{kind: KindNull} }

// Array returns an array reply of the given elements.
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// NullArray returns the null array reply ("*-1").
func NullArray() Value { return Value{kind: KindNullArray} }

// StringArray returns an array of bulk strings.
func StringArray(items ...string) Value {
	vs := make([]Value, len(items))
	for i, s := range items {
		vs[i] = Bulk(s)
	}
	return Array(vs...)
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload of simple, error, and bulk values.
func (v Value) Str() string { return v.str }

// Int returns the integer payload.
func (v Value) Int() int64 { return v.num }

// Items returns the array elements.
func (v Value) Items() []Value { return v.items }

// Append encodes v onto buf in wire format.
func (v Value) Append(buf []byte) []byte {
	switch v.kind {
	case KindSimple:
		buf = append(buf, '+')
		buf = append(buf, v.str...)
		buf = append(buf, '\r', '\n')
	case KindError:
		buf = append(buf, '-')
		buf = append(buf, v.str...)
		buf = append(buf, '\r', '\n')
	case KindInteger:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, v.num, 10)
		buf = append(buf, '\r', '\n')
	case KindBulk:
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(v.str)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, v.str...)
		buf = append(buf, '\r', '\n')
	case KindNull:
		buf = append(buf, "$-1\r\n"...)
	case KindArray:
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(v.items)), 10)
		buf = append(buf, '\r', '\n')
		for _, item := range v.items {
			buf = item.Append(buf)
		}
	case KindNullArray:
		buf = append(buf, "*-1\r\n"...)
	}
	return buf
}

// Encode returns the wire encoding of v.
func (v Value) Encode() []byte {
	return v.Append(nil)
}

// String renders v for logging and test failure messages.
func (v Value) String() string {
	switch v.kind {
	case KindSimple:
		return v.str
	case KindError:
		return "error: " + v.str
	case KindInteger:
		return strconv.FormatInt(v.num, 10)
	case KindBulk:
		return v.str
	case KindNull:
		return "<null>"
	case KindArray:
		return fmt.Sprintf("%v", v.items)
	case KindNullArray:
		return "<null array>"
	default:
		return "<invalid>"
	}
}
