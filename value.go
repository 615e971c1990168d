package sqlite

import (
	"bytes"
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tinysqlite/sqlite/sqliteh"
)

// TimeFormat is the string format this package uses to store
// millisecond-precision time in SQLite in text format.
const TimeFormat = "2006-01-02 15:04:05.000-0700"

// timeLayouts are tried in order when reading text as a time.Time.
var timeLayouts = []string{
	TimeFormat,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// Value is one SQLite value, tagged with its storage class.
// The zero Value is NULL.
type Value struct {
	typ sqliteh.ColumnType
	i   int64
	f   float64
	s   string
	b   []byte
}

// Null returns the NULL value.
func Null() Value { return Value{typ: sqliteh.SQLITE_NULL} }

// Integer returns an INTEGER value.
func Integer(i int64) Value { return Value{typ: sqliteh.SQLITE_INTEGER, i: i} }

// Real returns a REAL value.
func Real(f float64) Value { return Value{typ: sqliteh.SQLITE_FLOAT, f: f} }

// Text returns a TEXT value.
func Text(s string) Value { return Value{typ: sqliteh.SQLITE_TEXT, s: s} }

// Blob returns a BLOB value. It does not copy b.
// A nil b is an empty blob, not NULL.
func Blob(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{typ: sqliteh.SQLITE_BLOB, b: b}
}

// Type reports the storage class of v.
func (v Value) Type() sqliteh.ColumnType {
	if v.typ == 0 {
		return sqliteh.SQLITE_NULL
	}
	return v.typ
}

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.Type() == sqliteh.SQLITE_NULL }

// Any returns v as nil, int64, float64, string or []byte.
func (v Value) Any() any {
	switch v.Type() {
	case sqliteh.SQLITE_INTEGER:
		return v.i
	case sqliteh.SQLITE_FLOAT:
		return v.f
	case sqliteh.SQLITE_TEXT:
		return v.s
	case sqliteh.SQLITE_BLOB:
		return v.b
	default:
		return nil
	}
}

// Equal reports whether v and w hold the same storage class and content.
func (v Value) Equal(w Value) bool {
	if v.Type() != w.Type() {
		return false
	}
	switch v.Type() {
	case sqliteh.SQLITE_INTEGER:
		return v.i == w.i
	case sqliteh.SQLITE_FLOAT:
		return v.f == w.f || (math.IsNaN(v.f) && math.IsNaN(w.f))
	case sqliteh.SQLITE_TEXT:
		return v.s == w.s
	case sqliteh.SQLITE_BLOB:
		return bytes.Equal(v.b, w.b)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Type() {
	case sqliteh.SQLITE_INTEGER:
		return strconv.FormatInt(v.i, 10)
	case sqliteh.SQLITE_FLOAT:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case sqliteh.SQLITE_TEXT:
		return strconv.Quote(v.s)
	case sqliteh.SQLITE_BLOB:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return "NULL"
	}
}

// category groups Go types that share one conversion rule.
type category int

const (
	catNone category = iota
	catBool
	catInt
	catUint
	catFloat
	catText
	catBytes
	catArray
)

func categoryOf(t reflect.Type) category {
	switch t.Kind() {
	case reflect.Bool:
		return catBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return catInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return catUint
	case reflect.Float32, reflect.Float64:
		return catFloat
	case reflect.String:
		return catText
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return catBytes
		}
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return catArray
		}
	}
	return catNone
}

// into maps a Go value of each category to a Value.
var into = [...]func(reflect.Value) (Value, error){
	catBool: func(rv reflect.Value) (Value, error) {
		if rv.Bool() {
			return Integer(1), nil
		}
		return Integer(0), nil
	},
	catInt: func(rv reflect.Value) (Value, error) {
		return Integer(rv.Int()), nil
	},
	catUint: func(rv reflect.Value) (Value, error) {
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("%s value %d overflows int64", rv.Type(), u)
		}
		return Integer(int64(u)), nil
	},
	catFloat: func(rv reflect.Value) (Value, error) {
		return Real(rv.Float()), nil
	},
	catText: func(rv reflect.Value) (Value, error) {
		return Text(rv.String()), nil
	},
	catBytes: func(rv reflect.Value) (Value, error) {
		return Blob(rv.Bytes()), nil
	},
	catArray: func(rv reflect.Value) (Value, error) {
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return Blob(b), nil
	},
}

// ValueOf converts a Go value to a Value.
//
// Integers, floats, strings, byte slices and byte arrays (including named
// types of those kinds) map to INTEGER, REAL, TEXT and BLOB. Unsigned
// values above math.MaxInt64 fail. A bool is stored as 0 or 1, a time.Time
// as TEXT in the shortest form of TimeFormat, and an
// encoding.TextMarshaler as its marshaled TEXT. nil and nil pointers are
// NULL; other pointers are followed.
func ValueOf(x any) (Value, error) {
	v, err := toValue(x)
	if err != nil {
		return Value{}, wrapf(KindConversion, "ValueOf", err, "")
	}
	return v, nil
}

func toValue(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case int64:
		return Integer(x), nil
	case int:
		return Integer(int64(x)), nil
	case float64:
		return Real(x), nil
	case string:
		return Text(x), nil
	case []byte:
		return Blob(x), nil
	case time.Time:
		return Text(formatTime(x)), nil
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null(), nil
		}
		return toValue(rv.Elem().Interface())
	}
	if m, ok := x.(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		if err != nil {
			return Value{}, fmt.Errorf("cannot marshal %T: %w", x, err)
		}
		return Text(string(b)), nil
	}
	if c := categoryOf(rv.Type()); c != catNone {
		return into[c](rv)
	}
	return Value{}, fmt.Errorf("unsupported type %T (try a string or TextMarshaler)", x)
}

// formatTime formats t as the shortest of
//
//	YYYY-MM-DD HH:MM
//	YYYY-MM-DD HH:MM:SS
//	YYYY-MM-DD HH:MM:SS.SSS
//
// with a "[+-]HHMM" suffix when t is not UTC.
func formatTime(t time.Time) string {
	str := t.Format(TimeFormat)
	if !strings.HasSuffix(str, "+0000") {
		return str
	}
	str = strings.TrimSuffix(str, "+0000")
	str = strings.TrimSuffix(str, ".000")
	str = strings.TrimSuffix(str, ":00")
	return str
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}

var (
	valueType           = reflect.TypeFor[Value]()
	timeType            = reflect.TypeFor[time.Time]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// from stores a Value into a Go value of each category.
var from = [...]func(v Value, dst reflect.Value) error{
	catBool: func(v Value, dst reflect.Value) error {
		if v.Type() != sqliteh.SQLITE_INTEGER {
			return mismatch(v, dst)
		}
		switch v.i {
		case 0:
			dst.SetBool(false)
		case 1:
			dst.SetBool(true)
		default:
			return fmt.Errorf("integer %d is not a bool", v.i)
		}
		return nil
	},
	catInt: func(v Value, dst reflect.Value) error {
		if v.Type() != sqliteh.SQLITE_INTEGER {
			return mismatch(v, dst)
		}
		if dst.OverflowInt(v.i) {
			return fmt.Errorf("integer %d overflows %s", v.i, dst.Type())
		}
		dst.SetInt(v.i)
		return nil
	},
	catUint: func(v Value, dst reflect.Value) error {
		if v.Type() != sqliteh.SQLITE_INTEGER {
			return mismatch(v, dst)
		}
		if v.i < 0 || dst.OverflowUint(uint64(v.i)) {
			return fmt.Errorf("integer %d overflows %s", v.i, dst.Type())
		}
		dst.SetUint(uint64(v.i))
		return nil
	},
	catFloat: func(v Value, dst reflect.Value) error {
		if v.Type() != sqliteh.SQLITE_FLOAT {
			return mismatch(v, dst)
		}
		if dst.OverflowFloat(v.f) {
			return fmt.Errorf("real %v overflows %s", v.f, dst.Type())
		}
		dst.SetFloat(v.f)
		return nil
	},
	catText: func(v Value, dst reflect.Value) error {
		if v.Type() != sqliteh.SQLITE_TEXT {
			return mismatch(v, dst)
		}
		dst.SetString(v.s)
		return nil
	},
	catBytes: func(v Value, dst reflect.Value) error {
		if v.Type() != sqliteh.SQLITE_BLOB {
			return mismatch(v, dst)
		}
		b := reflect.MakeSlice(dst.Type(), len(v.b), len(v.b))
		reflect.Copy(b, reflect.ValueOf(v.b))
		dst.Set(b)
		return nil
	},
	catArray: func(v Value, dst reflect.Value) error {
		if v.Type() != sqliteh.SQLITE_BLOB {
			return mismatch(v, dst)
		}
		if len(v.b) != dst.Len() {
			return fmt.Errorf("blob of %d bytes does not fit %s", len(v.b), dst.Type())
		}
		reflect.Copy(dst, reflect.ValueOf(v.b))
		return nil
	},
}

func mismatch(v Value, dst reflect.Value) error {
	return fmt.Errorf("cannot convert %s to %s", v.Type(), dst.Type())
}

// Convert converts v to T.
//
// The storage class of v must match the kind of T: INTEGER for integers
// and bool, REAL for floats, TEXT for strings and BLOB for byte slices and
// arrays. Narrowing that loses range fails, and a byte array must match
// the blob length exactly. A float32 target is range checked only; a REAL
// within range is rounded to the nearest float32. NULL converts only into
// a pointer type, as nil; a pointer type otherwise takes the converted
// pointee. Value and any accept every storage class.
func Convert[T any](v Value) (T, error) {
	var t T
	if err := assign(v, reflect.ValueOf(&t).Elem()); err != nil {
		return t, wrapf(KindConversion, "Convert", err, "")
	}
	return t, nil
}

// Scan stores v in the value dst points to, following Convert.
func (v Value) Scan(dst any) error {
	if err := scanValue(v, dst); err != nil {
		return wrapf(KindConversion, "Value.Scan", err, "")
	}
	return nil
}

func scanValue(v Value, dst any) error {
	switch d := dst.(type) {
	case *Value:
		*d = v
		return nil
	case *any:
		*d = v.Any()
		return nil
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dst)
	}
	return assign(v, rv.Elem())
}

func assign(v Value, dst reflect.Value) error {
	t := dst.Type()
	switch {
	case t.Kind() == reflect.Pointer:
		if v.IsNull() {
			dst.Set(reflect.Zero(t))
			return nil
		}
		p := reflect.New(t.Elem())
		if err := assign(v, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	case t == valueType:
		dst.Set(reflect.ValueOf(v))
		return nil
	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		if a := v.Any(); a != nil {
			dst.Set(reflect.ValueOf(a))
		} else {
			dst.Set(reflect.Zero(t))
		}
		return nil
	}

	if v.IsNull() {
		return fmt.Errorf("NULL into non-optional %s", t)
	}
	if t == timeType {
		tm, err := valueTime(v)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(tm))
		return nil
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		if v.Type() != sqliteh.SQLITE_TEXT {
			return mismatch(v, dst)
		}
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.s))
	}
	if c := categoryOf(t); c != catNone {
		return from[c](v, dst)
	}
	return fmt.Errorf("unsupported destination type %s", t)
}

func valueTime(v Value) (time.Time, error) {
	switch v.Type() {
	case sqliteh.SQLITE_TEXT:
		return parseTime(v.s)
	case sqliteh.SQLITE_INTEGER:
		return time.Unix(v.i, 0), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %s to time.Time", v.Type())
}

// textValue validates engine text before it becomes a Value.
func textValue(s string) (Value, error) {
	if !utf8.ValidString(s) {
		return Value{}, fmt.Errorf("text is not valid UTF-8")
	}
	return Text(s), nil
}
