package sqlite

import (
	"errors"
	"math"
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tinysqlite/sqlite/sqliteh"
)

var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

// roundTrip converts v into a Value and back.
func roundTrip[T any](t *testing.T, v T) {
	t.Helper()
	val, err := ValueOf(v)
	if err != nil {
		t.Fatalf("ValueOf(%T %v): %v", v, v, err)
	}
	got, err := Convert[T](val)
	if err != nil {
		t.Fatalf("Convert[%T](%v): %v", v, val, err)
	}
	if diff := cmp.Diff(v, got, addrComparer); diff != "" {
		t.Errorf("%T round trip (-want +got):\n%s", v, diff)
	}
}

func TestRoundTripNumeric(t *testing.T) {
	roundTrip(t, int(math.MinInt64))
	roundTrip(t, int8(math.MinInt8))
	roundTrip(t, int16(math.MaxInt16))
	roundTrip(t, int32(math.MinInt32))
	roundTrip(t, int64(math.MaxInt64))
	roundTrip(t, uint(math.MaxInt64))
	roundTrip(t, uint8(math.MaxUint8))
	roundTrip(t, uint16(math.MaxUint16))
	roundTrip(t, uint32(math.MaxUint32))
	roundTrip(t, uint64(math.MaxInt64))
	roundTrip(t, float32(math.MaxFloat32))
	roundTrip(t, float32(-1.5))
	roundTrip(t, math.SmallestNonzeroFloat64)
	roundTrip(t, math.Inf(-1))
	roundTrip(t, true)
	roundTrip(t, false)
}

func TestRoundTripOther(t *testing.T) {
	type name string
	type blob []byte
	roundTrip(t, "héllo, 世界")
	roundTrip(t, "")
	roundTrip(t, name("named"))
	roundTrip(t, []byte{0, 1, 2, 0xff})
	roundTrip(t, blob("named blob"))
	roundTrip(t, [4]byte{1, 2, 3, 4})
	roundTrip(t, netip.MustParseAddr("10.0.0.1"))
	roundTrip(t, time.Date(2024, 2, 29, 13, 14, 15, 0, time.UTC))
	roundTrip(t, time.Date(2024, 2, 29, 13, 14, 15, 123e6, time.UTC))
	roundTrip(t, time.Date(2024, 2, 29, 13, 14, 0, 0, time.UTC))
	roundTrip(t, Integer(7))
}

func TestValueOf(t *testing.T) {
	i := 42
	var nilp *int
	tests := []struct {
		in   any
		want Value
	}{
		{nil, Null()},
		{nilp, Null()},
		{&i, Integer(42)},
		{int8(-3), Integer(-3)},
		{uint32(7), Integer(7)},
		{true, Integer(1)},
		{3.25, Real(3.25)},
		{float32(0.5), Real(0.5)},
		{"x", Text("x")},
		{[]byte{}, Blob(nil)},
		{[2]byte{9, 8}, Blob([]byte{9, 8})},
		{time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC), Text("2024-01-02 03:04")},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Text("2024-01-02 03:04:05")},
		{time.Date(2024, 1, 2, 3, 4, 5, 6e6, time.UTC), Text("2024-01-02 03:04:05.006")},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("", 3600)), Text("2024-01-02 03:04:05.000+0100")},
		{netip.MustParseAddr("::1"), Text("::1")},
		{Real(1), Real(1)},
	}
	for _, tt := range tests {
		got, err := ValueOf(tt.in)
		if err != nil {
			t.Errorf("ValueOf(%#v): %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ValueOf(%#v) (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestValueOfErrors(t *testing.T) {
	for _, in := range []any{
		uint64(math.MaxInt64 + 1),
		uint(math.MaxUint64),
		struct{}{},
		[]int{1},
		map[string]int{},
	} {
		if _, err := ValueOf(in); !errors.Is(err, ErrConversion) {
			t.Errorf("ValueOf(%T)=%v, want ErrConversion", in, err)
		}
	}
}

func TestConvertOverflow(t *testing.T) {
	check := func(name string, err error) {
		t.Helper()
		if !errors.Is(err, ErrConversion) {
			t.Errorf("%s: err=%v, want ErrConversion", name, err)
		}
	}
	_, err := Convert[int8](Integer(128))
	check("int8(128)", err)
	_, err = Convert[int32](Integer(math.MinInt32 - 1))
	check("int32(min-1)", err)
	_, err = Convert[uint8](Integer(-1))
	check("uint8(-1)", err)
	_, err = Convert[uint16](Integer(math.MaxUint16 + 1))
	check("uint16(max+1)", err)
	_, err = Convert[float32](Real(math.MaxFloat64))
	check("float32(maxfloat64)", err)
	_, err = Convert[bool](Integer(2))
	check("bool(2)", err)
}

func TestConvertFloat32Rounds(t *testing.T) {
	got, err := Convert[float32](Real(0.1))
	if err != nil {
		t.Fatal(err)
	}
	if got != float32(0.1) {
		t.Errorf("Convert[float32](0.1)=%v, want %v", got, float32(0.1))
	}
	// A float32 stored as REAL reads back exactly.
	v, err := ValueOf(float32(0.1))
	if err != nil {
		t.Fatal(err)
	}
	if got, err := Convert[float32](v); err != nil || got != float32(0.1) {
		t.Errorf("round trip=%v, %v", got, err)
	}
}

func TestConvertMismatch(t *testing.T) {
	check := func(name string, err error) {
		t.Helper()
		if !errors.Is(err, ErrConversion) {
			t.Errorf("%s: err=%v, want ErrConversion", name, err)
		}
	}
	_, err := Convert[int64](Text("1"))
	check("int64 from text", err)
	_, err = Convert[float64](Integer(1))
	check("float64 from integer", err)
	_, err = Convert[string](Blob([]byte("x")))
	check("string from blob", err)
	_, err = Convert[[]byte](Text("x"))
	check("[]byte from text", err)
	_, err = Convert[*int64](Text("1"))
	check("*int64 from text", err)
	_, err = Convert[[5]byte](Blob([]byte{1, 2, 3, 4}))
	check("[5]byte from 4 bytes", err)
	_, err = Convert[time.Time](Real(1))
	check("time from real", err)
	_, err = Convert[netip.Addr](Text("not an address"))
	check("netip.Addr from bad text", err)
}

func TestNullOptional(t *testing.T) {
	null := Null()
	checkNull := func(name string, isNil bool, err error) {
		t.Helper()
		if err != nil {
			t.Errorf("%s: %v", name, err)
		}
		if !isNil {
			t.Errorf("%s: got non-nil", name)
		}
	}
	p1, err := Convert[*int](null)
	checkNull("*int", p1 == nil, err)
	p2, err := Convert[*uint16](null)
	checkNull("*uint16", p2 == nil, err)
	p3, err := Convert[*float64](null)
	checkNull("*float64", p3 == nil, err)
	p4, err := Convert[*string](null)
	checkNull("*string", p4 == nil, err)
	p5, err := Convert[*[]byte](null)
	checkNull("*[]byte", p5 == nil, err)
	p6, err := Convert[*[4]byte](null)
	checkNull("*[4]byte", p6 == nil, err)
	p7, err := Convert[*time.Time](null)
	checkNull("*time.Time", p7 == nil, err)
	p8, err := Convert[*bool](null)
	checkNull("*bool", p8 == nil, err)

	for name, fn := range map[string]func() error{
		"int":     func() error { _, err := Convert[int](null); return err },
		"uint16":  func() error { _, err := Convert[uint16](null); return err },
		"float64": func() error { _, err := Convert[float64](null); return err },
		"string":  func() error { _, err := Convert[string](null); return err },
		"[]byte":  func() error { _, err := Convert[[]byte](null); return err },
		"[4]byte": func() error { _, err := Convert[[4]byte](null); return err },
		"time":    func() error { _, err := Convert[time.Time](null); return err },
		"bool":    func() error { _, err := Convert[bool](null); return err },
	} {
		if err := fn(); !errors.Is(err, ErrConversion) {
			t.Errorf("non-optional %s from NULL: err=%v, want ErrConversion", name, err)
		}
	}
}

func TestConvertAny(t *testing.T) {
	for _, v := range []Value{Null(), Integer(1), Real(2), Text("3"), Blob([]byte{4})} {
		got, err := Convert[any](v)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(v.Any(), got); diff != "" {
			t.Errorf("Convert[any](%v) (-want +got):\n%s", v, diff)
		}
		gotV, err := Convert[Value](v)
		if err != nil {
			t.Fatal(err)
		}
		if !gotV.Equal(v) {
			t.Errorf("Convert[Value](%v)=%v", v, gotV)
		}
	}
}

func TestConvertTime(t *testing.T) {
	want := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)
	for _, v := range []Value{
		Text("2021-06-07 08:09:10"),
		Text("2021-06-07 08:09:10.000"),
		Text("2021-06-07 10:09:10.000+0200"),
		Text("2021-06-07T08:09:10Z"),
		Integer(want.Unix()),
	} {
		got, err := Convert[time.Time](v)
		if err != nil {
			t.Errorf("Convert[time.Time](%v): %v", v, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("Convert[time.Time](%v)=%v, want %v", v, got, want)
		}
	}
}

func TestValueScan(t *testing.T) {
	var n int
	if err := Integer(5).Scan(&n); err != nil || n != 5 {
		t.Errorf("Scan int: n=%d err=%v", n, err)
	}
	var s *string
	if err := Text("x").Scan(&s); err != nil || s == nil || *s != "x" {
		t.Errorf("Scan *string: %v err=%v", s, err)
	}
	if err := Integer(5).Scan(n); !errors.Is(err, ErrConversion) {
		t.Errorf("Scan non-pointer: err=%v", err)
	}
	if err := Integer(5).Scan(nil); !errors.Is(err, ErrConversion) {
		t.Errorf("Scan nil: err=%v", err)
	}
}

func TestValueAccessors(t *testing.T) {
	var zero Value
	if !zero.IsNull() || zero.Type() != sqliteh.SQLITE_NULL {
		t.Errorf("zero Value: null=%v type=%v", zero.IsNull(), zero.Type())
	}
	if !zero.Equal(Null()) {
		t.Error("zero Value != Null()")
	}
	if Blob(nil).Any() == nil {
		t.Error("Blob(nil).Any() is nil")
	}
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), "NULL"},
		{Integer(-1), "-1"},
		{Real(0.5), "0.5"},
		{Text(`a"b`), `"a\"b"`},
		{Blob([]byte{0xab, 0x01}), "x'ab01'"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String()=%q, want %q", got, tt.want)
		}
	}
	if Integer(1).Equal(Real(1)) {
		t.Error("Integer(1) equals Real(1)")
	}
}
