package marshal

import (
	"math"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func roundTrip(t *testing.T, r *Registry, v any) any {
	t.Helper()
	boxed, err := r.Pack(v)
	require.NoError(t, err, "pack %T", v)

	out, ok := r.Unpack(boxed, reflect.TypeOf(v))
	require.True(t, ok, "unpack %T", v)
	return out.Interface()
}

func TestRoundTripScalarsAndLists(t *testing.T) {
	r := NewRegistry()

	values := []any{
		"",
		"Hello Joe",
		"こんにちは",
		Char('x'),
		Char('é'),
		true,
		false,
		byte(0),
		byte(255),
		int16(math.MinInt16),
		int16(math.MaxInt16),
		int32(math.MinInt32),
		int32(math.MaxInt32),
		int(-42),
		int64(math.MinInt64),
		int64(math.MaxInt64),
		[]byte{},
		[]byte{0, 1, 2, 255},
		[]bool{true, false, true},
		[]Char("héllo"),
		[]int16{math.MinInt16, -1, 0, math.MaxInt16},
		[]int32{math.MinInt32, -1, 0, 1, math.MaxInt32},
		[]int{-3, 0, 3},
		[]int64{math.MinInt64, 0, math.MaxInt64},
		[]int32{},
	}

	for _, v := range values {
		require.Equal(t, v, roundTrip(t, r, v))
	}
}

func TestRoundTripFloatsExactBits(t *testing.T) {
	r := NewRegistry()

	for _, f := range []float32{0, float32(math.Copysign(0, -1)), 1.5, math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(-1)), float32(math.NaN())} {
		got := roundTrip(t, r, f).(float32)
		require.Equal(t, math.Float32bits(f), math.Float32bits(got))
	}

	for _, f := range []float64{0, math.Copysign(0, -1), math.Pi, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(1), math.NaN()} {
		got := roundTrip(t, r, f).(float64)
		require.Equal(t, math.Float64bits(f), math.Float64bits(got))
	}

	doubles := []float64{math.NaN(), math.Copysign(0, -1), 2.5}
	gotDoubles := roundTrip(t, r, doubles).([]float64)
	require.Len(t, gotDoubles, len(doubles))
	for i := range doubles {
		require.Equal(t, math.Float64bits(doubles[i]), math.Float64bits(gotDoubles[i]))
	}

	floats := []float32{float32(math.NaN()), 1e-3}
	gotFloats := roundTrip(t, r, floats).([]float32)
	require.Len(t, gotFloats, len(floats))
	for i := range floats {
		require.Equal(t, math.Float32bits(floats[i]), math.Float32bits(gotFloats[i]))
	}
}

func TestRoundTripMessage(t *testing.T) {
	r := NewRegistry()
	msg := wrapperspb.String("structured")

	boxed, err := r.Pack(msg)
	require.NoError(t, err)

	out, ok := r.Unpack(boxed, reflect.TypeOf(msg))
	require.True(t, ok)
	require.True(t, proto.Equal(msg, out.Interface().(proto.Message)))

	// A string and a StringValue share the same wire shape
	s, ok := r.Unpack(boxed, reflect.TypeOf(""))
	require.True(t, ok)
	require.Equal(t, "structured", s.Interface())
}

func TestNilSlicePacksAsEmptyList(t *testing.T) {
	r := NewRegistry()
	var ints []int64
	require.Equal(t, []int64{}, roundTrip(t, r, ints))
}

func TestPackFailures(t *testing.T) {
	r := NewRegistry()

	_, err := r.Pack(nil)
	require.True(t, errors.Is(err, ErrNilValue))

	var msg *wrapperspb.StringValue
	_, err = r.Pack(msg)
	require.True(t, errors.Is(err, ErrNilValue))

	_, err = r.PackValue(reflect.Value{})
	require.True(t, errors.Is(err, ErrNilValue))

	var unsupported *UnsupportedTypeError
	_, err = r.Pack(uint32(1))
	require.True(t, errors.As(err, &unsupported))
	require.Equal(t, reflect.TypeOf(uint32(0)), unsupported.Type)

	_, err = r.Pack(map[string]int{})
	require.True(t, errors.As(err, &unsupported))
}

func TestUnpackMismatchYieldsNoValue(t *testing.T) {
	r := NewRegistry()

	mustPack := func(v any) *anypb.Any {
		boxed, err := r.Pack(v)
		require.NoError(t, err)
		return boxed
	}

	cases := []struct {
		name   string
		value  *anypb.Any
		target reflect.Type
	}{
		{"string as int32", mustPack("1"), reflect.TypeOf(int32(0))},
		{"bool as string", mustPack(true), reflect.TypeOf("")},
		{"multi-char string as Char", mustPack("ab"), reflect.TypeOf(Char(0))},
		{"empty string as Char", mustPack(""), reflect.TypeOf(Char(0))},
		{"int32 out of int16 range", mustPack(int32(70000)), reflect.TypeOf(int16(0))},
		{"int32 list out of int16 range", mustPack([]int32{1, 70000}), reflect.TypeOf([]int16{})},
		{"int64 as int32", mustPack(int64(1)), reflect.TypeOf(int32(0))},
		{"float as double", mustPack(float32(1)), reflect.TypeOf(float64(0))},
		{"byte list as byte", mustPack([]byte{1, 2}), reflect.TypeOf(byte(0))},
		{"int32 list as int64 list", mustPack([]int32{1}), reflect.TypeOf([]int64{})},
		{"void as string", &anypb.Any{}, reflect.TypeOf("")},
		{"string as message", mustPack("x"), reflect.TypeOf(&wrapperspb.BoolValue{})},
		{"unsupported target", mustPack("x"), reflect.TypeOf(uint64(0))},
	}

	for _, tc := range cases {
		_, ok := r.Unpack(tc.value, tc.target)
		require.False(t, ok, tc.name)
	}

	_, ok := r.Unpack(nil, reflect.TypeOf(""))
	require.False(t, ok)
}

func TestUnpackAcceptsUnpackedEncoding(t *testing.T) {
	r := NewRegistry()

	// Two int32 elements written one field each instead of packed
	var payload []byte
	for _, v := range []int32{7, -1} {
		payload = protowire.AppendTag(payload, 1, protowire.VarintType)
		payload = protowire.AppendVarint(payload, uint64(int64(v)))
	}
	boxed := &anypb.Any{TypeUrl: "type.googleapis.com/" + Int32ListName, Value: payload}

	out, ok := r.Unpack(boxed, reflect.TypeOf([]int32{}))
	require.True(t, ok)
	require.Equal(t, []int32{7, -1}, out.Interface())
}

func TestUnpackerIsResolvedOnce(t *testing.T) {
	r := NewRegistry()

	u, ok := r.Unpacker(reflect.TypeOf(int64(0)))
	require.True(t, ok)

	boxed, err := r.Pack(int64(99))
	require.NoError(t, err)
	v, ok := u(boxed)
	require.True(t, ok)
	require.Equal(t, int64(99), v.Interface())

	_, ok = r.Unpacker(reflect.TypeOf(struct{}{}))
	require.False(t, ok)
}

func TestCanPack(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.CanPack(reflect.TypeOf("")))
	require.True(t, r.CanPack(reflect.TypeOf(&wrapperspb.Int32Value{})))
	require.True(t, r.CanPack(reflect.TypeOf((*any)(nil)).Elem()))
	require.False(t, r.CanPack(reflect.TypeOf(struct{}{})))
}
