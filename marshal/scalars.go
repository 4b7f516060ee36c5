package marshal

import (
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func registerScalars(r *Registry) {
	register(r,
		func(v string) (*anypb.Any, error) { return anypb.New(wrapperspb.String(v)) },
		unpackString)

	register(r,
		func(v Char) (*anypb.Any, error) { return anypb.New(wrapperspb.String(string(rune(v)))) },
		func(v *anypb.Any) (Char, bool) {
			s, ok := unpackString(v)
			if !ok || utf8.RuneCountInString(s) != 1 {
				return 0, false
			}
			c, _ := utf8.DecodeRuneInString(s)
			return Char(c), true
		})

	register(r,
		func(v bool) (*anypb.Any, error) { return anypb.New(wrapperspb.Bool(v)) },
		func(v *anypb.Any) (bool, bool) {
			w := &wrapperspb.BoolValue{}
			ok := unwrap(v, w)
			return w.GetValue(), ok
		})

	// byte travels as a single-byte BytesValue
	register(r,
		func(v byte) (*anypb.Any, error) { return anypb.New(wrapperspb.Bytes([]byte{v})) },
		func(v *anypb.Any) (byte, bool) {
			w := &wrapperspb.BytesValue{}
			if !unwrap(v, w) || len(w.GetValue()) != 1 {
				return 0, false
			}
			return w.GetValue()[0], true
		})

	register(r,
		func(v int16) (*anypb.Any, error) { return anypb.New(wrapperspb.Int32(int32(v))) },
		func(v *anypb.Any) (int16, bool) {
			i, ok := unpackInt32(v)
			if !ok || i < math.MinInt16 || i > math.MaxInt16 {
				return 0, false
			}
			return int16(i), true
		})

	register(r,
		func(v int32) (*anypb.Any, error) { return anypb.New(wrapperspb.Int32(v)) },
		unpackInt32)

	register(r,
		func(v int) (*anypb.Any, error) { return anypb.New(wrapperspb.Int64(int64(v))) },
		func(v *anypb.Any) (int, bool) {
			i, ok := unpackInt64(v)
			if !ok || int64(int(i)) != i {
				return 0, false
			}
			return int(i), true
		})

	register(r,
		func(v int64) (*anypb.Any, error) { return anypb.New(wrapperspb.Int64(v)) },
		unpackInt64)

	register(r,
		func(v float32) (*anypb.Any, error) { return anypb.New(wrapperspb.Float(v)) },
		func(v *anypb.Any) (float32, bool) {
			w := &wrapperspb.FloatValue{}
			ok := unwrap(v, w)
			return w.GetValue(), ok
		})

	register(r,
		func(v float64) (*anypb.Any, error) { return anypb.New(wrapperspb.Double(v)) },
		func(v *anypb.Any) (float64, bool) {
			w := &wrapperspb.DoubleValue{}
			ok := unwrap(v, w)
			return w.GetValue(), ok
		})
}

func unpackString(v *anypb.Any) (string, bool) {
	w := &wrapperspb.StringValue{}
	ok := unwrap(v, w)
	return w.GetValue(), ok
}

func unpackInt32(v *anypb.Any) (int32, bool) {
	w := &wrapperspb.Int32Value{}
	ok := unwrap(v, w)
	return w.GetValue(), ok
}

func unpackInt64(v *anypb.Any) (int64, bool) {
	w := &wrapperspb.Int64Value{}
	ok := unwrap(v, w)
	return w.GetValue(), ok
}
