package marshal

import (
	"math"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full names of the list messages. Each has a single field `array = 1`,
// packed for numeric and bool lists, a plain bytes field for ByteList.
const (
	ByteListName   = "pbtcp.ByteList"
	BoolListName   = "pbtcp.BoolList"
	Int32ListName  = "pbtcp.Int32List"
	Int64ListName  = "pbtcp.Int64List"
	FloatListName  = "pbtcp.FloatList"
	DoubleListName = "pbtcp.DoubleList"

	typeURLPrefix = "type.googleapis.com/"
)

const arrayField protowire.Number = 1

func registerLists(r *Registry) {
	register(r,
		func(v []byte) (*anypb.Any, error) {
			var b []byte
			if len(v) > 0 {
				b = protowire.AppendTag(b, arrayField, protowire.BytesType)
				b = protowire.AppendBytes(b, v)
			}
			return boxList(ByteListName, b), nil
		},
		func(v *anypb.Any) ([]byte, bool) {
			payload, ok := listPayload(v, ByteListName)
			if !ok {
				return nil, false
			}
			return decodeByteList(payload)
		})

	register(r,
		func(v []bool) (*anypb.Any, error) {
			return boxList(BoolListName, packVarints(v, func(b bool) uint64 {
				if b {
					return 1
				}
				return 0
			})), nil
		},
		func(v *anypb.Any) ([]bool, bool) {
			return unpackVarints(v, BoolListName, func(x uint64) (bool, bool) { return x != 0, true })
		})

	register(r,
		func(v []Char) (*anypb.Any, error) {
			var sb strings.Builder
			for _, c := range v {
				sb.WriteRune(rune(c))
			}
			return anypb.New(wrapperspb.String(sb.String()))
		},
		func(v *anypb.Any) ([]Char, bool) {
			s, ok := unpackString(v)
			if !ok {
				return nil, false
			}
			chars := make([]Char, 0, len(s))
			for _, c := range s {
				chars = append(chars, Char(c))
			}
			return chars, true
		})

	register(r,
		func(v []int16) (*anypb.Any, error) {
			return boxList(Int32ListName, packVarints(v, func(i int16) uint64 { return uint64(int64(i)) })), nil
		},
		func(v *anypb.Any) ([]int16, bool) {
			return unpackVarints(v, Int32ListName, func(x uint64) (int16, bool) {
				i := int32(x)
				return int16(i), i >= math.MinInt16 && i <= math.MaxInt16
			})
		})

	register(r,
		func(v []int32) (*anypb.Any, error) {
			return boxList(Int32ListName, packVarints(v, func(i int32) uint64 { return uint64(int64(i)) })), nil
		},
		func(v *anypb.Any) ([]int32, bool) {
			return unpackVarints(v, Int32ListName, func(x uint64) (int32, bool) { return int32(x), true })
		})

	register(r,
		func(v []int) (*anypb.Any, error) {
			return boxList(Int64ListName, packVarints(v, func(i int) uint64 { return uint64(int64(i)) })), nil
		},
		func(v *anypb.Any) ([]int, bool) {
			return unpackVarints(v, Int64ListName, func(x uint64) (int, bool) {
				i := int64(x)
				return int(i), int64(int(i)) == i
			})
		})

	register(r,
		func(v []int64) (*anypb.Any, error) {
			return boxList(Int64ListName, packVarints(v, func(i int64) uint64 { return uint64(i) })), nil
		},
		func(v *anypb.Any) ([]int64, bool) {
			return unpackVarints(v, Int64ListName, func(x uint64) (int64, bool) { return int64(x), true })
		})

	register(r,
		func(v []float32) (*anypb.Any, error) {
			var packed []byte
			for _, f := range v {
				packed = protowire.AppendFixed32(packed, math.Float32bits(f))
			}
			return boxList(FloatListName, packedField(packed)), nil
		},
		func(v *anypb.Any) ([]float32, bool) {
			payload, ok := listPayload(v, FloatListName)
			if !ok {
				return nil, false
			}
			out := []float32{}
			ok = decodeRepeated(payload, protowire.Fixed32Type, func(b []byte) int {
				x, n := protowire.ConsumeFixed32(b)
				if n >= 0 {
					out = append(out, math.Float32frombits(x))
				}
				return n
			})
			return out, ok
		})

	register(r,
		func(v []float64) (*anypb.Any, error) {
			var packed []byte
			for _, f := range v {
				packed = protowire.AppendFixed64(packed, math.Float64bits(f))
			}
			return boxList(DoubleListName, packedField(packed)), nil
		},
		func(v *anypb.Any) ([]float64, bool) {
			payload, ok := listPayload(v, DoubleListName)
			if !ok {
				return nil, false
			}
			out := []float64{}
			ok = decodeRepeated(payload, protowire.Fixed64Type, func(b []byte) int {
				x, n := protowire.ConsumeFixed64(b)
				if n >= 0 {
					out = append(out, math.Float64frombits(x))
				}
				return n
			})
			return out, ok
		})
}

func boxList(name string, payload []byte) *anypb.Any {
	return &anypb.Any{TypeUrl: typeURLPrefix + name, Value: payload}
}

// listPayload returns the encoded list when v holds the named list message.
// Like anypb, only the part of the type URL after the last '/' is compared.
func listPayload(v *anypb.Any, name string) ([]byte, bool) {
	url := v.GetTypeUrl()
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		url = url[i+1:]
	}
	if url != name {
		return nil, false
	}
	return v.GetValue(), true
}

// packedField wraps already packed elements as field 1. Empty lists are
// left off the wire, as proto3 does.
func packedField(packed []byte) []byte {
	if len(packed) == 0 {
		return nil
	}
	b := protowire.AppendTag(nil, arrayField, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func packVarints[T any](values []T, encode func(T) uint64) []byte {
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendVarint(packed, encode(v))
	}
	return packedField(packed)
}

func unpackVarints[T any](v *anypb.Any, name string, decode func(uint64) (T, bool)) ([]T, bool) {
	payload, ok := listPayload(v, name)
	if !ok {
		return nil, false
	}
	out := []T{}
	inRange := true
	ok = decodeRepeated(payload, protowire.VarintType, func(b []byte) int {
		x, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			elem, fits := decode(x)
			inRange = inRange && fits
			out = append(out, elem)
		}
		return n
	})
	if !ok || !inRange {
		return nil, false
	}
	return out, true
}

// decodeRepeated walks the encoded list message and hands every element of
// field 1 to consume, accepting both packed and unpacked encodings. consume
// returns the element length or a negative protowire error code.
func decodeRepeated(b []byte, elemType protowire.Type, consume func([]byte) int) bool {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return false
		}
		b = b[n:]

		switch {
		case num == arrayField && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return false
			}
			b = b[n:]
			for len(packed) > 0 {
				m := consume(packed)
				if m < 0 {
					return false
				}
				packed = packed[m:]
			}
		case num == arrayField && typ == elemType:
			m := consume(b)
			if m < 0 {
				return false
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return false
			}
			b = b[m:]
		}
	}
	return true
}

func decodeByteList(b []byte) ([]byte, bool) {
	out := []byte{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, false
		}
		b = b[n:]

		if num == arrayField && typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, false
			}
			// last one wins for a singular bytes field
			out = append([]byte{}, v...)
			b = b[m:]
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return nil, false
		}
		b = b[m:]
	}
	return out, true
}
