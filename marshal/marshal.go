// Package marshal maps native Go values to and from boxed values
// (google.golang.org/protobuf Any messages).
//
// Packing looks up a converter by the exact dynamic type of the value.
// Unpacking is driven by the target type: an Unpacker for a type is resolved
// once and then only ever answers "this boxed value holds my type" or not.
// Unpack never fails hard, which lets the method resolver treat a mismatch as
// "this overload does not apply".
//
//	Go type               boxed as
//	proto.Message         the message itself
//	string                StringValue
//	Char / []Char         StringValue (one rune / concatenated)
//	bool                  BoolValue
//	byte                  BytesValue of length 1
//	int16, int32          Int32Value
//	int, int64            Int64Value
//	float32, float64      FloatValue, DoubleValue
//	[]byte                pbtcp.ByteList
//	[]bool                pbtcp.BoolList
//	[]int16, []int32      pbtcp.Int32List
//	[]int, []int64        pbtcp.Int64List
//	[]float32, []float64  pbtcp.FloatList, pbtcp.DoubleList
package marshal

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// Char is a single character. Go's rune is an alias of int32, so a distinct
// type is needed for values that must travel as one-character strings.
type Char rune

// ErrNilValue is returned when packing nil or a nil message pointer.
var ErrNilValue = errors.New("marshal: cannot pack a nil value")

// UnsupportedTypeError is returned when packing a value of a type the
// registry has no converter for.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("marshal: unsupported type %v", e.Type)
}

// Unpacker converts a boxed value to one target type. ok is false when v does
// not hold a value of that type.
type Unpacker func(v *anypb.Any) (value reflect.Value, ok bool)

type packFunc func(v reflect.Value) (*anypb.Any, error)

var messageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

// Registry holds the type converters. It is filled once by NewRegistry and
// only read afterwards, so it is safe for concurrent use.
type Registry struct {
	packers   map[reflect.Type]packFunc
	unpackers map[reflect.Type]Unpacker
}

// NewRegistry returns a registry with converters for all supported types.
func NewRegistry() *Registry {
	r := &Registry{
		packers:   make(map[reflect.Type]packFunc),
		unpackers: make(map[reflect.Type]Unpacker),
	}
	registerScalars(r)
	registerLists(r)
	return r
}

func register[T any](r *Registry, pack func(T) (*anypb.Any, error), unpack func(*anypb.Any) (T, bool)) {
	t := reflect.TypeFor[T]()
	r.packers[t] = func(v reflect.Value) (*anypb.Any, error) {
		return pack(v.Interface().(T))
	}
	r.unpackers[t] = func(v *anypb.Any) (reflect.Value, bool) {
		native, ok := unpack(v)
		if !ok {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(native), true
	}
}

// Pack boxes v.
func (r *Registry) Pack(v any) (*anypb.Any, error) {
	if v == nil {
		return nil, ErrNilValue
	}
	if m, ok := v.(proto.Message); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil, ErrNilValue
		}
		boxed, err := anypb.New(m)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal: pack %T", v)
		}
		return boxed, nil
	}

	rv := reflect.ValueOf(v)
	pack, ok := r.packers[rv.Type()]
	if !ok {
		return nil, &UnsupportedTypeError{Type: rv.Type()}
	}
	return pack(rv)
}

// PackValue boxes a reflected value, as produced by a reflective call.
func (r *Registry) PackValue(v reflect.Value) (*anypb.Any, error) {
	if !v.IsValid() || (v.Kind() == reflect.Interface && v.IsNil()) {
		return nil, ErrNilValue
	}
	return r.Pack(v.Interface())
}

// CanPack reports whether values of static type t may be packable. Interface
// types are accepted because the check is deferred to the dynamic value.
func (r *Registry) CanPack(t reflect.Type) bool {
	if _, ok := r.packers[t]; ok {
		return true
	}
	return t.Kind() == reflect.Interface || t.Implements(messageType)
}

// Unpacker returns the converter for target type t.
func (r *Registry) Unpacker(t reflect.Type) (Unpacker, bool) {
	if u, ok := r.unpackers[t]; ok {
		return u, true
	}
	if t.Kind() == reflect.Ptr && t.Implements(messageType) {
		return messageUnpacker(t), true
	}
	return nil, false
}

// Unpack converts v to a value of type t.
func (r *Registry) Unpack(v *anypb.Any, t reflect.Type) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	u, ok := r.Unpacker(t)
	if !ok {
		return reflect.Value{}, false
	}
	return u(v)
}

func messageUnpacker(t reflect.Type) Unpacker {
	elem := t.Elem()
	return func(v *anypb.Any) (reflect.Value, bool) {
		m := reflect.New(elem).Interface().(proto.Message)
		if !unwrap(v, m) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(m), true
	}
}

// unwrap decodes v into m when v holds a message of m's type.
func unwrap(v *anypb.Any, m proto.Message) bool {
	if v == nil || !v.MessageIs(m) {
		return false
	}
	return v.UnmarshalTo(m) == nil
}
