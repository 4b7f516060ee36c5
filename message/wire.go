package message

import (
	"unicode/utf8"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// ErrMalformed is wrapped by every decoding error of this package.
var ErrMalformed = errors.New("message: malformed protobuf")

const (
	invocationMethodField protowire.Number = 1
	invocationArgsField   protowire.Number = 2

	resultSuccessField   protowire.Number = 1
	resultExceptionField protowire.Number = 2

	exceptionTypeField    protowire.Number = 1
	exceptionMessageField protowire.Number = 2
)

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// Marshal encodes the invocation as a MethodInvocation message.
func (inv *Invocation) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, invocationMethodField, inv.Method)
	for i, arg := range inv.Args {
		if arg == nil {
			return nil, errors.Errorf("message: argument %d of %s is nil", i, inv.Method)
		}
		data, err := marshalOptions.Marshal(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "message: argument %d of %s", i, inv.Method)
		}
		b = protowire.AppendTag(b, invocationArgsField, protowire.BytesType)
		b = protowire.AppendBytes(b, data)
	}
	return b, nil
}

// UnmarshalInvocation decodes a MethodInvocation message.
func UnmarshalInvocation(data []byte) (*Invocation, error) {
	inv := &Invocation{}
	err := forEachField(data, func(f field) error {
		switch f.num {
		case invocationMethodField:
			s, err := f.str()
			if err != nil {
				return err
			}
			inv.Method = s
		case invocationArgsField:
			arg, err := f.boxed()
			if err != nil {
				return err
			}
			inv.Args = append(inv.Args, arg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Marshal encodes the result as a Result message.
func (r *Result) Marshal() ([]byte, error) {
	var b []byte
	switch {
	case r.Success != nil && r.Failure != nil:
		return nil, errors.New("message: result has both a success and a failure")
	case r.Failure != nil:
		var e []byte
		e = appendString(e, exceptionTypeField, r.Failure.Type)
		e = appendString(e, exceptionMessageField, r.Failure.Message)
		b = protowire.AppendTag(b, resultExceptionField, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	case r.Success != nil:
		data, err := marshalOptions.Marshal(r.Success)
		if err != nil {
			return nil, errors.Wrap(err, "message: success value")
		}
		// Written even when empty, so the oneof survives for void results.
		b = protowire.AppendTag(b, resultSuccessField, protowire.BytesType)
		b = protowire.AppendBytes(b, data)
	default:
		return nil, errors.New("message: result has no outcome")
	}
	return b, nil
}

// UnmarshalResult decodes a Result message. As with any protobuf oneof, the
// last outcome on the wire wins.
func UnmarshalResult(data []byte) (*Result, error) {
	r := &Result{}
	err := forEachField(data, func(f field) error {
		switch f.num {
		case resultSuccessField:
			v, err := f.boxed()
			if err != nil {
				return err
			}
			r.Success, r.Failure = v, nil
		case resultExceptionField:
			if f.typ != protowire.BytesType {
				return f.wrongType()
			}
			failure, err := unmarshalFailure(f.bytes)
			if err != nil {
				return err
			}
			r.Success, r.Failure = nil, failure
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.Success == nil && r.Failure == nil {
		return nil, errors.Wrap(ErrMalformed, "result carries neither success nor exception")
	}
	return r, nil
}

func unmarshalFailure(data []byte) (*Failure, error) {
	failure := &Failure{}
	err := forEachField(data, func(f field) error {
		var err error
		switch f.num {
		case exceptionTypeField:
			failure.Type, err = f.str()
		case exceptionMessageField:
			failure.Message, err = f.str()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return failure, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	// proto3 leaves default values off the wire
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// field is one decoded tag/value pair. bytes is only set for length-delimited
// fields; other wire types are skipped by forEachField.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	bytes []byte
}

func (f field) wrongType() error {
	return errors.Wrapf(ErrMalformed, "field %d has wire type %d", f.num, f.typ)
}

func (f field) str() (string, error) {
	if f.typ != protowire.BytesType {
		return "", f.wrongType()
	}
	if !utf8.Valid(f.bytes) {
		return "", errors.Wrapf(ErrMalformed, "field %d is not valid UTF-8", f.num)
	}
	return string(f.bytes), nil
}

func (f field) boxed() (*anypb.Any, error) {
	if f.typ != protowire.BytesType {
		return nil, f.wrongType()
	}
	v := &anypb.Any{}
	if err := proto.Unmarshal(f.bytes, v); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "field %d: %v", f.num, err)
	}
	return v, nil
}

func forEachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrapf(ErrMalformed, "tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		if typ == protowire.BytesType {
			f.bytes, n = protowire.ConsumeBytes(b)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(ErrMalformed, "field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
