package server

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pbtcp/marshal"
	"pbtcp/message"
)

// ErrCapabilityMismatch is wrapped by CapabilityMismatchError.
var ErrCapabilityMismatch = errors.New("server: service does not implement capability")

// CapabilityMismatchError is returned by New when the service lacks one of
// the requested capabilities.
type CapabilityMismatchError struct {
	Service    reflect.Type
	Capability reflect.Type
}

func (e *CapabilityMismatchError) Error() string {
	return fmt.Sprintf("server: %v does not implement %v", e.Service, e.Capability)
}

func (e *CapabilityMismatchError) Unwrap() error { return ErrCapabilityMismatch }

// Interface returns the capability type of interface T.
func Interface[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("server: %v is not an interface type", t))
	}
	return t
}

// CapabilityName is the name an interface type is published under.
func CapabilityName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// signature is one callable candidate of a method name.
type signature struct {
	name        string
	fn          reflect.Value
	withContext bool
	params      []reflect.Type
	unpackers   []marshal.Unpacker
	returnsVal  bool
	returnsErr  bool
}

// MethodTable maps a method name to its candidate signatures. It is built
// once and read-only afterwards.
type MethodTable struct {
	marshaler *marshal.Registry
	methods   map[string][]*signature
}

// NamedFunc is a function exported under an explicit method name.
type NamedFunc struct {
	Name string
	Fn   any
}

// NewMethodTable builds the table for service. With no capabilities every
// exported method of the service's method set is exported, including those
// promoted from embedded types. Otherwise only the capabilities' methods are.
// funcs add further candidates, after the methods of the same name.
func NewMethodTable(service any, capabilities []reflect.Type, funcs []NamedFunc, m *marshal.Registry, logger *zap.Logger) (*MethodTable, error) {
	if service == nil {
		return nil, errors.New("server: nil service")
	}
	t := &MethodTable{marshaler: m, methods: make(map[string][]*signature)}
	v := reflect.ValueOf(service)

	if len(capabilities) == 0 {
		typ := v.Type()
		for i := 0; i < typ.NumMethod(); i++ {
			method := typ.Method(i)
			sig, err := t.newSignature(method.Name, v.Method(i))
			if err != nil {
				logger.Debug("skipping method", zap.String("method", method.Name), zap.Error(err))
				continue
			}
			t.add(sig)
		}
	} else {
		seen := make(map[string]bool)
		for _, c := range capabilities {
			if c == nil || c.Kind() != reflect.Interface {
				return nil, errors.Errorf("server: capability %v is not an interface type", c)
			}
			if !v.Type().Implements(c) {
				return nil, &CapabilityMismatchError{Service: v.Type(), Capability: c}
			}
			for i := 0; i < c.NumMethod(); i++ {
				name := c.Method(i).Name
				if !c.Method(i).IsExported() || seen[name] {
					continue
				}
				seen[name] = true
				sig, err := t.newSignature(name, v.MethodByName(name))
				if err != nil {
					return nil, errors.Wrapf(err, "server: capability %v", CapabilityName(c))
				}
				t.add(sig)
			}
		}
	}

	for _, f := range funcs {
		fn := reflect.ValueOf(f.Fn)
		if f.Name == "" || fn.Kind() != reflect.Func || fn.IsNil() {
			return nil, errors.Errorf("server: function %q must be a non-nil func", f.Name)
		}
		sig, err := t.newSignature(f.Name, fn)
		if err != nil {
			return nil, err
		}
		t.add(sig)
	}
	return t, nil
}

func (t *MethodTable) add(sig *signature) {
	t.methods[sig.name] = append(t.methods[sig.name], sig)
}

// newSignature checks the shape of fn and resolves the unpackers of its
// parameters.
func (t *MethodTable) newSignature(name string, fn reflect.Value) (*signature, error) {
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, errors.Errorf("server: %s is variadic", name)
	}

	sig := &signature{name: name, fn: fn}
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		sig.withContext = true
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		p := ft.In(i)
		u, ok := t.marshaler.Unpacker(p)
		if !ok {
			return nil, errors.Errorf("server: %s: unsupported parameter type %v", name, p)
		}
		sig.params = append(sig.params, p)
		sig.unpackers = append(sig.unpackers, u)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			sig.returnsErr = true
		} else {
			sig.returnsVal = true
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.Errorf("server: %s: second result must be error", name)
		}
		sig.returnsVal, sig.returnsErr = true, true
	default:
		return nil, errors.Errorf("server: %s returns too many values", name)
	}
	if sig.returnsVal && !t.marshaler.CanPack(ft.Out(0)) {
		return nil, errors.Errorf("server: %s: unsupported result type %v", name, ft.Out(0))
	}
	return sig, nil
}

// Names lists the exported method names in sorted order.
func (t *MethodTable) Names() []string {
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve finds the first candidate of inv.Method whose arity matches and
// whose parameters all accept the arguments.
func (t *MethodTable) resolve(inv *message.Invocation) (*signature, []reflect.Value, bool) {
	for _, sig := range t.methods[inv.Method] {
		if len(sig.params) != len(inv.Args) {
			continue
		}
		args := make([]reflect.Value, len(inv.Args))
		matched := true
		for i, arg := range inv.Args {
			v, ok := sig.unpackers[i](arg)
			if !ok {
				matched = false
				break
			}
			args[i] = v
		}
		if matched {
			return sig, args, true
		}
	}
	return nil, nil, false
}

// Dispatch resolves and invokes inv.
func (t *MethodTable) Dispatch(ctx context.Context, inv *message.Invocation) *message.Result {
	sig, args, ok := t.resolve(inv)
	if !ok {
		return message.Failed(message.NoSuchMethodType, inv.Method)
	}
	return t.invoke(ctx, sig, args)
}

func (t *MethodTable) invoke(ctx context.Context, sig *signature, args []reflect.Value) (result *message.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = panicResult(r)
		}
	}()

	in := args
	if sig.withContext {
		in = append([]reflect.Value{reflect.ValueOf(&ctx).Elem()}, args...)
	}
	out := sig.fn.Call(in)

	if sig.returnsErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return errorResult(errv.Interface().(error))
		}
	}
	if !sig.returnsVal {
		return message.Succeeded(message.Void())
	}

	boxed, err := t.marshaler.PackValue(out[0])
	if errors.Is(err, marshal.ErrNilValue) {
		return message.Failedf(message.NullValueType, "%s returned a nil value", sig.name)
	}
	if err != nil {
		return errorResult(err)
	}
	return message.Succeeded(boxed)
}

// ErrorTyper lets an application error choose the kind reported to the
// caller.
type ErrorTyper interface {
	ErrorType() string
}

// ErrorKind names the kind of err: the ErrorType of the first error in its
// chain that has one, otherwise the qualified type name of its cause.
func ErrorKind(err error) string {
	var typer ErrorTyper
	if errors.As(err, &typer) {
		return typer.ErrorType()
	}
	t := reflect.TypeOf(errors.Cause(err))
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func errorResult(err error) *message.Result {
	return message.Failed(ErrorKind(err), err.Error())
}

func panicResult(r any) *message.Result {
	if err, ok := r.(error); ok {
		return errorResult(err)
	}
	return message.Failedf(message.PanicType, "%v", r)
}
