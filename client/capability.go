package client

import (
	"context"
	"fmt"
	"io"
	"reflect"
)

// Invoker forwards one call to the remote service. A nil reply means the
// method returns nothing; otherwise reply must point to a value of the
// method's result type.
type Invoker interface {
	Invoke(ctx context.Context, method string, args []any, reply any) error
}

// Capability is an interface type the client implements, together with the
// adapter that implements it on top of an Invoker.
type Capability struct {
	typ   reflect.Type
	build func(Invoker) any
}

// Implement declares interface T, implemented by adapter. The adapter is
// usually a small struct whose methods forward to Call or CallVoid:
//
//	type greeterClient struct{ inv client.Invoker }
//
//	func (g greeterClient) SayHello(name string) (string, error) {
//		return client.Call[string](context.Background(), g.inv, "SayHello", name)
//	}
//
//	var GreeterCapability = client.Implement(func(inv client.Invoker) Greeter {
//		return greeterClient{inv}
//	})
func Implement[T any](adapter func(Invoker) T) Capability {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("client: %v is not an interface type", t))
	}
	return Capability{
		typ:   t,
		build: func(inv Invoker) any { return adapter(inv) },
	}
}

// Type returns the interface type of the capability.
func (c Capability) Type() reflect.Type {
	return c.typ
}

var closerType = reflect.TypeFor[io.Closer]()

// Closeable declares io.Closer. A client built with it forwards Close to the
// remote service before releasing its connection.
var Closeable = Implement(func(inv Invoker) io.Closer {
	if c, ok := inv.(io.Closer); ok {
		return c
	}
	return closeForwarder{inv}
})

type closeForwarder struct {
	inv Invoker
}

func (f closeForwarder) Close() error {
	return CallVoid(context.Background(), f.inv, "Close")
}

// Call invokes a method returning a T.
func Call[T any](ctx context.Context, inv Invoker, method string, args ...any) (T, error) {
	var reply T
	err := inv.Invoke(ctx, method, args, &reply)
	return reply, err
}

// CallVoid invokes a method returning nothing.
func CallVoid(ctx context.Context, inv Invoker, method string, args ...any) error {
	return inv.Invoke(ctx, method, args, nil)
}

// As returns the client's implementation of T.
func As[T any](c *Client) (T, error) {
	t := reflect.TypeFor[T]()
	if a, ok := c.adapters[t]; ok {
		return a.(T), nil
	}
	var zero T
	return zero, &InterfaceMismatchError{Type: t}
}
