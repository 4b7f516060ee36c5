// Package message defines the two messages exchanged per call and their exact
// protobuf wire encoding.
//
// The shapes are those of the following schema, encoded by hand with
// protowire so no generated code is needed:
//
//	message MethodInvocation {
//	  string methodName = 1;
//	  repeated google.protobuf.Any args = 2;
//	}
//	message Result {
//	  oneof result {
//	    google.protobuf.Any successResult = 1;
//	    Exception exception = 2;
//	  }
//	}
//	message Exception {
//	  string type = 1;
//	  string message = 2;
//	}
//
// Arguments and return values travel as google.protobuf.Any ("boxed values").
// A void return is the empty Any, see Void.
package message

import (
	"fmt"

	"google.golang.org/protobuf/types/known/anypb"
)

// Failure kinds reported by the framework itself. Application errors use the
// Go type name of the returned error instead.
const (
	NoSuchMethodType = "NoSuchMethod"
	ParseErrorType   = "ParseError"
	FramingErrorType = "FramingError"
	TimeoutType      = "Timeout"
	NullValueType    = "NullValue"
	PanicType        = "Panic"
	RateLimitType    = "RateLimitExceeded"
)

// Invocation carries a single remote call: the method name and its boxed
// arguments in declaration order.
type Invocation struct {
	Method string
	Args   []*anypb.Any
}

// Failure describes an error raised while serving a call.
type Failure struct {
	Type    string // Failure kind or fully qualified Go error type
	Message string
}

func (f *Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Type, f.Message)
}

// Result is the outcome of a call. Exactly one of Success or Failure is set.
type Result struct {
	Success *anypb.Any
	Failure *Failure
}

// Succeeded builds a successful result carrying v.
func Succeeded(v *anypb.Any) *Result {
	return &Result{Success: v}
}

// Failed builds a failed result.
func Failed(kind, msg string) *Result {
	return &Result{Failure: &Failure{Type: kind, Message: msg}}
}

// Failedf builds a failed result with a formatted message.
func Failedf(kind, format string, args ...any) *Result {
	return Failed(kind, fmt.Sprintf(format, args...))
}

// OK reports whether r is a success.
func (r *Result) OK() bool {
	return r != nil && r.Success != nil && r.Failure == nil
}

// Void returns the marker sent as the success value of a method with no
// return value. It is the default Any: no type URL and no payload.
func Void() *anypb.Any {
	return &anypb.Any{}
}

// IsVoid reports whether v is the void marker.
func IsVoid(v *anypb.Any) bool {
	return v != nil && v.GetTypeUrl() == "" && len(v.GetValue()) == 0
}
