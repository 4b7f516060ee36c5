package message

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func mustAny(t *testing.T, m proto.Message) *anypb.Any {
	t.Helper()
	v, err := anypb.New(m)
	require.NoError(t, err)
	return v
}

func TestInvocationWireBytes(t *testing.T) {
	// A method name alone is field 1, length-delimited
	data, err := (&Invocation{Method: "hi"}).Marshal()
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x02, 'h', 'i'}, data)
}

func TestInvocationRoundTrip(t *testing.T) {
	inv := &Invocation{
		Method: "sayHello",
		Args: []*anypb.Any{
			mustAny(t, wrapperspb.String("Joe")),
			mustAny(t, wrapperspb.Int32(-7)),
		},
	}

	data, err := inv.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalInvocation(data)
	require.NoError(t, err)
	require.Equal(t, "sayHello", decoded.Method)
	require.Len(t, decoded.Args, 2)
	for i := range inv.Args {
		require.True(t, proto.Equal(inv.Args[i], decoded.Args[i]), "argument %d differs", i)
	}
}

func TestInvocationRejectsNilArgument(t *testing.T) {
	_, err := (&Invocation{Method: "m", Args: []*anypb.Any{nil}}).Marshal()
	require.Error(t, err)
}

func TestUnmarshalInvocationGibberish(t *testing.T) {
	// Field number 0 is never valid
	_, err := UnmarshalInvocation([]byte{4, 1, 3, 1, 0})
	require.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestUnmarshalInvocationWrongWireType(t *testing.T) {
	// methodName sent as a varint
	data := protowire.AppendTag(nil, 1, protowire.VarintType)
	data = protowire.AppendVarint(data, 3)
	_, err := UnmarshalInvocation(data)
	require.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestUnmarshalInvocationTruncated(t *testing.T) {
	_, err := UnmarshalInvocation([]byte{0x0a, 0x05, 'a'})
	require.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestUnmarshalInvocationSkipsUnknownFields(t *testing.T) {
	data, err := (&Invocation{Method: "m"}).Marshal()
	require.NoError(t, err)
	data = protowire.AppendTag(data, 9, protowire.VarintType)
	data = protowire.AppendVarint(data, 42)
	data = protowire.AppendTag(data, 10, protowire.Fixed64Type)
	data = protowire.AppendFixed64(data, 1)

	inv, err := UnmarshalInvocation(data)
	require.NoError(t, err)
	require.Equal(t, "m", inv.Method)
	require.Empty(t, inv.Args)
}

func TestVoidResultKeepsOutcome(t *testing.T) {
	data, err := Succeeded(Void()).Marshal()
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x00}, data)

	r, err := UnmarshalResult(data)
	require.NoError(t, err)
	require.True(t, r.OK())
	require.True(t, IsVoid(r.Success))
}

func TestSuccessResult(t *testing.T) {
	value := mustAny(t, wrapperspb.String("Hello Joe"))
	data, err := Succeeded(value).Marshal()
	require.NoError(t, err)

	r, err := UnmarshalResult(data)
	require.NoError(t, err)
	require.True(t, r.OK())
	require.False(t, IsVoid(r.Success))
	require.True(t, proto.Equal(value, r.Success))
}

func TestFailureResult(t *testing.T) {
	data, err := Failed(NoSuchMethodType, "nonexistent").Marshal()
	require.NoError(t, err)

	r, err := UnmarshalResult(data)
	require.NoError(t, err)
	require.False(t, r.OK())
	require.Equal(t, &Failure{Type: NoSuchMethodType, Message: "nonexistent"}, r.Failure)
}

func TestResultNeedsExactlyOneOutcome(t *testing.T) {
	_, err := (&Result{}).Marshal()
	require.Error(t, err)

	_, err = (&Result{Success: Void(), Failure: &Failure{}}).Marshal()
	require.Error(t, err)

	_, err = UnmarshalResult(nil)
	require.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestResultLastOutcomeWins(t *testing.T) {
	failure, err := Failed(TimeoutType, "slow").Marshal()
	require.NoError(t, err)
	success, err := Succeeded(Void()).Marshal()
	require.NoError(t, err)

	r, err := UnmarshalResult(append(failure, success...))
	require.NoError(t, err)
	require.True(t, r.OK())
}
