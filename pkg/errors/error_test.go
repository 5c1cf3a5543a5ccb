package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapCoded_CodeAndCause(t *testing.T) {
	cause := errors.New("venue down")
	err := WrapCoded(HistoryFetchError, cause)

	assert.True(t, HasCode(err, HistoryFetchError))
	assert.False(t, HasCode(err, TransportConnectError))
	assert.Equal(t, "venue down", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestCodeOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, GeneralInternalError, CodeOf(errors.New("boom")))
}

func TestTracerFromError_AttachesStackOnce(t *testing.T) {
	tracer := TracerFromError(errors.New("boom"))
	require.NotNil(t, tracer.StackTrace(), "plain errors gain a stack")

	rewrapped := TracerFromError(tracer)
	assert.Same(t, tracer, rewrapped.Err, "stack-carrying errors are not rewrapped")
}
