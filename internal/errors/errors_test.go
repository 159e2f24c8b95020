package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCodeWalksCauseChain(t *testing.T) {
	err := DAPLaunchFailed("app.py", RequestFailed("launch", "no such file"))

	assert.True(t, HasCode(err, CodeDAPLaunchFailed))
	assert.True(t, HasCode(err, CodeRequestFailed))
	assert.False(t, HasCode(err, CodeTransportFailed))
}

func TestHasCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("starting: %w", DAPInitFailed(TransportFailed(io.EOF)))

	assert.True(t, HasCode(err, CodeDAPInitFailed))
	assert.True(t, HasCode(err, CodeTransportFailed))
	assert.True(t, stderrors.Is(err, io.EOF))
}

func TestHasCodeNil(t *testing.T) {
	assert.False(t, HasCode(nil, CodeRequestFailed))
	assert.False(t, HasCode(io.EOF, CodeRequestFailed))
}

func TestErrorIncludesHint(t *testing.T) {
	err := NoSession()
	assert.Contains(t, err.Error(), "no debug session is active")
	assert.Contains(t, err.Error(), "| Hint: ")
}

func TestRequestFailedDetails(t *testing.T) {
	err := RequestFailed("setBreakpoints", "")
	assert.Equal(t, CodeRequestFailed, err.Code)
	assert.Equal(t, "setBreakpoints", err.Details["command"])
	assert.Contains(t, err.Message, "no reason given")
}

func TestFromErrorPreservesStructure(t *testing.T) {
	orig := BreakpointNotFound(3)
	wrapped := fmt.Errorf("remove: %w", orig)

	got := FromError(wrapped)
	require.Same(t, orig, got)

	plain := FromError(io.ErrUnexpectedEOF)
	assert.Equal(t, ErrorCode("UNKNOWN_ERROR"), plain.Code)
	assert.ErrorIs(t, plain, io.ErrUnexpectedEOF)
}

func TestPrecondition(t *testing.T) {
	err := Precondition("thread id %d != %d", 1, 2)
	assert.Equal(t, CodePrecondition, err.Code)
	assert.Equal(t, "thread id 1 != 2", err.Message)
}

func TestNoThread(t *testing.T) {
	err := NoThread("resume")
	assert.True(t, HasCode(err, CodeNoThread))
	assert.Contains(t, err.Error(), "cannot resume")
}
