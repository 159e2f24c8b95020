package target_test

import (
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dapclient/internal/daptest"
)

func variables(vars ...dap.Variable) daptest.Handler {
	return func(req dap.RequestMessage) dap.ResponseMessage {
		resp := &dap.VariablesResponse{}
		resp.Success = true
		resp.Body.Variables = append([]dap.Variable{}, vars...)
		return resp
	}
}

func TestFrameVariablesAreScopes(t *testing.T) {
	h := mustStart(t, func(a *daptest.Adapter) {
		a.Handle("threads", daptest.Threads(dap.Thread{Id: 1, Name: "main"}))
		a.Handle("stackTrace", daptest.Frames(frame(77, "main", 3)))
		a.Handle("scopes", func(req dap.RequestMessage) dap.ResponseMessage {
			resp := &dap.ScopesResponse{}
			resp.Success = true
			resp.Body.Scopes = []dap.Scope{
				{Name: "Locals", VariablesReference: 1000},
				{Name: "Globals", VariablesReference: 1001},
			}
			return resp
		})
	})
	threads, err := h.target.Threads()
	require.NoError(t, err)
	top, err := threads[0].TopStackFrame()
	require.NoError(t, err)

	scopes, err := top.Variables()
	require.NoError(t, err)
	require.Len(t, scopes, 2)

	assert.Equal(t, 77, h.adapter.Requests("scopes")[0].(*dap.ScopesRequest).Arguments.FrameId)
	assert.Equal(t, "Locals", scopes[0].Name())
	assert.Equal(t, 1000, scopes[0].Reference())
	assert.True(t, scopes[0].HasVariables())
	assert.Same(t, h.target, scopes[1].Target())
}

func TestValueChildrenAreNeverCached(t *testing.T) {
	h := mustStart(t, func(a *daptest.Adapter) {
		a.Handle("variables", variables(
			dap.Variable{Name: "x", Value: "1"},
			dap.Variable{Name: "items", Value: "[3 items]", VariablesReference: 12},
		))
	})
	root := h.target.Value(1000, "Locals", "")

	first, err := root.Variables()
	require.NoError(t, err)
	second, err := root.Variables()
	require.NoError(t, err)

	reqs := h.adapter.Requests("variables")
	require.Len(t, reqs, 2)
	assert.Equal(t, 1000, reqs[0].(*dap.VariablesRequest).Arguments.VariablesReference)

	require.Len(t, first, 2)
	assert.NotSame(t, first[0], second[0])
	assert.Equal(t, "x", first[0].Name())
	assert.Equal(t, "1", first[0].String())
	assert.False(t, first[0].HasVariables())
	assert.True(t, first[1].HasVariables())
	assert.True(t, first[1].IsAllocated())
}

func TestLeafValueSendsNoRequest(t *testing.T) {
	h := mustStart(t, nil)
	leaf := h.target.Value(0, "x", "1")

	children, err := leaf.Variables()
	require.NoError(t, err)
	assert.Empty(t, children)
	assert.Empty(t, h.adapter.Requests("variables"))
	assert.True(t, leaf.IsAllocated())
}

func TestValueRequestFailure(t *testing.T) {
	h := mustStart(t, func(a *daptest.Adapter) {
		a.Handle("variables", daptest.Reject("invalid reference"))
	})

	_, err := h.target.Value(5, "stale", "").Variables()
	assert.ErrorContains(t, err, "invalid reference")
}
