package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCoercesArgumentTypes(t *testing.T) {
	reg := NewRegistry()
	var got map[string]any
	require.NoError(t, reg.Register(Tool{
		Name: "configure",
		Params: []Param{
			{Name: "minutes", Type: ParamNumber, Required: true},
			{Name: "strict", Type: ParamBoolean, Required: true},
			{Name: "mode", Type: ParamEnum, Enum: []string{"soft", "hard"}, Required: true},
			{Name: "label", Type: ParamString},
		},
		Handler: func(ctx context.Context, args map[string]any, state any) (HandlerResult, error) {
			got = args
			return HandlerResult{Data: map[string]any{"applied": true}, UserText: "Settings applied."}, nil
		},
	}))
	exec := NewExecutor(reg)

	res, err := exec.Execute(context.Background(), &ParsedToolCall{
		Name: "configure",
		Args: map[string]string{"minutes": "25", "strict": "true", "mode": "hard", "label": "deep work"},
	}, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, float64(25), got["minutes"])
	assert.Equal(t, true, got["strict"])
	assert.Equal(t, "hard", got["mode"])
	assert.Equal(t, "deep work", got["label"])
	assert.Equal(t, "Settings applied.", res.UserText)
	assert.Equal(t, "configure", res.ToolName)

	var modelPayload struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.ModelText), &modelPayload))
	assert.True(t, modelPayload.Success)
	assert.Equal(t, true, modelPayload.Data["applied"])
}

func TestExecuteRejectsMistypedArgument(t *testing.T) {
	reg := testRegistry(t)
	exec := NewExecutor(reg)

	_, err := exec.Execute(context.Background(), &ParsedToolCall{
		Name: "start_session",
		Args: map[string]string{"duration": "twenty-five"},
	}, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidToolInput(err))
}

func TestExecuteUnknownTool(t *testing.T) {
	exec := NewExecutor(testRegistry(t))

	_, err := exec.Execute(context.Background(), &ParsedToolCall{Name: "nope"}, nil)
	require.Error(t, err)
	assert.True(t, IsNoSuchTool(err))
}

func TestExecuteHandlerFailureIsNotAnError(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "stop_session",
		Handler: func(ctx context.Context, args map[string]any, state any) (HandlerResult, error) {
			return HandlerResult{}, errors.New("no active session")
		},
	}))
	exec := NewExecutor(reg)

	res, err := exec.Execute(context.Background(), &ParsedToolCall{Name: "stop_session", Args: map[string]string{}}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.ModelText, "no active session")
	assert.Contains(t, res.UserText, "stop_session failed")
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "explode",
		Handler: func(ctx context.Context, args map[string]any, state any) (HandlerResult, error) {
			panic("boom")
		},
	}))
	exec := NewExecutor(reg)

	_, err := exec.Execute(context.Background(), &ParsedToolCall{Name: "explode", Args: map[string]string{}}, nil)
	require.Error(t, err)
	assert.False(t, IsInvalidToolInput(err))
	assert.False(t, IsNoSuchTool(err))
	assert.Contains(t, err.Error(), "panicked")
}

func TestExecutePassesState(t *testing.T) {
	type appState struct{ sessions int }
	st := &appState{}

	reg := NewRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "start_session",
		Handler: func(ctx context.Context, args map[string]any, state any) (HandlerResult, error) {
			state.(*appState).sessions++
			return HandlerResult{UserText: "Session started."}, nil
		},
	}))
	exec := NewExecutor(reg)

	res, err := exec.Execute(context.Background(), &ParsedToolCall{Name: "start_session", Args: map[string]string{}}, st)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, st.sessions)
}
