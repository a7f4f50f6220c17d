package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titan/internal/types"
)

func okTool(name string) *Tool {
	return &Tool{
		Name:    name,
		General: true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			return "ok", nil
		},
	}
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(okTool("echo")))

	result := r.Execute(context.Background(), "echo", nil, types.Caller{UserID: "u1"})
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Data)
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(okTool("echo")))

	err := r.Register(okTool("echo"))
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)

	assert.ErrorIs(t, r.Register(&Tool{General: true}), ErrInvalidTool)
	assert.ErrorIs(t, r.Register(&Tool{Name: "x", General: true}), ErrInvalidTool)
	assert.ErrorIs(t, r.Register(okToolNoManifest("y")), ErrInvalidTool)
}

func okToolNoManifest(name string) *Tool {
	return &Tool{
		Name: name,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			return nil, nil
		},
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), "nope", nil, types.Caller{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestRegistryExecuteConvertsErrors(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name:    "boom",
		General: true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			return nil, fmt.Errorf("it broke")
		},
	})

	result := r.Execute(context.Background(), "boom", nil, types.Caller{})
	assert.False(t, result.Success)
	assert.Equal(t, "it broke", result.Error)
}

func TestRegistryExecuteRecoversPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name:    "panics",
		General: true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			panic("oh no")
		},
	})

	result := r.Execute(context.Background(), "panics", nil, types.Caller{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "failed unexpectedly")
}

func TestRegistryPrivilegedGating(t *testing.T) {
	r := NewRegistry()
	executed := false
	r.MustRegister(&Tool{
		Name:       "dangerous",
		Privileged: true,
		General:    true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			executed = true
			return "done", nil
		},
	})

	result := r.Execute(context.Background(), "dangerous", nil, types.Caller{UserID: "u1"})
	assert.False(t, result.Success)
	assert.False(t, executed)
	assert.Contains(t, result.Error, "permission denied")

	result = r.Execute(context.Background(), "dangerous", nil, types.Caller{UserID: "admin", Privileged: true})
	assert.True(t, result.Success)
	assert.True(t, executed)

	assert.True(t, r.IsPrivileged("dangerous"))
	assert.False(t, r.IsPrivileged("missing"))
}

func TestRegistryDefinitionsByIntent(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{Name: "both", SelfBuild: true, General: true, Execute: nop})
	r.MustRegister(&Tool{Name: "general_only", General: true, Execute: nop})
	r.MustRegister(&Tool{Name: "self_only", SelfBuild: true, Execute: nop})

	names := func(defs []types.ToolDefinition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"both", "self_only"}, names(r.Definitions(types.IntentSelfBuild)))
	assert.Equal(t, []string{"both", "general_only"}, names(r.Definitions(types.IntentGeneral)))
	assert.Equal(t, []string{"both", "general_only"}, names(r.Definitions(types.IntentExternalBuild)))
}

func nop(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
	return nil, nil
}

func TestRegistryContentToolFlag(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{Name: "reader", ContentTool: true, General: true, Execute: nop})
	r.MustRegister(&Tool{Name: "doer", General: true, Execute: nop})

	assert.True(t, r.IsContentTool("reader"))
	assert.False(t, r.IsContentTool("doer"))
	assert.False(t, r.IsContentTool("missing"))
}
