package tools

import (
	"context"
	"errors"
	"fmt"

	"titan/internal/store"
	"titan/internal/types"
)

// RegisterCredentialTools adds the credential CRUD tools backed by the
// store. Values never appear in list output; delete_credential is
// privileged-gated.
func RegisterCredentialTools(r *Registry, st *store.SQLiteStore) {
	r.MustRegister(&Tool{
		Name:        "list_credentials",
		Description: "List the user's stored credential names. Values are never returned.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		SelfBuild: true,
		General:   true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			creds, err := st.ListCredentials(ctx, caller.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to list credentials: %w", err)
			}
			names := make([]string, 0, len(creds))
			for _, c := range creds {
				names = append(names, c.Name)
			}
			return map[string]any{"credentials": names, "count": len(names)}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "create_credential",
		Description: "Store a named credential for the user.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":  map[string]any{"type": "string", "description": "Unique credential name"},
				"value": map[string]any{"type": "string", "description": "The secret value"},
			},
			"required": []string{"name", "value"},
		},
		General: true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			name, err := stringArg(args, "name")
			if err != nil {
				return nil, err
			}
			value, err := stringArg(args, "value")
			if err != nil {
				return nil, err
			}
			if _, err := st.CreateCredential(ctx, caller.UserID, name, value); err != nil {
				return nil, err
			}
			return map[string]any{"name": name, "created": true}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "delete_credential",
		Description: "Delete a stored credential by name. Destructive.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string", "description": "Credential name to delete"},
			},
			"required": []string{"name"},
		},
		Privileged: true,
		General:    true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			name, err := stringArg(args, "name")
			if err != nil {
				return nil, err
			}
			if err := st.DeleteCredential(ctx, caller.UserID, name); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("no credential named %q", name)
				}
				return nil, err
			}
			return map[string]any{"name": name, "deleted": true}, nil
		},
	})
}
