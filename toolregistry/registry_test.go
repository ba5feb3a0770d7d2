package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/message"
)

func TestNew_SeedsBuiltins(t *testing.T) {
	r := New()
	names := make(map[string]bool)
	for _, tool := range r.List() {
		names[tool.Name] = true
	}
	assert.True(t, names["current_date"])
	assert.True(t, names["introspect"])
}

func TestExecute_CurrentDate(t *testing.T) {
	r := New()
	out, err := r.Execute(context.Background(), "current_date", message.NewParamMap())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRegister_DuplicateNameFails(t *testing.T) {
	r := New()
	schema := map[string]any{"type": "object"}
	handler := func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil }

	require.NoError(t, r.Register("echo", "echoes", schema, handler, ""))
	err := r.Register("echo", "echoes again", schema, handler, "")
	require.Error(t, err)
	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
}

func TestExecute_UnknownToolFails(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), "does_not_exist", message.NewParamMap())
	require.Error(t, err)
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
}

func TestExecute_ValidatesAgainstSchema(t *testing.T) {
	r := New()
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"n": map[string]any{"type": "integer"}},
		"required":   []any{"n"},
	}
	handler := func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	}
	require.NoError(t, r.Register("needs_n", "requires n", schema, handler, ""))

	_, err := r.Execute(context.Background(), "needs_n", message.NewParamMap())
	require.Error(t, err)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)

	_, err = r.Execute(context.Background(), "needs_n", message.NewParamMap(message.Pair{Key: "n", Value: int64(3)}))
	require.NoError(t, err)
}
