package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/triago/pkg/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTool is a minimal tool for registry tests.
type fakeTool struct {
	name string
}

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Description() string { return "fake" }
func (f fakeTool) Invoke(context.Context, map[string]any) (any, error) {
	return "ok", nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeTool{name: "a"}))
	require.NoError(t, r.Register(fakeTool{name: "b"}))

	tool, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", tool.Name())

	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeTool{name: "a"}))

	err := r.Register(fakeTool{name: "a"})
	require.Error(t, err)
	terr, ok := err.(*schema.TriagoError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, terr.Code)
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("missing")
	require.Error(t, err)
	terr, ok := err.(*schema.TriagoError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, terr.Code)
}

func TestRegistry_NilAndUnnamedRejected(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(fakeTool{name: ""}))
}

func TestStringSliceParam(t *testing.T) {
	args := map[string]any{
		"typed":   []string{"a", "b"},
		"decoded": []any{"c", 7, "d"},
		"wrong":   "not a slice",
	}

	assert.Equal(t, []string{"a", "b"}, stringSliceParam(args, "typed"))
	assert.Equal(t, []string{"c", "d"}, stringSliceParam(args, "decoded"))
	assert.Nil(t, stringSliceParam(args, "wrong"))
	assert.Nil(t, stringSliceParam(args, "absent"))
}
