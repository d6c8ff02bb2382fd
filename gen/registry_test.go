package gen_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/gen"
)

func TestRegistryBuiltins(t *testing.T) {
	r := gen.NewRegistry()
	for _, name := range []string{"cuid", "uuid", "uuidv7", "ulid", "now"} {
		fn, ok := r.Get(name)
		require.True(t, ok, "expected builtin %q to be registered", name)
		v, err := fn(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, v)
	}

	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestRegistryNanoid(t *testing.T) {
	r := gen.NewRegistry()
	r.Nanoid("shortId", 8)

	fn, ok := r.Get("shortId")
	require.True(t, ok)

	v, err := fn(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.(string), 8)
}

func TestCUIDShape(t *testing.T) {
	v, err := gen.CUID(context.Background())
	require.NoError(t, err)
	id := v.(string)
	assert.True(t, len(id) > 1)
	assert.Equal(t, byte('c'), id[0])
}

func TestNanoidRejectsNonPositiveSize(t *testing.T) {
	_, err := gen.NanoID(0)
	assert.Error(t, err)
}

func TestResolveAuthDefault(t *testing.T) {
	auth := map[string]any{
		"id":  "u1",
		"org": map[string]any{"id": "o1"},
	}

	assert.Equal(t, "u1", gen.ResolveAuthDefault(auth, "id"))
	assert.Equal(t, "o1", gen.ResolveAuthDefault(auth, "org.id"))
	assert.Nil(t, gen.ResolveAuthDefault(auth, "org.missing"))
	assert.Nil(t, gen.ResolveAuthDefault(auth, "missing.id"))
}

func TestRequireAuthDefault(t *testing.T) {
	auth := map[string]any{"id": "u1"}

	v, err := gen.RequireAuthDefault(auth, "id")
	require.NoError(t, err)
	assert.Equal(t, "u1", v)

	_, err = gen.RequireAuthDefault(auth, "missing")
	assert.Error(t, err)
}
