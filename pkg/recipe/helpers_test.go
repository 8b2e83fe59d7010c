package recipe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func testScriptCtx(root string) *scriptCtx {
	return &scriptCtx{
		filepath:    filepath.Join(root, "spkg.star"),
		packageRoot: root,
	}
}

func TestNormalizePath(t *testing.T) {
	root := filepath.Join("/tmp", "pillow")
	ctx := testScriptCtx(root)

	assert.Equal(t, filepath.Join(root, "src"), normalizePath(ctx, "src"))
	assert.Equal(t, filepath.Join(root, "src", "Tests"), normalizePath(ctx, "src", "Tests"))
	assert.Equal(t, filepath.Join(root, "src"), normalizePath(ctx, "//src"))
	assert.Equal(t, root, normalizePath(ctx))

	// a package-root anchor resets whatever came before it
	assert.Equal(t, filepath.Join(root, "patches"), normalizePath(ctx, "src", "//patches"))
}

func TestSimplifyPath(t *testing.T) {
	root := t.TempDir()
	ctx := testScriptCtx(root)

	assert.Equal(t, "//spkg.star", simplifyPath(ctx, filepath.Join(root, "spkg.star")))
	assert.Equal(t, "/somewhere/else", simplifyPath(ctx, "/somewhere/else"))
}

func TestStringListArg(t *testing.T) {
	list := starlark.NewList([]starlark.Value{
		starlark.String("a"),
		starlark.String("b"),
	})

	result, err := stringListArg(list, "deps")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result)

	result, err = stringListArg(nil, "deps")
	require.NoError(t, err)
	assert.Empty(t, result)

	mixed := starlark.NewList([]starlark.Value{
		starlark.String("a"),
		starlark.MakeInt(1),
	})
	_, err = stringListArg(mixed, "deps")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deps")
}

func TestConvertToStarlark(t *testing.T) {
	value, err := convertToStarlark(map[string]interface{}{
		"name":    "pillow",
		"patches": []interface{}{"one.patch", "two.patch"},
		"count":   2,
		"stable":  true,
	})
	require.NoError(t, err)

	dict, ok := value.(*starlark.Dict)
	require.True(t, ok)

	name, found, err := dict.Get(starlark.String("name"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, starlark.String("pillow"), name)

	patches, found, err := dict.Get(starlark.String("patches"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, patches.(starlark.Tuple).Len())

	_, err = convertToStarlark(struct{}{})
	require.Error(t, err)
}
