package recipe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "spkg.cache")

	rcp := &Recipe{
		Package: &Package{
			Name:    "pillow",
			Version: "7.2.0",
			Cleanup: []string{"lib/python*/site-packages/PIL"},
		},
		Tasks: TaskList{
			"install": {
				Short: "install",
				Base:  "/tmp/pillow/src",
				Env:   map[string]string{"SAGE_LOCAL": "/opt/sage"},
				Cmds: []TaskCmd{
					TaskCmdScript{TaskName: "install", Content: "echo install"},
				},
			},
		},
	}
	options := map[string]string{"jpeg": "no"}

	require.NoError(t, WriteCache(cachePath, options, rcp))

	cachedOptions, cached, err := ReadCache(cachePath)
	require.NoError(t, err)
	assert.Equal(t, options, cachedOptions)
	assert.Equal(t, rcp.Package, cached.Package)
	require.Contains(t, cached.Tasks, "install")
	assert.Equal(t, rcp.Tasks["install"].Cmds, cached.Tasks["install"].Cmds)
	assert.Equal(t, "/opt/sage", cached.Tasks["install"].Env["SAGE_LOCAL"])
}

func TestReadCacheMissing(t *testing.T) {
	_, _, err := ReadCache(filepath.Join(t.TempDir(), "missing.cache"))
	require.Error(t, err)
}

func TestCacheValid(t *testing.T) {
	assert.True(t, CacheValid(nil, nil))
	assert.True(t, CacheValid(map[string]string{}, nil))
	assert.True(t, CacheValid(map[string]string{"a": "1"}, map[string]string{"a": "1"}))
	assert.False(t, CacheValid(map[string]string{"a": "1"}, map[string]string{"a": "2"}))
	assert.False(t, CacheValid(map[string]string{}, map[string]string{"a": "1"}))
	assert.False(t, CacheValid(map[string]string{"a": "1"}, nil))
}
