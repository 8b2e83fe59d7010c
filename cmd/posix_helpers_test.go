package cmd

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHelper(t *testing.T, args ...string) error {
	t.Helper()

	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
	})
	return rootCmd.Execute()
}

func writeHelperFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, ioutil.WriteFile(path, []byte("x"), os.FileMode(0660)))
}

func TestMvCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	writeHelperFile(t, src)

	// rename to a new name
	require.NoError(t, runHelper(t, "mv", src, filepath.Join(dir, "b")))
	assert.NoFileExists(t, src)
	assert.FileExists(t, filepath.Join(dir, "b"))

	// move into an existing directory
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, os.FileMode(0770)))
	require.NoError(t, runHelper(t, "mv", filepath.Join(dir, "b"), sub))
	assert.FileExists(t, filepath.Join(sub, "b"))

	// multiple sources need a directory destination
	writeHelperFile(t, filepath.Join(dir, "c"))
	writeHelperFile(t, filepath.Join(dir, "d"))
	err := runHelper(t, "mv", filepath.Join(dir, "c"), filepath.Join(dir, "d"), filepath.Join(dir, "nodir"))
	require.Error(t, err)

	require.NoError(t, runHelper(t, "mv", filepath.Join(dir, "c"), filepath.Join(dir, "d"), sub))
	assert.FileExists(t, filepath.Join(sub, "c"))
	assert.FileExists(t, filepath.Join(sub, "d"))
}

func TestRmCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a")
	writeHelperFile(t, file)

	require.NoError(t, runHelper(t, "rm", file))
	assert.NoFileExists(t, file)

	// directories need -r
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, os.FileMode(0770)))
	require.Error(t, runHelper(t, "rm", sub))
	require.NoError(t, runHelper(t, "rm", "-r", sub))
	assert.NoDirExists(t, sub)

	// missing files only pass with -f
	require.Error(t, runHelper(t, "rm", filepath.Join(dir, "missing")))
	require.NoError(t, runHelper(t, "rm", "-f", filepath.Join(dir, "missing")))
}

func TestMkdirCommand(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, runHelper(t, "mkdir", filepath.Join(dir, "one")))
	assert.DirExists(t, filepath.Join(dir, "one"))

	nested := filepath.Join(dir, "two", "three")
	require.Error(t, runHelper(t, "mkdir", nested))
	require.NoError(t, runHelper(t, "mkdir", "-p", nested))
	assert.DirExists(t, nested)
}
