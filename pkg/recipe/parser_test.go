package recipe

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

func writeRecipe(t *testing.T, content string) (string, string) {
	t.Helper()

	root := t.TempDir()
	recipePath := filepath.Join(root, "spkg.star")
	require.NoError(t, ioutil.WriteFile(recipePath, []byte(content), 0660))
	return recipePath, root
}

const sampleRecipe = `
jpeg = option("jpeg", default="no", help="enable jpeg support")
setenv("WANT_JPEG", jpeg)

package(
    name = "pillow",
    version = "7.2.0",
    desc = "Python Imaging Library fork",
    cleanup = ["lib/python*/site-packages/PIL"],
)

def configure():
    build = task(
        short = "build",
        desc = "compile the extension modules",
        base = "//sub",
        cmds = ["echo building"],
    )

    task(
        short = "install",
        desc = "install into the prefix",
        deps = ["build"],
        cmds = [
            ("cp", "-r", "a dir", "dest"),
            build,
        ],
    )
`

func TestParseCollectsPackageAndTasks(t *testing.T) {
	recipePath, root := writeRecipe(t, sampleRecipe)

	rcp, err := Parse(testContext(), recipePath, root, ParseOptions{
		Exports:   map[string]string{"SAGE_LOCAL": "/opt/sage"},
		Prefix:    "/opt/sage",
		Configure: true,
	})
	require.NoError(t, err)

	require.NotNil(t, rcp.Package)
	assert.Equal(t, "pillow", rcp.Package.Name)
	assert.Equal(t, "7.2.0", rcp.Package.Version)
	assert.Equal(t, []string{"lib/python*/site-packages/PIL"}, rcp.Package.Cleanup)

	require.Contains(t, rcp.Tasks, "build")
	require.Contains(t, rcp.Tasks, "install")

	build := rcp.Tasks["build"]
	assert.Equal(t, filepath.Join(root, "sub"), build.Base)
	assert.Equal(t, "/opt/sage", build.Env["SAGE_LOCAL"])
	assert.Equal(t, "no", build.Env["WANT_JPEG"])

	install := rcp.Tasks["install"]
	assert.Equal(t, []string{"build"}, install.Deps)
	require.Len(t, install.Cmds, 2)

	script, ok := install.Cmds[0].(TaskCmdScript)
	require.True(t, ok)
	assert.Contains(t, script.Content, "'a dir'", "arguments with spaces have to be quoted")

	ref, ok := install.Cmds[1].(TaskCmdTaskRef)
	require.True(t, ok)
	assert.Equal(t, build, ref.Task)
}

func TestParseOptionOverride(t *testing.T) {
	recipePath, root := writeRecipe(t, sampleRecipe)

	rcp, err := Parse(testContext(), recipePath, root, ParseOptions{
		Options:   map[string]string{"jpeg": "yes"},
		Configure: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "yes", rcp.Tasks["build"].Env["WANT_JPEG"])
	require.Contains(t, rcp.Options, "jpeg")
	assert.Equal(t, "no", rcp.Options["jpeg"].Default())
	assert.Equal(t, "enable jpeg support", rcp.Options["jpeg"].Help)
}

func TestParseWithoutConfigure(t *testing.T) {
	recipePath, root := writeRecipe(t, sampleRecipe)

	rcp, err := Parse(testContext(), recipePath, root, ParseOptions{})
	require.NoError(t, err)

	assert.Empty(t, rcp.Tasks)
	assert.Equal(t, "pillow", rcp.Package.Name)
}

func TestParseRequiresPackage(t *testing.T) {
	recipePath, root := writeRecipe(t, `
def configure():
    pass
`)

	_, err := Parse(testContext(), recipePath, root, ParseOptions{Configure: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not call package()")
}

func TestParseRequiresConfigure(t *testing.T) {
	recipePath, root := writeRecipe(t, `package(name="pillow", version="7.2.0")`)

	_, err := Parse(testContext(), recipePath, root, ParseOptions{Configure: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure")
}

func TestParseRejectsReservedTaskName(t *testing.T) {
	recipePath, root := writeRecipe(t, `
package(name="pillow", version="7.2.0")

def configure():
    task(short="configure", cmds=["echo nope"])
`)

	_, err := Parse(testContext(), recipePath, root, ParseOptions{Configure: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestParseRejectsSecondPackage(t *testing.T) {
	recipePath, root := writeRecipe(t, `
package(name="pillow", version="7.2.0")
package(name="numpy", version="1.19.1")

def configure():
    pass
`)

	_, err := Parse(testContext(), recipePath, root, ParseOptions{Configure: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already called")
}

func TestParseAnonymousTasksAreHidden(t *testing.T) {
	recipePath, root := writeRecipe(t, `
package(name="pillow", version="7.2.0")

setenv("WANT_JPEG", "no")

def configure():
    helper = task(cmds=["echo helper"])
    task(short="install", cmds=[helper])
`)

	rcp, err := Parse(testContext(), recipePath, root, ParseOptions{
		Exports:   map[string]string{"SAGE_DESTDIR_LOCAL": "/staging/opt/sage"},
		Configure: true,
	})
	require.NoError(t, err)

	require.Len(t, rcp.Tasks, 1)
	require.Contains(t, rcp.Tasks, "install")

	ref, ok := rcp.Tasks["install"].Cmds[0].(TaskCmdTaskRef)
	require.True(t, ok)
	assert.True(t, ref.Task.Hidden)
	assert.Contains(t, ref.Task.Short, "auto#")

	// hidden sub-tasks run with the same exports and overrides as visible ones
	assert.Equal(t, "/staging/opt/sage", ref.Task.Env["SAGE_DESTDIR_LOCAL"])
	assert.Equal(t, "no", ref.Task.Env["WANT_JPEG"])
	assert.Equal(t, "/staging/opt/sage", rcp.Tasks["install"].Env["SAGE_DESTDIR_LOCAL"])
}

func TestParseFilesystemBuiltins(t *testing.T) {
	recipePath, root := writeRecipe(t, `
package(name="pillow", version="7.2.0")

setenv("HAS_RECIPE", "yes" if isfile("//spkg.star") else "no")
setenv("HAS_SOURCES", "yes" if isdir("//does-not-exist") else "no")

def configure():
    task(short="install", cmds=["echo ok"])
`)

	rcp, err := Parse(testContext(), recipePath, root, ParseOptions{Configure: true})
	require.NoError(t, err)

	install := rcp.Tasks["install"]
	assert.Equal(t, "yes", install.Env["HAS_RECIPE"])
	assert.Equal(t, "no", install.Env["HAS_SOURCES"])
}
