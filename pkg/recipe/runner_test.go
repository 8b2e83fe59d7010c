package recipe

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptTask(short, base string, cmds ...string) *Task {
	task := &Task{
		Short: short,
		Base:  base,
		Env:   map[string]string{},
		Cmds:  make([]TaskCmd, 0, len(cmds)),
	}

	for idx, cmd := range cmds {
		task.Cmds = append(task.Cmds, TaskCmdScript{TaskName: short, Content: cmd, Index: idx})
	}

	return task
}

func TestRunTaskExecutesCommands(t *testing.T) {
	base := t.TempDir()
	task := scriptTask("install", base, "echo done > out.txt")
	tasks := TaskList{"install": task}

	err := RunTask(testContext(), base, "install", tasks, false, false)
	require.NoError(t, err)

	content, err := ioutil.ReadFile(filepath.Join(base, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(content))
}

func TestRunTaskFailsFast(t *testing.T) {
	base := t.TempDir()
	task := scriptTask("check", base,
		"echo first > first.txt",
		"exit 1",
		"echo second > second.txt",
	)
	tasks := TaskList{"check": task}

	err := RunTask(testContext(), base, "check", tasks, false, false)
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(base, "first.txt"))
	assert.NoError(t, err, "commands before the failure have to run")

	_, err = os.Stat(filepath.Join(base, "second.txt"))
	assert.True(t, os.IsNotExist(err), "commands after the failure must not run")
}

func TestRunTaskRunsDepsFirst(t *testing.T) {
	base := t.TempDir()
	dep := scriptTask("build", base, "echo build > order.txt")
	main := scriptTask("install", base, "echo install >> order.txt")
	main.Deps = []string{"build"}
	tasks := TaskList{"build": dep, "install": main}

	err := RunTask(testContext(), base, "install", tasks, false, false)
	require.NoError(t, err)

	content, err := ioutil.ReadFile(filepath.Join(base, "order.txt"))
	require.NoError(t, err)
	assert.Equal(t, "build\ninstall\n", string(content))
}

func TestRunTaskDetectsRecursion(t *testing.T) {
	base := t.TempDir()
	a := scriptTask("a", base, "echo a")
	b := scriptTask("b", base, "echo b")
	a.Deps = []string{"b"}
	b.Deps = []string{"a"}
	tasks := TaskList{"a": a, "b": b}

	err := RunTask(testContext(), base, "a", tasks, false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursively")
}

func TestRunTaskMissing(t *testing.T) {
	err := RunTask(testContext(), t.TempDir(), "nope", TaskList{}, false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunTaskSkipIfExists(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(base, "marker.txt"), []byte("x"), 0660))

	task := scriptTask("install", base, "echo ran > out.txt")
	task.SkipIfExists = []string{"marker.txt"}
	tasks := TaskList{"install": task}

	err := RunTask(testContext(), base, "install", tasks, false, false)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "out.txt"))
	assert.True(t, os.IsNotExist(err), "task should have been skipped")
}

func TestRunTaskForceOverridesSkip(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(base, "marker.txt"), []byte("x"), 0660))

	task := scriptTask("install", base, "echo ran > out.txt")
	task.SkipIfExists = []string{"marker.txt"}
	tasks := TaskList{"install": task}

	err := RunTask(testContext(), base, "install", tasks, false, true)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "out.txt"))
	assert.NoError(t, err)
}

func TestRunTaskFreshOutputs(t *testing.T) {
	base := t.TempDir()
	input := filepath.Join(base, "input.txt")
	output := filepath.Join(base, "output.txt")
	require.NoError(t, ioutil.WriteFile(input, []byte("in"), 0660))
	require.NoError(t, ioutil.WriteFile(output, []byte("out"), 0660))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(input, old, old))

	task := scriptTask("build", base, "echo ran > marker.txt")
	task.Inputs = []string{"input.txt"}
	task.Outputs = []string{"output.txt"}
	tasks := TaskList{"build": task}

	err := RunTask(testContext(), base, "build", tasks, false, false)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "marker.txt"))
	assert.True(t, os.IsNotExist(err), "task should be skipped while its output is fresh")
}

func TestRunTaskStaleOutputs(t *testing.T) {
	base := t.TempDir()
	input := filepath.Join(base, "input.txt")
	output := filepath.Join(base, "output.txt")
	require.NoError(t, ioutil.WriteFile(input, []byte("in"), 0660))
	require.NoError(t, ioutil.WriteFile(output, []byte("out"), 0660))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(output, old, old))

	task := scriptTask("build", base, "echo ran > marker.txt")
	task.Inputs = []string{"input.txt"}
	task.Outputs = []string{"output.txt"}
	tasks := TaskList{"build": task}

	err := RunTask(testContext(), base, "build", tasks, false, false)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "marker.txt"))
	assert.NoError(t, err, "task has to run when its input is newer")
}

func TestRunTaskDryRun(t *testing.T) {
	base := t.TempDir()
	task := scriptTask("install", base, "echo ran > out.txt")
	tasks := TaskList{"install": task}

	err := RunTask(testContext(), base, "install", tasks, true, false)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "out.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunTaskSubTask(t *testing.T) {
	base := t.TempDir()
	helper := scriptTask("auto#helper", base, "echo helper > helper.txt")
	helper.Hidden = true

	main := scriptTask("install", base, "echo main > main.txt")
	main.Cmds = append(main.Cmds, TaskCmdTaskRef{Task: helper})
	tasks := TaskList{"install": main}

	err := RunTask(testContext(), base, "install", tasks, false, false)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "helper.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(base, "main.txt"))
	assert.NoError(t, err)
}

func TestRunTaskEnv(t *testing.T) {
	base := t.TempDir()
	task := scriptTask("install", base, `echo "$SAGE_LOCAL" > prefix.txt`)
	task.Env["SAGE_LOCAL"] = "/opt/sage"
	tasks := TaskList{"install": task}

	err := RunTask(testContext(), base, "install", tasks, false, false)
	require.NoError(t, err)

	content, err := ioutil.ReadFile(filepath.Join(base, "prefix.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/sage\n", string(content))
}
