package executor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/berkgaut/mnb/internal/config"
	"github.com/berkgaut/mnb/internal/spec"
	"github.com/berkgaut/mnb/internal/specerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	return &Executor{WorkingRoot: root}, root
}

// TestPartitionSeparatesInputsAndOutputs covers mounts, stdin sources,
// environment assignments, and the three output kinds.
func TestPartitionSeparatesInputsAndOutputs(t *testing.T) {
	e, root := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "env.txt"), []byte("hello"), 0o644))

	a := &spec.Exec{
		ImageName: "bash:5.2",
		Inputs: []spec.Input{
			{Value: spec.File("a.txt"), Through: spec.ThroughFileAt("in/a.txt")},
			{Value: spec.Dir("b"), Through: spec.ThroughDirAt("in/b")},
			{Value: spec.File("env.txt"), Through: spec.ThroughEnvironmentNamed("X")},
			{Value: spec.File("stdin.txt"), Through: spec.ThroughStdinValue()},
		},
		Outputs: []spec.Output{
			{Value: spec.File("out.txt"), Through: spec.ThroughFileAt("out.txt")},
			{Value: spec.File("stdout.txt"), Through: spec.ThroughStdoutValue()},
			{Value: spec.File("stderr.txt"), Through: spec.ThroughStderrValue()},
		},
	}

	p, err := e.partition(a)
	require.NoError(t, err)

	assert.Len(t, p.mounts, 2)
	assert.Equal(t, "hello", p.env["X"])
	assert.Equal(t, []string{filepath.Join(root, "stdin.txt")}, p.stdinSources)
	assert.Len(t, p.fileOutputs, 1)
	assert.Len(t, p.stdoutOutputs, 1)
	assert.Len(t, p.stderrOutputs, 1)
}

// TestPartitionRejectsConflictingMounts covers the "idempotent mounts"
// testable property: two inputs sharing through.path fail loudly.
func TestPartitionRejectsConflictingMounts(t *testing.T) {
	e, _ := newTestExecutor(t)
	a := &spec.Exec{
		Inputs: []spec.Input{
			{Value: spec.File("a.txt"), Through: spec.ThroughFileAt("same")},
			{Value: spec.File("b.txt"), Through: spec.ThroughFileAt("same")},
		},
	}

	_, err := e.partition(a)
	var conflict *specerr.ConflictingMounts
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, "same", conflict.Path)
}

// TestPartitionRejectsConflictingEnvironmentAssignments covers the
// companion environment invariant.
func TestPartitionRejectsConflictingEnvironmentAssignments(t *testing.T) {
	e, root := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))

	a := &spec.Exec{
		Inputs: []spec.Input{
			{Value: spec.File("a.txt"), Through: spec.ThroughEnvironmentNamed("X")},
			{Value: spec.File("b.txt"), Through: spec.ThroughEnvironmentNamed("X")},
		},
	}

	_, err := e.partition(a)
	var conflict *specerr.ConflictingEnvironmentAssignments
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, "X", conflict.Name)
}

// TestWriteFileOutputsCopiesFromScratch exercises copying
// <scratch>/<through.path> to <host-root>/<value.path>.
func TestWriteFileOutputsCopiesFromScratch(t *testing.T) {
	e, root := newTestExecutor(t)
	scratch := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "nested", "result.bin"), []byte("payload"), 0o644))

	outputs := []spec.Output{
		{Value: spec.File("artifacts/result.bin"), Through: spec.ThroughFileAt("nested/result.bin")},
	}

	require.NoError(t, e.writeFileOutputs(scratch, outputs))

	got, err := os.ReadFile(filepath.Join(root, "artifacts/result.bin"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

// TestWriteBufferOutputsWritesStdoutAndStderr exercises the
// stdout_output/stderr_output commit rule.
func TestWriteBufferOutputsWritesStdoutAndStderr(t *testing.T) {
	e, root := newTestExecutor(t)
	stdoutOutputs := []spec.Output{
		{Value: spec.File("logs/out.txt"), Through: spec.ThroughStdoutValue()},
	}
	stderrOutputs := []spec.Output{
		{Value: spec.File("logs/err.txt"), Through: spec.ThroughStderrValue()},
	}

	require.NoError(t, e.writeBufferOutputs(stdoutOutputs, []byte("-*- Hallo -*-\n")))
	require.NoError(t, e.writeBufferOutputs(stderrOutputs, []byte("warning\n")))

	got, err := os.ReadFile(filepath.Join(root, "logs/out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-*- Hallo -*-\n", string(got))

	got, err = os.ReadFile(filepath.Join(root, "logs/err.txt"))
	require.NoError(t, err)
	assert.Equal(t, "warning\n", string(got))
}

// TestCopyInChunksHandlesShortWrites verifies the stdin sender
// advances its cursor across short writes.
func TestCopyInChunksHandlesShortWrites(t *testing.T) {
	src := bytes.NewBufferString("AAAABBBBCCCC")
	dst := &shortWriter{max: 3}
	buf := make([]byte, 4)

	err := copyInChunks(dst, src, buf)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBBCCCC", dst.buf.String())
}

// shortWriter never writes more than max bytes per call, forcing
// writeAll's cursor-advance loop to run.
type shortWriter struct {
	buf bytes.Buffer
	max int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.buf.Write(p)
}

func TestEntrypointSlice(t *testing.T) {
	assert.Nil(t, entrypointSlice(""))
	assert.Equal(t, []string{"/bin/sh"}, entrypointSlice("/bin/sh"))
}

// TestDefaultTagFallsBackWhenUnconfigured covers an Executor built
// directly (as tests do) rather than through New: an empty DefaultTag
// still resolves to "latest" rather than an empty registry tag.
func TestDefaultTagFallsBackWhenUnconfigured(t *testing.T) {
	e := &Executor{}
	assert.Equal(t, "latest", e.defaultTag())

	e.DefaultTag = "stable"
	assert.Equal(t, "stable", e.defaultTag())
}

// TestBindSourceRespectsHostPathFlavor covers the POSIX/Windows bind
// source formatting: container-side paths are always POSIX, but the
// host-side bind Source must match the configured host flavor
// regardless of the platform mnb itself is compiled for.
func TestBindSourceRespectsHostPathFlavor(t *testing.T) {
	posix := &Executor{WorkingRoot: "/home/user/proj"}
	assert.Equal(t, "/home/user/proj/in/a.txt", posix.bindSource("in/a.txt"))

	windows := &Executor{WorkingRoot: `C:\Users\user\proj`, HostPathFlavor: config.PathFlavorWindows}
	assert.Equal(t, `C:\Users\user\proj\in\a.txt`, windows.bindSource("in/a.txt"))
}
