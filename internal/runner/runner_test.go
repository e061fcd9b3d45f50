package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/berkgaut/mnb/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, entryFile string) *Runner {
	t.Helper()
	root := t.TempDir()
	cfg := &config.AppConfig{
		WorkingRoot: root,
		UserConfig:  &config.UserConfig{EntryFile: entryFile},
	}
	log := logrus.New().WithField("test", true)
	return New(cfg, log)
}

// TestInitWritesEmptyEntryDocumentAndLauncher covers the `init`
// subcommand.
func TestInitWritesEmptyEntryDocumentAndLauncher(t *testing.T) {
	r := newTestRunner(t, "mnb.json")

	require.NoError(t, r.Init())

	entryPath := filepath.Join(r.Cfg.WorkingRoot, "mnb.json")
	content, err := os.ReadFile(entryPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"spec_version":"1.0","actions":[]}`, string(content))

	scriptPath := filepath.Join(r.Cfg.WorkingRoot, "mnb-run.sh")
	info, err := os.Stat(scriptPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111, "launcher script must be executable")
}

// TestInitDoesNotOverwriteExistingEntryDocument ensures init is
// idempotent for an already-initialized working root.
func TestInitDoesNotOverwriteExistingEntryDocument(t *testing.T) {
	r := newTestRunner(t, "mnb.json")
	entryPath := filepath.Join(r.Cfg.WorkingRoot, "mnb.json")
	custom := `{"spec_version":"1.0","description":"kept","actions":[]}`
	require.NoError(t, os.WriteFile(entryPath, []byte(custom), 0o644))

	require.NoError(t, r.Init())

	content, err := os.ReadFile(entryPath)
	require.NoError(t, err)
	assert.JSONEq(t, custom, string(content))
}

// TestScriptsRendersLauncherOnly verifies `scripts` touches only the
// launcher, leaving any entry document untouched.
func TestScriptsRendersLauncherOnly(t *testing.T) {
	r := newTestRunner(t, "mnb.json")

	require.NoError(t, r.Scripts())

	scriptPath := filepath.Join(r.Cfg.WorkingRoot, "mnb-run.sh")
	content, err := os.ReadFile(scriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "exec mnb --rootabspath")

	_, err = os.Stat(filepath.Join(r.Cfg.WorkingRoot, "mnb.json"))
	assert.True(t, os.IsNotExist(err))
}

// TestUpdateFailsWhenGeneratorProducesNoStdout exercises the stage-1
// to stage-2 handoff in runStageBytes/Update without requiring a
// reachable container runtime: an entry document with zero actions
// runs to completion but yields no generator stdout, which Update
// must reject with a clear error rather than silently no-op'ing
// stage 2.
func TestUpdateFailsWhenGeneratorProducesNoStdout(t *testing.T) {
	r := newTestRunner(t, "mnb.json")
	entryPath := filepath.Join(r.Cfg.WorkingRoot, "mnb.json")
	require.NoError(t, os.WriteFile(entryPath, []byte(`{"spec_version":"1.0","actions":[]}`), 0o644))

	err := r.Update(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced no stdout")
}
