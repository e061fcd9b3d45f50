// Package runner drives the two-stage build pipeline: locate the entry
// document, execute it as stage 1, re-parse its last action's stdout
// as stage 2, execute that too. Grounded on lazydocker's main.go
// bootstrap sequence (config -> log -> gui.NewGui -> Run), here
// narrowed to "config -> log -> runtime -> planner/executor, twice."
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/berkgaut/mnb/internal/codec"
	"github.com/berkgaut/mnb/internal/config"
	"github.com/berkgaut/mnb/internal/executor"
	"github.com/berkgaut/mnb/internal/planner"
	"github.com/berkgaut/mnb/internal/runtime"
	"github.com/sirupsen/logrus"
)

// Runner owns one mnb invocation's configuration and logger, and
// dispatches to the `update`, `init`, and `scripts` subcommands.
type Runner struct {
	Cfg *config.AppConfig
	Log *logrus.Entry
}

// New builds a Runner from a resolved AppConfig and logger entry.
func New(cfg *config.AppConfig, log *logrus.Entry) *Runner {
	return &Runner{Cfg: cfg, Log: log}
}

// Update runs the full two-stage pipeline: stage 1 parses and executes
// the entry document; its last action's stdout is parsed and executed
// as stage 2.
func (r *Runner) Update(ctx context.Context) error {
	rt, err := runtime.New(r.Log)
	if err != nil {
		return fmt.Errorf("connect to container runtime: %w", err)
	}
	defer rt.Close()

	exec := executor.New(rt, r.Log, r.Cfg.WorkingRoot, r.Cfg.HostPathFlavor, r.Cfg.UserConfig.DefaultRegistryTag)

	entryPath := filepath.Join(r.Cfg.WorkingRoot, r.Cfg.UserConfig.EntryFile)
	stage2JSON, err := r.runStage(ctx, exec, entryPath, "stage 1")
	if err != nil {
		return err
	}
	if stage2JSON == nil {
		return fmt.Errorf("stage 1's generator produced no stdout to parse as a stage-2 spec")
	}

	if _, err := r.runStageBytes(ctx, exec, stage2JSON, "stage 2"); err != nil {
		return err
	}
	return nil
}

// runStage reads path, decodes/plans/executes it, and returns the
// stdout of the last Exec action in the plan (nil if the plan has no
// Exec, or its last action isn't an Exec).
func (r *Runner) runStage(ctx context.Context, exec *executor.Executor, path, label string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: read entry document %s: %w", label, path, err)
	}
	return r.runStageBytes(ctx, exec, raw, label)
}

func (r *Runner) runStageBytes(ctx context.Context, exec *executor.Executor, raw []byte, label string) ([]byte, error) {
	s, err := codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decode spec: %w", label, err)
	}

	ordered, err := planner.Plan(s)
	if err != nil {
		return nil, fmt.Errorf("%s: plan actions: %w", label, err)
	}

	var lastStdout []byte
	for _, action := range ordered {
		r.Log.WithField("stage", label).Debug("running action")
		out, err := exec.Run(ctx, action)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		lastStdout = out
	}
	return lastStdout, nil
}

// launcherTemplate is rendered by Init and Scripts. Grounded on
// lazydocker's scripts/ launcher pattern: a thin shell shim that
// invokes the real binary with the caller's working directory as the
// root.
const launcherTemplate = `#!/bin/sh
# Generated by mnb init/scripts. Re-run "mnb scripts" after upgrading
# mnb to refresh this file.
exec mnb --rootabspath "$(pwd)" update "$@"
`

// Init creates an empty entry document (if absent) and renders the
// launcher script, marking it executable.
func (r *Runner) Init() error {
	entryPath := filepath.Join(r.Cfg.WorkingRoot, r.Cfg.UserConfig.EntryFile)
	if _, err := os.Stat(entryPath); os.IsNotExist(err) {
		empty := []byte(`{"spec_version":"1.0","actions":[]}`)
		if err := os.WriteFile(entryPath, empty, 0o644); err != nil {
			return fmt.Errorf("init: write empty entry document: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("init: stat entry document: %w", err)
	}

	return r.Scripts()
}

// Scripts re-renders only the launcher script.
func (r *Runner) Scripts() error {
	tmpl, err := template.New("launcher").Parse(launcherTemplate)
	if err != nil {
		return fmt.Errorf("scripts: parse launcher template: %w", err)
	}

	scriptPath := filepath.Join(r.Cfg.WorkingRoot, "mnb-run.sh")
	f, err := os.OpenFile(scriptPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("scripts: create launcher script: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, nil); err != nil {
		return fmt.Errorf("scripts: render launcher script: %w", err)
	}
	return nil
}
