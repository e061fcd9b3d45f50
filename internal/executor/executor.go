// Package executor drives the container runtime to realize one action
// at a time: PullImage, BuildImage, or Exec — mount/stdin/env/output
// partitioning, the sender/receiver stdio pumps, and teardown on every
// exit path. Grounded on lazydocker's pkg/commands/container.go and
// attaching.go for the create→attach→start→wait sequencing, adapted
// from "inspect a running TUI's selected container" to "drive one
// batch action to completion."
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/berkgaut/mnb/internal/config"
	"github.com/berkgaut/mnb/internal/gitsrc"
	"github.com/berkgaut/mnb/internal/runtime"
	"github.com/berkgaut/mnb/internal/spec"
	"github.com/berkgaut/mnb/internal/specerr"
	"github.com/sirupsen/logrus"
)

// fallbackDefaultTag is used when no DefaultTag is configured, e.g. in
// tests that construct an Executor directly.
const fallbackDefaultTag = "latest"

// Executor realizes actions against a working root on the host.
type Executor struct {
	Runtime        *runtime.Runtime
	Log            *logrus.Entry
	WorkingRoot    string
	HostPathFlavor config.PathFlavor
	// DefaultTag is applied to an image_name that carries no explicit
	// ":tag", taken from the user's configured DefaultRegistryTag.
	DefaultTag string

	counter atomic.Uint64
}

// New builds an Executor rooted at workingRoot, the host directory all
// relative value paths resolve against. flavor governs how bind-mount
// source paths handed to the container runtime are formatted; it is
// threaded through explicitly rather than read from a global so the
// executor never depends on the compiling platform's own path
// separator (see spec's "Path flavors" design note). defaultTag is the
// registry tag applied when an image_name carries none.
func New(rt *runtime.Runtime, log *logrus.Entry, workingRoot string, flavor config.PathFlavor, defaultTag string) *Executor {
	return &Executor{Runtime: rt, Log: log, WorkingRoot: workingRoot, HostPathFlavor: flavor, DefaultTag: defaultTag}
}

func (e *Executor) defaultTag() string {
	if e.DefaultTag == "" {
		return fallbackDefaultTag
	}
	return e.DefaultTag
}

// bindSource formats a value path as an absolute host path suitable for
// a Docker bind-mount Source field, in the configured host path
// flavor. Local file reads (env/stdin inputs, output writes) instead
// use filepath.Join, since those are performed directly by this
// process against the OS it is actually running on; only bind sources
// are handed off to a container runtime that may be driving a host of
// a different flavor than the client.
func (e *Executor) bindSource(valuePath string) string {
	if e.HostPathFlavor == config.PathFlavorWindows {
		root := strings.ReplaceAll(e.WorkingRoot, "/", `\`)
		rel := strings.ReplaceAll(valuePath, "/", `\`)
		return strings.TrimRight(root, `\`) + `\` + rel
	}
	return filepath.Join(e.WorkingRoot, valuePath)
}

// repoCacheRoot is where from_git checkouts are cached:
// ".mnb/repo/<slug>/".
func (e *Executor) repoCacheRoot() string {
	return filepath.Join(e.WorkingRoot, ".mnb", "repo")
}

// scratchRoot is the parent of all per-Exec scratch directories:
// ".mnb/context/<id>/".
func (e *Executor) scratchRoot() string {
	return filepath.Join(e.WorkingRoot, ".mnb", "context")
}

// Run dispatches one action to the matching realizer. It returns the
// Exec's captured stdout bytes (nil for non-Exec actions); the last
// Exec's stdout buffer is what the two-stage Runner feeds forward as
// the next stage's spec document.
func (e *Executor) Run(ctx context.Context, action spec.Action) ([]byte, error) {
	switch a := action.(type) {
	case *spec.PullImage:
		return nil, e.runPullImage(ctx, a)
	case *spec.BuildImage:
		return nil, e.runBuildImage(ctx, a)
	case *spec.Exec:
		return e.runExec(ctx, a)
	default:
		return nil, fmt.Errorf("executor: unknown action type %T", action)
	}
}

func (e *Executor) runPullImage(ctx context.Context, a *spec.PullImage) error {
	e.Log.WithField("image", a.ImageName).Info("pulling image")
	if err := e.Runtime.PullImage(ctx, a.ImageName, e.defaultTag()); err != nil {
		return &specerr.RuntimeError{ActionDescription: fmt.Sprintf("pull_image %s", a.ImageName), Cause: err}
	}
	return nil
}

func (e *Executor) runBuildImage(ctx context.Context, a *spec.BuildImage) error {
	contextPath := a.ContextPath
	if a.FromGit != nil {
		checkoutPath, err := gitsrc.EnsureCheckout(e.repoCacheRoot(), a.FromGit.Repo, a.FromGit.Rev)
		if err != nil {
			return &specerr.RuntimeError{ActionDescription: fmt.Sprintf("build_image %s (from_git)", a.ImageName), Cause: err}
		}
		contextPath = filepath.Join(checkoutPath, a.ContextPath)
	} else {
		contextPath = filepath.Join(e.WorkingRoot, a.ContextPath)
	}

	buildArgs := make(map[string]*string, len(a.BuildArgs))
	for _, arg := range a.BuildArgs {
		v := arg.Value
		buildArgs[arg.Name] = &v
	}

	e.Log.WithField("image", a.ImageName).Info("building image")
	err := e.Runtime.BuildImage(ctx, runtime.BuildImageOptions{
		ContextPath:    contextPath,
		DockerfilePath: a.DockerfilePath,
		Tag:            a.ImageName,
		BuildArgs:      buildArgs,
		ExtraTags:      a.ExtraTags,
	})
	if err != nil {
		return &specerr.RuntimeError{ActionDescription: fmt.Sprintf("build_image %s", a.ImageName), Cause: err}
	}
	return nil
}

// partitioned is the per-Exec partition of inputs/outputs: mounts,
// stdin sources, environment assignments, and the three output kinds.
type partitioned struct {
	mounts        []runtime.MountSpec
	stdinSources  []string // absolute host paths, in input order
	env           map[string]string
	fileOutputs   []spec.Output
	stdoutOutputs []spec.Output
	stderrOutputs []spec.Output
}

func (e *Executor) partition(a *spec.Exec) (partitioned, error) {
	var p partitioned
	p.env = make(map[string]string)

	seenThroughPaths := make(map[string]bool)
	for _, in := range a.Inputs {
		hostPath := filepath.Join(e.WorkingRoot, in.Value.Path)

		switch in.Through.Kind {
		case spec.ThroughFile, spec.ThroughDir:
			if seenThroughPaths[in.Through.Path] {
				return partitioned{}, &specerr.ConflictingMounts{Path: in.Through.Path}
			}
			seenThroughPaths[in.Through.Path] = true
			p.mounts = append(p.mounts, runtime.MountSpec{
				Source:   e.bindSource(in.Value.Path),
				Target:   filepath.Join("/mnb/run", in.Through.Path),
				ReadOnly: true,
			})
		case spec.ThroughEnvironment:
			if _, exists := p.env[in.Through.Name]; exists {
				return partitioned{}, &specerr.ConflictingEnvironmentAssignments{Name: in.Through.Name}
			}
			content, err := os.ReadFile(hostPath)
			if err != nil {
				return partitioned{}, &specerr.RuntimeError{ActionDescription: fmt.Sprintf("read environment input %s", hostPath), Cause: err}
			}
			p.env[in.Through.Name] = string(content)
		case spec.ThroughStdin:
			p.stdinSources = append(p.stdinSources, hostPath)
		}
	}

	for _, out := range a.Outputs {
		switch out.Through.Kind {
		case spec.ThroughFile, spec.ThroughDir:
			p.fileOutputs = append(p.fileOutputs, out)
		case spec.ThroughStdout:
			p.stdoutOutputs = append(p.stdoutOutputs, out)
		case spec.ThroughStderr:
			p.stderrOutputs = append(p.stderrOutputs, out)
		}
	}

	return p, nil
}

// runExec implements Exec's state machine:
// PREPARED -> CREATED -> RUNNING -> FINISHED -> SUCCEEDED/FAILED.
func (e *Executor) runExec(ctx context.Context, a *spec.Exec) ([]byte, error) {
	// PREPARED: partition inputs/outputs, allocate scratch, build mounts.
	p, err := e.partition(a)
	if err != nil {
		return nil, err
	}

	actionID := e.counter.Add(1)
	scratchDir := filepath.Join(e.scratchRoot(), fmt.Sprint(actionID))
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, &specerr.RuntimeError{ActionDescription: "allocate scratch directory", Cause: err}
	}

	scratchSource := scratchDir
	if e.HostPathFlavor == config.PathFlavorWindows {
		scratchSource = strings.ReplaceAll(scratchDir, "/", `\`)
	}
	mounts := append([]runtime.MountSpec{}, p.mounts...)
	mounts = append(mounts, runtime.MountSpec{Source: scratchSource, Target: "/mnb/run", ReadOnly: false})

	workdir := "/mnb/run"
	if a.Workdir != "" {
		workdir = filepath.Join("/mnb/run", a.Workdir)
	}

	env := make([]string, 0, len(p.env))
	for k, v := range p.env {
		env = append(env, k+"="+v)
	}

	// CREATED: create (not start) the container, attach its socket.
	containerID, err := e.Runtime.CreateContainer(ctx, runtime.ContainerSpec{
		Image:      a.ImageName,
		Command:    a.Command,
		Entrypoint: entrypointSlice(a.Entrypoint),
		Workdir:    workdir,
		Env:        env,
		Mounts:     mounts,
	})
	if err != nil {
		return nil, &specerr.RuntimeError{ActionDescription: fmt.Sprintf("exec %s (create)", a.ImageName), Cause: err}
	}

	// Every exit path from here must stop and remove the container,
	// including cancellation mid-run, to avoid leaking it.
	defer func() {
		_ = e.Runtime.StopAndRemove(context.Background(), containerID)
	}()

	streams, err := e.Runtime.Attach(ctx, containerID)
	if err != nil {
		return nil, &specerr.RuntimeError{ActionDescription: fmt.Sprintf("exec %s (attach)", a.ImageName), Cause: err}
	}
	defer streams.Close()

	// RUNNING: start the container, pump stdin/stdout/stderr concurrently.
	if err := e.Runtime.StartContainer(ctx, containerID); err != nil {
		return nil, &specerr.RuntimeError{ActionDescription: fmt.Sprintf("exec %s (start)", a.ImageName), Cause: err}
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	var senderErr, receiverErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		senderErr = sendStdin(streams, p.stdinSources)
	}()
	go func() {
		defer wg.Done()
		receiverErr = streams.DemuxInto(&stdout, &stderr)
	}()
	wg.Wait()

	if senderErr != nil {
		return nil, &specerr.RuntimeError{ActionDescription: fmt.Sprintf("exec %s (stdin)", a.ImageName), Cause: senderErr}
	}
	if receiverErr != nil && receiverErr != io.EOF {
		return nil, &specerr.RuntimeError{ActionDescription: fmt.Sprintf("exec %s (stdio)", a.ImageName), Cause: receiverErr}
	}

	// FINISHED: refresh state, read exit code.
	exitCode, err := e.Runtime.ExitCode(ctx, containerID)
	if err != nil {
		return nil, &specerr.RuntimeError{ActionDescription: fmt.Sprintf("exec %s (inspect)", a.ImageName), Cause: err}
	}

	if exitCode != 0 {
		// FAILED: report stderr, write nothing.
		return nil, &specerr.NonZeroExit{ImageName: a.ImageName, ExitCode: exitCode, Stderr: stderr.String()}
	}

	// SUCCEEDED: commit outputs.
	if err := e.writeFileOutputs(scratchDir, p.fileOutputs); err != nil {
		return nil, err
	}
	if err := e.writeBufferOutputs(p.stdoutOutputs, stdout.Bytes()); err != nil {
		return nil, err
	}
	if err := e.writeBufferOutputs(p.stderrOutputs, stderr.Bytes()); err != nil {
		return nil, err
	}

	return stdout.Bytes(), nil
}

func entrypointSlice(entrypoint string) []string {
	if entrypoint == "" {
		return nil
	}
	return []string{entrypoint}
}

// sendStdin writes the concatenation of stdin source files to the
// attached socket in fixed-size chunks, then half-closes the write
// side.
func sendStdin(streams *runtime.AttachedStreams, sources []string) error {
	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)

	for _, path := range sources {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = copyInChunks(streams, f, buf)
		f.Close()
		if err != nil {
			return err
		}
	}
	return streams.CloseWrite()
}

func copyInChunks(w io.Writer, r io.Reader, buf []byte) error {
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := writeAll(w, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// writeAll advances a cursor across short writes.
func writeAll(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (e *Executor) writeFileOutputs(scratchDir string, outputs []spec.Output) error {
	for _, out := range outputs {
		src := filepath.Join(scratchDir, out.Through.Path)
		dst := filepath.Join(e.WorkingRoot, out.Value.Path)
		if err := copyFile(src, dst); err != nil {
			return &specerr.RuntimeError{ActionDescription: fmt.Sprintf("copy output to %s", dst), Cause: err}
		}
	}
	return nil
}

func (e *Executor) writeBufferOutputs(outputs []spec.Output, content []byte) error {
	for _, out := range outputs {
		dst := filepath.Join(e.WorkingRoot, out.Value.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return &specerr.RuntimeError{ActionDescription: fmt.Sprintf("create parent dir for %s", dst), Cause: err}
		}
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			return &specerr.RuntimeError{ActionDescription: fmt.Sprintf("write output %s", dst), Cause: err}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
