// Package runtime wraps the Docker Engine API client as a narrow
// interface exposing image pull, image build, and container
// create/attach/start/stop/remove, with multiplexed stdio. Grounded
// on lazydocker's pkg/commands/docker.go
// (client construction), image.go (pull/build shapes) and attaching.go
// (create-then-attach-then-start sequencing, and demuxing via
// github.com/docker/docker/pkg/stdcopy as in pkg/gui/container_logs.go).
package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	dockerarchive "github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"
)

// archiveDirectory tars up a build context directory, the same way the
// combust-labs/firebuild docker.go reference does it: via
// github.com/docker/docker/pkg/archive rather than hand-rolling tar
// header walking.
func archiveDirectory(dir string) (io.ReadCloser, error) {
	return dockerarchive.TarWithOptions(dir, &dockerarchive.TarOptions{})
}

// APIVersion names the Docker Engine API level mnb's calls (create,
// attach, build, pull) have been stable at, matching the teacher's
// constant of the same name. New does not pass it to the client; the
// client negotiates its API version with the daemon.
const APIVersion = "1.41"

// Runtime is a thin, narrowly-scoped wrapper over *client.Client.
type Runtime struct {
	Client *client.Client
	Log    *logrus.Entry
}

// New builds a Runtime from the environment (DOCKER_HOST, etc.), with
// API version negotiation enabled so a newer client still talks to an
// older daemon, exactly as lazydocker's docker_test.go guards against
// DOCKER_API_VERSION locking out negotiation.
func New(log *logrus.Entry) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Runtime{Client: cli, Log: log}, nil
}

func (r *Runtime) Close() error {
	return r.Client.Close()
}

// PullImage splits image_name at the first colon into repository and
// tag; an absent tag defaults to defaultTag. Pull progress frames are
// logged, not rendered.
func (r *Runtime) PullImage(ctx context.Context, imageName, defaultTag string) error {
	repository, tag := splitImageName(imageName, defaultTag)
	ref := repository + ":" + tag

	reader, err := r.Client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err == nil {
			r.Log.WithField("image", ref).Debug(line["status"])
		}
	}
	return scanner.Err()
}

func splitImageName(imageName, defaultTag string) (repository, tag string) {
	idx := strings.IndexByte(imageName, ':')
	if idx < 0 {
		return imageName, defaultTag
	}
	return imageName[:idx], imageName[idx+1:]
}

// BuildImageOptions carries everything needed to build one image from
// a context directory already resolved on the host (git checkout, if
// any, has already happened by this point; see internal/gitsrc).
type BuildImageOptions struct {
	ContextPath    string
	DockerfilePath string
	Tag            string
	BuildArgs      map[string]*string
	ExtraTags      []string
}

// BuildImage builds and tags an image, streaming build log lines to the
// logger, then applies any extra tags.
func (r *Runtime) BuildImage(ctx context.Context, opts BuildImageOptions) error {
	tarball, err := archiveDirectory(opts.ContextPath)
	if err != nil {
		return fmt.Errorf("archive build context %s: %w", opts.ContextPath, err)
	}
	defer tarball.Close()

	resp, err := r.Client.ImageBuild(ctx, tarball, types.ImageBuildOptions{
		Tags:       []string{opts.Tag},
		Dockerfile: opts.DockerfilePath,
		BuildArgs:  opts.BuildArgs,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build %s: %w", opts.Tag, err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err == nil {
			if line.Error != "" {
				return fmt.Errorf("build %s: %s", opts.Tag, line.Error)
			}
			if line.Stream != "" {
				r.Log.WithField("image", opts.Tag).Debug(strings.TrimRight(line.Stream, "\n"))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// apply extra tags only after a successful build.
	for _, extra := range opts.ExtraTags {
		if err := r.TagImage(ctx, opts.Tag, extra); err != nil {
			return fmt.Errorf("tag %s as %s: %w", opts.Tag, extra, err)
		}
	}
	return nil
}

// MountSpec is one bind mount for a container create call.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec describes a container to create for one Exec action.
type ContainerSpec struct {
	Image      string
	Command    []string
	Entrypoint []string
	Workdir    string
	Env        []string
	Mounts     []MountSpec
}

// CreateContainer creates (but does not start) a container; the caller
// attaches to its multiplexed I/O socket before starting it.
func (r *Runtime) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	resp, err := r.Client.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Cmd:          spec.Command,
			Entrypoint:   spec.Entrypoint,
			WorkingDir:   spec.Workdir,
			Env:          spec.Env,
			OpenStdin:    true,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
		},
		&container.HostConfig{
			Mounts: mounts,
		},
		nil, nil, "",
	)
	if err != nil {
		return "", fmt.Errorf("create container for %s: %w", spec.Image, err)
	}
	return resp.ID, nil
}

// AttachedStreams is the attach socket's reader/writer/closer triple,
// returned before the container is started so the executor can wire up
// its sender/receiver pumps first.
type AttachedStreams struct {
	conn   io.ReadWriteCloser
	closer interface{ CloseWrite() error }
}

// Write sends stdin bytes to the container.
func (a *AttachedStreams) Write(p []byte) (int, error) { return a.conn.Write(p) }

// CloseWrite half-closes the stdin side once all stdin sources are
// exhausted, so the container sees EOF on its standard input without
// tearing down the read side.
func (a *AttachedStreams) CloseWrite() error {
	if a.closer != nil {
		return a.closer.CloseWrite()
	}
	return nil
}

// DemuxInto reads multiplexed frames from the attach socket until the
// stream closes, routing stdout/stderr bytes to the given writers. It
// uses stdcopy.StdCopy, the same demultiplexer lazydocker's container
// log viewer uses.
func (a *AttachedStreams) DemuxInto(stdout, stderr io.Writer) error {
	_, err := stdcopy.StdCopy(stdout, stderr, a.conn)
	return err
}

// Close releases the attach connection.
func (a *AttachedStreams) Close() error { return a.conn.Close() }

// Attach opens the container's multiplexed stdio socket.
func (r *Runtime) Attach(ctx context.Context, containerID string) (*AttachedStreams, error) {
	resp, err := r.Client.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("attach to container %s: %w", containerID, err)
	}
	closer, _ := resp.Conn.(interface{ CloseWrite() error })
	return &AttachedStreams{conn: resp.Conn, closer: closer}, nil
}

// StartContainer starts a previously-created container.
func (r *Runtime) StartContainer(ctx context.Context, containerID string) error {
	if err := r.Client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", containerID, err)
	}
	return nil
}

// ExitCode refreshes the container's state and returns its exit code.
func (r *Runtime) ExitCode(ctx context.Context, containerID string) (int64, error) {
	resp, err := r.Client.ContainerInspect(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	return int64(resp.State.ExitCode), nil
}

// StopAndRemove stops and removes a container, used on every exit path:
// success, failure, or interruption.
func (r *Runtime) StopAndRemove(ctx context.Context, containerID string) error {
	_ = r.Client.ContainerStop(ctx, containerID, container.StopOptions{})
	return r.Client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// TagImage applies an additional tag to an already-built image.
func (r *Runtime) TagImage(ctx context.Context, source, target string) error {
	return r.Client.ImageTag(ctx, source, target)
}
