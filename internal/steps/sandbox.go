package steps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const sandboxWorkdir = "/workspace"

// DockerExecutor runs test commands inside a network-isolated container,
// bind-mounting the submission directory at /workspace. Untrusted
// submission code never runs on the host.
type DockerExecutor struct {
	cli   *client.Client
	image string
}

// NewDockerExecutor creates a sandbox executor using the given image. The
// image is pulled on first use if it is not present locally.
func NewDockerExecutor(image string) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("steps: create docker client: %w", err)
	}
	return &DockerExecutor{cli: cli, image: image}, nil
}

// Run implements Executor. The container has no network access, so test
// suites cannot exfiltrate or fetch anything.
func (e *DockerExecutor) Run(ctx context.Context, dir, command string) ([]byte, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("steps: resolve %s: %w", dir, err)
	}

	cfg := &container.Config{
		Image:      e.image,
		Cmd:        []string{"sh", "-c", command},
		WorkingDir: sandboxWorkdir,
		Labels: map[string]string{
			"docent.managed": "true",
		},
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: abs,
			Target: sandboxWorkdir,
		}},
	}

	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if client.IsErrNotFound(err) {
		reader, pullErr := e.cli.ImagePull(ctx, e.image, image.PullOptions{})
		if pullErr != nil {
			return nil, fmt.Errorf("steps: pull image %s: %w", e.image, pullErr)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	}
	if err != nil {
		return nil, fmt.Errorf("steps: create container: %w", err)
	}
	defer e.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("steps: start container: %w", err)
	}

	waitCh, errCh := e.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exit int64
	select {
	case status := <-waitCh:
		exit = status.StatusCode
	case err := <-errCh:
		return nil, fmt.Errorf("steps: wait for container: %w", err)
	}

	logs, err := e.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("steps: read container logs: %w", err)
	}
	defer logs.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, logs); err != nil {
		return nil, fmt.Errorf("steps: demux container logs: %w", err)
	}
	if exit != 0 {
		return buf.Bytes(), fmt.Errorf("steps: command exited with status %d", exit)
	}
	return buf.Bytes(), nil
}
