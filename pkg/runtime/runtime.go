package runtime

import (
	"context"
	"strings"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
)

// Container is the runtime-agnostic view of one workload instance.
type Container struct {
	ID    string
	Name  string
	State string
	Image string
}

// Running container states as reported by the runtime.
const (
	StateRunning = "running"
	StatePaused  = "paused"
	StateExited  = "exited"
)

// Client is the narrow runtime-control surface the fault backend needs.
// The chaoslib packages and all tests are written against it rather than
// against the Docker SDK.
type Client interface {
	ListContainers(ctx context.Context, all bool) ([]Container, error)
	InspectContainer(ctx context.Context, id string) (Container, error)
	StopContainer(ctx context.Context, id string) error
	StartContainer(ctx context.Context, id string) error
	PauseContainer(ctx context.Context, id string) error
	UnpauseContainer(ctx context.Context, id string) error
	ExecInContainer(ctx context.Context, id string, cmd []string, detach bool) error
}

// DockerClient drives the Docker Engine API.
type DockerClient struct {
	docker *client.Client
}

// NewDockerClient connects to the engine using the standard DOCKER_HOST
// environment resolution.
func NewDockerClient() (*DockerClient, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to the docker engine")
	}
	return &DockerClient{docker: docker}, nil
}

func (c *DockerClient) ListContainers(ctx context.Context, all bool) ([]Container, error) {
	summaries, err := c.docker.ContainerList(ctx, dockertypes.ContainerListOptions{All: all})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list containers")
	}

	containers := make([]Container, 0, len(summaries))
	for _, summary := range summaries {
		name := summary.ID
		if len(summary.Names) > 0 {
			name = strings.TrimPrefix(summary.Names[0], "/")
		}
		containers = append(containers, Container{
			ID:    summary.ID,
			Name:  name,
			State: summary.State,
			Image: summary.Image,
		})
	}
	return containers, nil
}

func (c *DockerClient) InspectContainer(ctx context.Context, id string) (Container, error) {
	details, err := c.docker.ContainerInspect(ctx, id)
	if err != nil {
		return Container{}, errors.Wrapf(err, "unable to inspect container %s", id)
	}

	state := details.State.Status
	if details.State.Paused {
		state = StatePaused
	}
	return Container{
		ID:    details.ID,
		Name:  strings.TrimPrefix(details.Name, "/"),
		State: state,
		Image: details.Config.Image,
	}, nil
}

func (c *DockerClient) StopContainer(ctx context.Context, id string) error {
	return errors.Wrapf(c.docker.ContainerStop(ctx, id, container.StopOptions{}), "unable to stop container %s", id)
}

func (c *DockerClient) StartContainer(ctx context.Context, id string) error {
	return errors.Wrapf(c.docker.ContainerStart(ctx, id, dockertypes.ContainerStartOptions{}), "unable to start container %s", id)
}

func (c *DockerClient) PauseContainer(ctx context.Context, id string) error {
	return errors.Wrapf(c.docker.ContainerPause(ctx, id), "unable to pause container %s", id)
}

func (c *DockerClient) UnpauseContainer(ctx context.Context, id string) error {
	return errors.Wrapf(c.docker.ContainerUnpause(ctx, id), "unable to unpause container %s", id)
}

func (c *DockerClient) ExecInContainer(ctx context.Context, id string, cmd []string, detach bool) error {
	exec, err := c.docker.ContainerExecCreate(ctx, id, dockertypes.ExecConfig{
		Cmd:    cmd,
		Detach: detach,
	})
	if err != nil {
		return errors.Wrapf(err, "unable to create exec in container %s", id)
	}
	return errors.Wrapf(c.docker.ContainerExecStart(ctx, exec.ID, dockertypes.ExecStartCheck{Detach: detach}), "unable to start exec in container %s", id)
}
