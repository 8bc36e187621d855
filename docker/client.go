// Package docker wraps the Docker SDK client and provides the container backed
// clone runner: the same git invocation, run inside an ephemeral container with the
// staging directory bind-mounted.
// all Docker SDK calls are isolated here so no other package imports the Docker SDK directly.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerSDKclient "github.com/docker/docker/client"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the part of the Docker SDK client this package calls.
// *dockerSDKclient.Client implements it.
type dockerAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)

	ContainerCreate(
		ctx context.Context,
		config *container.Config,
		hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig,
		platform *v1.Platform,
		containerName string,
	) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)

	Close() error
}

var _ dockerAPI = (*dockerSDKclient.Client)(nil)

// DockerClient wraps the Docker SDK client with a logger.
// the SDK client manages the connection to the daemon and is safe to share across goroutines.
type DockerClient struct {
	sdk    dockerAPI
	logger *slog.Logger
}

// NewClient connects to the Docker daemon ($DOCKER_HOST or the default unix socket)
// and pings it so a dead daemon fails at startup instead of on the first clone.
func NewClient(logger *slog.Logger) (*DockerClient, error) {
	// WithAPIVersionNegotiation picks the highest API version both sides support,
	// without it a newer SDK fails every call against an older daemon
	sdkClient, err := dockerSDKclient.NewClientWithOpts(
		dockerSDKclient.FromEnv,
		dockerSDKclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker sdk client: %w", err)
	}

	// 5 seconds is plenty for a local socket
	pingContext, cancelPingContextTimer := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPingContextTimer()

	if err = ping(pingContext, sdkClient); err != nil {
		sdkClient.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	logger.Info("docker client connected", "host", sdkClient.DaemonHost())
	return &DockerClient{
		sdk:    sdkClient,
		logger: logger,
	}, nil
}

// ping sends a lightweight ping request to the Docker daemon.
func ping(ctx context.Context, sdkClient *dockerSDKclient.Client) error {
	_, err := sdkClient.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying Docker SDK client connection.
func (dockerClient *DockerClient) Close() error {
	return dockerClient.sdk.Close()
}
