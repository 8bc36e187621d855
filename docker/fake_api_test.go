package docker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

const fakeContainerID = "c0ffee"

// fakeDockerAPI records every call and plays back a canned container run.
type fakeDockerAPI struct {
	mutex sync.Mutex

	cachedImages []image.Summary
	leftovers    []container.Summary
	startError   error

	// logs is the multiplexed log stream of the container
	logs []byte

	// exitOnSignal maps a kill signal to the exit code it produces, unknown signals are ignored
	exitOnSignal map[string]int64
	exits        chan container.WaitResponse

	pulled     []string
	config     *container.Config
	hostConfig *container.HostConfig
	name       string
	kills      []string
	removed    []string
}

var _ dockerAPI = (*fakeDockerAPI)(nil)

func newFakeDockerAPI() *fakeDockerAPI {
	return &fakeDockerAPI{exits: make(chan container.WaitResponse, 1)}
}

// exitWith makes the running container stop with exitCode.
func (fake *fakeDockerAPI) exitWith(exitCode int64) {
	select {
	case fake.exits <- container.WaitResponse{StatusCode: exitCode}:
	default:
	}
}

func (fake *fakeDockerAPI) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	return fake.cachedImages, nil
}

func (fake *fakeDockerAPI) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.pulled = append(fake.pulled, refStr)
	return io.NopCloser(strings.NewReader(`{"status":"Pull complete"}` + "\n")), nil
}

func (fake *fakeDockerAPI) ContainerCreate(
	ctx context.Context,
	config *container.Config,
	hostConfig *container.HostConfig,
	networkingConfig *network.NetworkingConfig,
	platform *v1.Platform,
	containerName string,
) (container.CreateResponse, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.config = config
	fake.hostConfig = hostConfig
	fake.name = containerName
	return container.CreateResponse{ID: fakeContainerID}, nil
}

func (fake *fakeDockerAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return fake.startError
}

func (fake *fakeDockerAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(fake.logs)), nil
}

func (fake *fakeDockerAPI) ContainerKill(ctx context.Context, containerID, signal string) error {
	fake.mutex.Lock()
	fake.kills = append(fake.kills, signal)
	exitCode, stops := fake.exitOnSignal[signal]
	fake.mutex.Unlock()
	if stops {
		fake.exitWith(exitCode)
	}
	return nil
}

func (fake *fakeDockerAPI) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	return fake.exits, make(chan error)
}

func (fake *fakeDockerAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.removed = append(fake.removed, containerID)
	return nil
}

func (fake *fakeDockerAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	return fake.leftovers, nil
}

func (fake *fakeDockerAPI) Close() error { return nil }

func (fake *fakeDockerAPI) snapshot() (kills, removed []string) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]string{}, fake.kills...), append([]string{}, fake.removed...)
}

// multiplexed frames stdout and stderr the way the daemon does for containers without a TTY.
func multiplexed(stdout, stderr string) []byte {
	var buffer bytes.Buffer
	if stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buffer, stdcopy.Stdout).Write([]byte(stdout))
	}
	if stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buffer, stdcopy.Stderr).Write([]byte(stderr))
	}
	return buffer.Bytes()
}

func newFakeClient(fake *fakeDockerAPI) *DockerClient {
	return &DockerClient{sdk: fake, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
