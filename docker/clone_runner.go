package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/CybrosysAssista/Assista-IDE/runner"
)

// DefaultCloneImage ships git and nothing else, with git as its entrypoint.
const DefaultCloneImage = "alpine/git:latest"

// containerWorkspace is where the command's working directory is mounted
const containerWorkspace = "/workspace"

// CloneContainerRunner implements runner.Runner by running the command inside an
// ephemeral container. the host working directory (the staging directory) is bind-mounted
// read-write at /workspace, and host paths in the arguments are rewritten to match.
type CloneContainerRunner struct {
	dockerClient *DockerClient
	image        string
	killGrace    time.Duration
}

// CloneContainerRunnerConfig mirrors the container fields of config.Config.
type CloneContainerRunnerConfig struct {
	Image     string
	KillGrace time.Duration
}

// NewCloneContainerRunner constructs a CloneContainerRunner.
func NewCloneContainerRunner(dockerClient *DockerClient, config CloneContainerRunnerConfig) *CloneContainerRunner {
	if config.Image == "" {
		config.Image = DefaultCloneImage
	}
	if config.KillGrace <= 0 {
		config.KillGrace = 5 * time.Second
	}
	return &CloneContainerRunner{
		dockerClient: dockerClient,
		image:        config.Image,
		killGrace:    config.KillGrace,
	}
}

// Start creates and starts the container and returns a Handle over its log stream.
// the container is removed once the Handle is done. every failure before the
// container is running is a *runner.ProcessSpawnError.
func (cloneRunner *CloneContainerRunner) Start(ctx context.Context, command runner.Command) (*runner.Handle, error) {
	log := clog.FromContext(ctx)
	tool := filepath.Base(command.Tool)

	if command.Dir == "" {
		return nil, &runner.ProcessSpawnError{Tool: tool, Err: fmt.Errorf("container runs need a working directory to mount")}
	}
	hostDirectory, errAbs := filepath.Abs(command.Dir)
	if errAbs != nil {
		return nil, &runner.ProcessSpawnError{Tool: tool, Err: errAbs}
	}

	// ===== pull image if not already present
	if pullError := cloneRunner.dockerClient.pullImageIfNotPresent(ctx, cloneRunner.image); pullError != nil {
		return nil, &runner.ProcessSpawnError{Tool: tool, Err: pullError}
	}

	// ===== container config
	containerInternalConfig := &container.Config{
		Image:      cloneRunner.image,
		Entrypoint: []string{tool},
		Cmd:        rewriteHostPaths(command.Args, hostDirectory, containerWorkspace),
		WorkingDir: containerWorkspace,
		Env:        command.Env,
		Labels:     map[string]string{cloneContainerLabel: "clone"},

		// files written into the bind mount must belong to the user running this process,
		// or the host side can not rename or remove them afterwards
		User: fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
	containerHostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   hostDirectory,
				Target:   containerWorkspace,
				ReadOnly: false,
			},
		},
	}

	// platform nil = host native architecture
	var platform *v1.Platform = nil
	containerName := "provision-clone-" + uuid.NewString()[:8]

	// ===== create and start
	createResponse, createError := cloneRunner.dockerClient.sdk.ContainerCreate(
		ctx,
		containerInternalConfig,
		containerHostConfig,
		nil,
		platform,
		containerName,
	)
	if createError != nil {
		return nil, &runner.ProcessSpawnError{Tool: tool, Err: fmt.Errorf("failed to create clone container %q: %w", containerName, createError)}
	}
	containerID := createResponse.ID

	if startError := cloneRunner.dockerClient.sdk.ContainerStart(ctx, containerID, container.StartOptions{}); startError != nil {
		cloneRunner.removeContainer(containerID, containerName)
		return nil, &runner.ProcessSpawnError{Tool: tool, Err: fmt.Errorf("failed to start clone container %q: %w", containerName, startError)}
	}

	// ===== follow logs
	// the log stream ends when the container stops. without a TTY docker multiplexes
	// stdout and stderr with an 8-byte frame header, stdcopy splits them again
	logReadCloser, logError := cloneRunner.dockerClient.sdk.ContainerLogs(
		context.Background(),
		containerID,
		container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true},
	)
	if logError != nil {
		cloneRunner.removeContainer(containerID, containerName)
		return nil, &runner.ProcessSpawnError{Tool: tool, Err: fmt.Errorf("failed to attach to clone container logs: %w", logError)}
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	go func() {
		defer logReadCloser.Close()
		_, copyError := stdcopy.StdCopy(stdoutWriter, stderrWriter, logReadCloser)
		stdoutWriter.CloseWithError(copyError)
		stderrWriter.CloseWithError(copyError)
	}()

	log.Info("clone container started", "container_name", containerName, "image", cloneRunner.image)

	return runner.NewHandle(runner.HandleConfig{
		Stdout: stdoutReader,
		Stderr: stderrReader,
		Wait: func() (int, bool, error) {
			defer cloneRunner.removeContainer(containerID, containerName)
			return cloneRunner.waitForExit(containerID)
		},
		Signal: func(force bool) error {
			signal := "SIGTERM"
			if force {
				signal = "SIGKILL"
			}
			return cloneRunner.dockerClient.sdk.ContainerKill(context.Background(), containerID, signal)
		},
		KillGrace: cloneRunner.killGrace,
	}), nil
}

// waitForExit blocks until the container is no longer running.
// 143 and 137 are the shell conventions for SIGTERM and SIGKILL.
func (cloneRunner *CloneContainerRunner) waitForExit(containerID string) (int, bool, error) {
	statusChannel, errorChannel := cloneRunner.dockerClient.sdk.ContainerWait(
		context.Background(),
		containerID,
		container.WaitConditionNotRunning,
	)
	select {
	case waitError := <-errorChannel:
		return -1, false, fmt.Errorf("error waiting for clone container: %w", waitError)
	case waitStatus := <-statusChannel:
		exitCode := int(waitStatus.StatusCode)
		return exitCode, exitCode == 137 || exitCode == 143, nil
	}
}

// removeContainer force-removes the container. it uses its own context so it still
// runs when the pipeline context is already canceled.
func (cloneRunner *CloneContainerRunner) removeContainer(containerID, containerName string) {
	removeContext, cancelRemove := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelRemove()

	removeError := cloneRunner.dockerClient.sdk.ContainerRemove(removeContext, containerID, container.RemoveOptions{Force: true})
	if removeError != nil {
		cloneRunner.dockerClient.logger.Warn("failed to remove clone container (non-fatal)",
			"container_name", containerName,
			"error", removeError,
		)
	}
}

// rewriteHostPaths maps arguments that point into hostDirectory to the same place
// under containerDirectory.
func rewriteHostPaths(args []string, hostDirectory, containerDirectory string) []string {
	rewritten := make([]string, len(args))
	for index, arg := range args {
		switch {
		case arg == hostDirectory:
			rewritten[index] = containerDirectory
		case strings.HasPrefix(arg, hostDirectory+string(filepath.Separator)):
			relativePath := strings.TrimPrefix(arg, hostDirectory+string(filepath.Separator))
			rewritten[index] = containerDirectory + "/" + filepath.ToSlash(relativePath)
		default:
			rewritten[index] = arg
		}
	}
	return rewritten
}
