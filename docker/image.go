package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
)

// cloneContainerLabel marks every container started by CloneContainerRunner,
// so leftovers from a crashed process can be found again.
const cloneContainerLabel = "assista.provision.role"

// pullImageIfNotPresent pulls imageName unless the local image cache already has it.
// the pull response is a stream of JSON progress lines that must be fully consumed,
// otherwise the daemon may not finish writing the layers.
func (dockerClient *DockerClient) pullImageIfNotPresent(ctx context.Context, imageName string) error {
	cachedImages, listError := dockerClient.sdk.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", imageName)),
	})
	if listError == nil && len(cachedImages) > 0 {
		return nil
	}

	dockerClient.logger.Info("pulling docker image", "image", imageName)
	imagePullResponseStream, pullError := dockerClient.sdk.ImagePull(ctx, imageName, image.PullOptions{})
	if pullError != nil {
		return fmt.Errorf("failed to initiate image pull for %q: %w", imageName, pullError)
	}
	defer imagePullResponseStream.Close()

	if _, err := io.Copy(io.Discard, imagePullResponseStream); err != nil {
		return fmt.Errorf("failed to stream image pull response for %q: %w", imageName, err)
	}

	dockerClient.logger.Info("docker image pulled and ready", "image", imageName)
	return nil
}

// RemoveLeftoverCloneContainers force-removes every clone container that is still around,
// running or not. a clone container normally removes itself when its Handle finishes,
// so anything found here was orphaned by a crash. returns the number removed.
func (dockerClient *DockerClient) RemoveLeftoverCloneContainers(ctx context.Context) (int, error) {
	containers, containerListError := dockerClient.sdk.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", cloneContainerLabel+"=clone")),
	})
	if containerListError != nil {
		return 0, fmt.Errorf("failed to list clone containers: %w", containerListError)
	}

	removed := 0
	for _, listedContainer := range containers {
		removeError := dockerClient.sdk.ContainerRemove(ctx, listedContainer.ID, container.RemoveOptions{Force: true})
		if removeError != nil {
			dockerClient.logger.Warn("failed to remove leftover clone container (non-fatal)",
				"container_id", listedContainer.ID,
				"error", removeError,
			)
			continue
		}
		removed++
	}
	return removed, nil
}
