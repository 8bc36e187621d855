package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ContainerReaper removes clone containers orphaned by a crash.
// implemented by *docker.DockerClient.
type ContainerReaper interface {
	RemoveLeftoverCloneContainers(ctx context.Context) (int, error)
}

// SweepRoot removes staging and aside directories directly under root that are older
// than maxAge. they are only left behind when the process died between clone and commit.
// returns the removed paths. a missing root is not an error.
func SweepRoot(root string, maxAge time.Duration, now time.Time) ([]string, error) {
	entries, errRead := os.ReadDir(root)
	if errors.Is(errRead, os.ErrNotExist) {
		return nil, nil
	}
	if errRead != nil {
		return nil, &FilesystemError{Operation: "read", Path: root, Err: errRead}
	}

	var removed []string
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !(strings.HasPrefix(name, stagingPrefix) || strings.HasPrefix(name, asidePrefix)) {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil {
			// removed concurrently
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}

		leftoverPath := filepath.Join(root, name)
		if errRemove := os.RemoveAll(leftoverPath); errRemove != nil {
			errs = append(errs, &FilesystemError{Operation: "remove", Path: leftoverPath, Err: errRemove})
			continue
		}
		removed = append(removed, leftoverPath)
	}
	return removed, errors.Join(errs...)
}

// Sweep runs one pass over every destination root known to the database, skipping
// roots with an active run. leftover clone containers are only removed while
// nothing is running, since the reaper can not tell them apart from live ones.
func (service *Service) Sweep(ctx context.Context, maxAge time.Duration, reaper ContainerReaper) error {
	roots, errRoots := service.database.ListDestinationRoots()
	if errRoots != nil {
		return fmt.Errorf("failed to list destination roots to sweep: %w", errRoots)
	}

	now := time.Now()
	var errs []error
	for _, root := range roots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if service.rootIsBusy(root) {
			continue
		}
		removed, errSweep := SweepRoot(root, maxAge, now)
		for _, removedPath := range removed {
			service.logger.Info("removed staging leftover", "path", removedPath)
		}
		if errSweep != nil {
			errs = append(errs, errSweep)
		}
	}

	if reaper != nil && !service.hasActiveRuns() {
		removedContainers, errReap := reaper.RemoveLeftoverCloneContainers(ctx)
		if errReap != nil {
			errs = append(errs, errReap)
		} else if removedContainers > 0 {
			service.logger.Info("removed leftover clone containers", "count", removedContainers)
		}
	}
	return errors.Join(errs...)
}

// StartSweepLoop runs Sweep every tickInterval until ctx is canceled (graceful shutdown).
// it should be launched as a goroutine. errors of one pass are logged and the loop continues.
func (service *Service) StartSweepLoop(ctx context.Context, tickInterval, maxAge time.Duration, reaper ContainerReaper) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	logger := service.logger.With("component", "sweeper")
	logger.Info("sweep loop started", "interval", tickInterval.String(), "max_age", maxAge.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep loop stopped")
			return
		case <-ticker.C:
			if errSweep := service.Sweep(ctx, maxAge, reaper); errSweep != nil {
				logger.Error("sweep pass failed", "error", errSweep)
			}
		}
	}
}
