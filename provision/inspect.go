package provision

import (
	"fmt"

	"github.com/go-git/go-git/v5"
)

// CloneInfo is what the pipeline records about a fetched repository.
type CloneInfo struct {
	Commit string
	Branch string
}

// inspectClone reads HEAD of the clone at path. it is only informational,
// git itself already verified the checkout.
func inspectClone(path string) (CloneInfo, error) {
	repository, errOpen := git.PlainOpen(path)
	if errOpen != nil {
		return CloneInfo{}, fmt.Errorf("failed to open clone %q: %w", path, errOpen)
	}
	head, errHead := repository.Head()
	if errHead != nil {
		return CloneInfo{}, fmt.Errorf("failed to read HEAD of %q: %w", path, errHead)
	}
	return CloneInfo{
		Commit: head.Hash().String(),
		Branch: head.Name().Short(),
	}, nil
}
