package actor

import (
	"context"
	"fmt"
	"os"
)

// Validator is the pre-flight check run against the repository path before
// anything is spawned. A non-nil error ends the execution; its text becomes
// the result error.
type Validator func(ctx context.Context, repositoryPath string) error

// AcceptAll accepts every path and leaves validation to git itself.
func AcceptAll(context.Context, string) error { return nil }

// RequireDirectory requires the repository path to be an existing directory.
// Use it only where the host can inspect the filesystem.
func RequireDirectory(_ context.Context, repositoryPath string) error {
	fi, err := os.Stat(repositoryPath)
	if err != nil {
		return fmt.Errorf("repository path %q is not accessible: %v", repositoryPath, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("repository path %q is not a directory", repositoryPath)
	}
	return nil
}
