package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/codequery-ai/codequery/internal/port"
)

// Git clones repositories with the system git binary.
type Git struct{}

func NewGit() *Git { return &Git{} }

// Clone performs a shallow clone of url into dest. On failure the error
// carries git's stderr so the user sees what git saw (bad URL, auth denied,
// repository not found).
func (g *Git) Clone(ctx context.Context, url string, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, dest)
	// Never block on a credential prompt for private repositories.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("git clone %s: %w", url, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("git clone %s: %w", url, err)
		}
		return fmt.Errorf("git clone %s: %s", url, msg)
	}
	return nil
}

var _ port.SourceFetcher = (*Git)(nil)
