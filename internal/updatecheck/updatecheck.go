// Package updatecheck implements the read-only git remote-head probe served
// by GET /update/check (spec §4.7, grounded on update_check.py).
package updatecheck

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Result mirrors update_check.py's JSON shape.
type Result struct {
	OK              bool   `json:"ok"`
	Error           string `json:"error,omitempty"`
	Branch          string `json:"branch,omitempty"`
	LocalHead       string `json:"local_head,omitempty"`
	RemoteHead      string `json:"remote_head,omitempty"`
	UpdateAvailable *bool  `json:"update_available,omitempty"`
	RemoteError     string `json:"remote_error,omitempty"`
}

// Checker is the update-check capability (spec §1 external collaborators).
type Checker interface {
	Check(ctx context.Context) Result
}

// GitChecker shells out to git, matching update_check.py's subprocess
// approach exactly rather than pulling in a Go git library.
type GitChecker struct {
	// RepoPath is the repository to inspect. Empty means the current
	// working directory.
	RepoPath string
}

// Check runs the rev-parse/ls-remote sequence and reports the result.
func (c GitChecker) Check(ctx context.Context) Result {
	root, err := c.git(ctx, 3*time.Second, "rev-parse", "--show-toplevel")
	if err != nil {
		return Result{OK: false, Error: "not a git repo"}
	}
	repoRoot := strings.TrimSpace(root)

	localHead, err := c.gitIn(ctx, repoRoot, 3*time.Second, "rev-parse", "HEAD")
	if err != nil {
		return Result{OK: false, Error: "local revision unavailable"}
	}
	localHead = strings.TrimSpace(localHead)

	branch := "unknown"
	if b, err := c.gitIn(ctx, repoRoot, 3*time.Second, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		branch = strings.TrimSpace(b)
	}

	remoteArgs := []string{"ls-remote", "origin", "HEAD"}
	if branch != "" && branch != "HEAD" {
		remoteArgs = []string{"ls-remote", "origin", branch}
	}

	result := Result{OK: true, Branch: branch, LocalHead: localHead}

	out, err := c.gitIn(ctx, repoRoot, 5*time.Second, remoteArgs...)
	if err != nil {
		result.RemoteError = err.Error()
		return result
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		result.RemoteError = "remote unavailable"
		return result
	}
	result.RemoteHead = fields[0]
	updateAvailable := result.RemoteHead != localHead
	result.UpdateAvailable = &updateAvailable
	return result
}

func (c GitChecker) git(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	return c.gitIn(ctx, c.RepoPath, timeout, args...)
}

func (c GitChecker) gitIn(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gitArgs := args
	if dir != "" {
		gitArgs = append([]string{"-C", dir}, args...)
	}
	out, err := exec.CommandContext(ctx, "git", gitArgs...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
