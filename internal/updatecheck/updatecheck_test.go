package updatecheck

import (
	"context"
	"testing"
)

func TestGitCheckerNotARepo(t *testing.T) {
	c := GitChecker{RepoPath: t.TempDir()}
	result := c.Check(context.Background())
	if result.OK {
		t.Fatalf("OK = true, want false for a non-repo directory")
	}
	if result.Error == "" {
		t.Fatalf("Error = %q, want non-empty", result.Error)
	}
}
