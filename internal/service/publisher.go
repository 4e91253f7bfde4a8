package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/classmap/refreshd/internal/store"
)

type Publisher interface {
	Publish(ctx context.Context, outputCh chan<- string) (store.RunOutcome, *string, error)
}

// GitPublisher stages the artifact files and commits and pushes them
// only when the staged content differs from HEAD.
type GitPublisher struct {
	dir       string
	artifacts []string
	publish   Publish
}

func NewGitPublisher(dir string, artifacts []string, publish Publish) *GitPublisher {
	return &GitPublisher{
		dir:       dir,
		artifacts: artifacts,
		publish:   publish,
	}
}

func (p *GitPublisher) Publish(
	ctx context.Context,
	outputCh chan<- string,
) (store.RunOutcome, *string, error) {
	if err := p.stage(ctx); err != nil {
		return "", nil, PublishError{Op: "stage", Err: err}
	}

	changed, err := p.stagedChanges(ctx)
	if err != nil {
		return "", nil, PublishError{Op: "diff", Err: err}
	}
	if !changed {
		outputCh <- "No changes in artifacts, skipping commit.\n"
		return store.OutcomeNoChange, nil, nil
	}

	if err := p.commit(ctx); err != nil {
		// a commit racing another run can still come up empty; the
		// idempotence contract treats "nothing to commit" as success
		if strings.Contains(err.Error(), "nothing to commit") {
			outputCh <- "Nothing to commit, skipping push.\n"
			return store.OutcomeNoChange, nil, nil
		}
		return "", nil, PublishError{Op: "commit", Err: err}
	}

	sha, err := p.headSha(ctx)
	if err != nil {
		return "", nil, PublishError{Op: "rev-parse", Err: err}
	}
	outputCh <- fmt.Sprintf("Committed %s\n", sha)

	if err := p.push(ctx); err != nil {
		return "", nil, PublishError{Op: "push", Err: err}
	}
	outputCh <- fmt.Sprintf("Pushed to %s/%s\n", p.publish.Remote, p.publish.Branch)

	return store.OutcomeCommitted, &sha, nil
}

func (p *GitPublisher) stage(ctx context.Context) error {
	args := append([]string{"add", "--"}, p.artifacts...)
	return p.git(ctx, args...)
}

// stagedChanges reports whether the staged artifact paths differ from
// HEAD. git diff --cached --quiet exits 1 when differences exist.
func (p *GitPublisher) stagedChanges(ctx context.Context) (bool, error) {
	args := append([]string{"diff", "--cached", "--quiet", "--"}, p.artifacts...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.dir
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// commit is scoped to the artifact paths so anything else sitting in
// the index cannot ride along.
func (p *GitPublisher) commit(ctx context.Context) error {
	args := []string{
		"-c", "user.name=" + p.publish.AuthorName,
		"-c", "user.email=" + p.publish.AuthorEmail,
		"commit", "-m", p.publish.Message, "--",
	}
	return p.git(ctx, append(args, p.artifacts...)...)
}

func (p *GitPublisher) headSha(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = p.dir
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func (p *GitPublisher) push(ctx context.Context) error {
	return p.git(ctx, "push", p.publish.Remote, p.publish.Branch)
}

func (p *GitPublisher) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(output)))
	}
	return nil
}
