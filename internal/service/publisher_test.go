package service

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/classmap/refreshd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type gitPublisherSuite struct {
	workDir   string
	remoteDir string
	artifacts []string
	publisher *GitPublisher
	suite.Suite
}

func TestGitPublisher(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	suite.Run(t, new(gitPublisherSuite))
}

func (suite *gitPublisherSuite) SetupTest() {
	suite.workDir = suite.T().TempDir()
	suite.remoteDir = suite.T().TempDir()
	suite.artifacts = []string{"current_firefighter_I_classes.json", "docs/index.html"}

	suite.runGit(suite.remoteDir, "init", "--bare", "--initial-branch=main", ".")
	suite.runGit(suite.workDir, "init", "--initial-branch=main", ".")
	suite.runGit(suite.workDir, "remote", "add", "origin", suite.remoteDir)

	suite.writeArtifact(suite.artifacts[0], `[{"courseId": "FIRE-101"}]`)
	suite.writeArtifact(suite.artifacts[1], "<html>map v1</html>")
	suite.runGit(suite.workDir, "add", "-A")
	suite.runGit(suite.workDir,
		"-c", "user.name=test", "-c", "user.email=test@example.com",
		"commit", "-m", "initial",
	)
	suite.runGit(suite.workDir, "push", "origin", "main")

	suite.publisher = NewGitPublisher(suite.workDir, suite.artifacts, Publish{
		Remote:      "origin",
		Branch:      "main",
		AuthorName:  "refreshd-bot",
		AuthorEmail: "refreshd-bot@users.noreply.github.com",
		Message:     "Refresh class data and map",
	})
}

func (suite *gitPublisherSuite) runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		suite.T().Fatalf("git %v: %v: %s", args, err, output)
	}
	return strings.TrimSpace(string(output))
}

func (suite *gitPublisherSuite) writeArtifact(name, content string) {
	path := filepath.Join(suite.workDir, name)
	suite.NoError(os.MkdirAll(filepath.Dir(path), os.ModePerm))
	suite.NoError(os.WriteFile(path, []byte(content), 0o644))
}

func drainOutput() (chan string, func() string) {
	outputCh := make(chan string, 64)
	done := make(chan struct{})
	var sb strings.Builder
	go func() {
		for out := range outputCh {
			sb.WriteString(out)
		}
		close(done)
	}()
	return outputCh, func() string {
		close(outputCh)
		<-done
		return sb.String()
	}
}

func (suite *gitPublisherSuite) TestGitPublisher_NoChange() {
	suite.Run("success - unchanged artifacts yield no commit", func() {
		// arrange
		before := suite.runGit(suite.workDir, "rev-parse", "HEAD")
		outputCh, collect := drainOutput()

		// act
		outcome, sha, err := suite.publisher.Publish(context.Background(), outputCh)
		output := collect()

		// assert
		suite.NoError(err)
		suite.Equal(store.OutcomeNoChange, outcome)
		suite.Nil(sha)
		suite.Contains(output, "No changes")
		suite.Equal(before, suite.runGit(suite.workDir, "rev-parse", "HEAD"))
	})
}

func (suite *gitPublisherSuite) TestGitPublisher_CommitAndPush() {
	suite.Run("success - a changed artifact is committed and pushed", func() {
		// arrange
		suite.writeArtifact(suite.artifacts[0], `[{"courseId": "FIRE-102"}]`)
		before := suite.runGit(suite.workDir, "rev-parse", "HEAD")
		outputCh, collect := drainOutput()

		// act
		outcome, sha, err := suite.publisher.Publish(context.Background(), outputCh)
		_ = collect()

		// assert
		suite.NoError(err)
		suite.Equal(store.OutcomeCommitted, outcome)
		suite.NotNil(sha)
		suite.NotEqual(before, *sha)
		suite.Equal(*sha, suite.runGit(suite.workDir, "rev-parse", "HEAD"))
		suite.Equal(*sha, suite.runGit(suite.remoteDir, "rev-parse", "main"))
		author := suite.runGit(suite.workDir, "log", "-1", "--format=%an <%ae>")
		suite.Equal("refreshd-bot <refreshd-bot@users.noreply.github.com>", author)
		message := suite.runGit(suite.workDir, "log", "-1", "--format=%s")
		suite.Equal("Refresh class data and map", message)
	})
	suite.Run("success - a stray staged file is not swept into the commit", func() {
		// arrange
		suite.writeArtifact(suite.artifacts[0], `[{"courseId": "FIRE-104"}]`)
		stray := filepath.Join(suite.workDir, "scratch.txt")
		suite.NoError(os.WriteFile(stray, []byte("scratch"), 0o644))
		suite.runGit(suite.workDir, "add", "scratch.txt")
		outputCh, collect := drainOutput()

		// act
		outcome, sha, err := suite.publisher.Publish(context.Background(), outputCh)
		_ = collect()

		// assert
		suite.NoError(err)
		suite.Equal(store.OutcomeCommitted, outcome)
		suite.NotNil(sha)
		committed := suite.runGit(suite.workDir, "show", "--name-only", "--format=", *sha)
		suite.Contains(committed, suite.artifacts[0])
		suite.NotContains(committed, "scratch.txt")
	})
	suite.Run("success - change in one artifact commits both staged paths", func() {
		// arrange
		suite.writeArtifact(suite.artifacts[1], "<html>map v2</html>")
		outputCh, collect := drainOutput()

		// act
		outcome, sha, err := suite.publisher.Publish(context.Background(), outputCh)
		_ = collect()

		// assert
		suite.NoError(err)
		suite.Equal(store.OutcomeCommitted, outcome)
		suite.NotNil(sha)
	})
}

func (suite *gitPublisherSuite) TestGitPublisher_PushFailure() {
	suite.Run("failure - push failure surfaces, artifacts are not rolled back", func() {
		// arrange
		suite.runGit(suite.workDir, "remote", "set-url", "origin", filepath.Join(suite.T().TempDir(), "missing"))
		suite.writeArtifact(suite.artifacts[0], `[{"courseId": "FIRE-103"}]`)
		outputCh, collect := drainOutput()

		// act
		_, _, err := suite.publisher.Publish(context.Background(), outputCh)
		_ = collect()

		// assert
		suite.Error(err)
		var pubErr PublishError
		suite.ErrorAs(err, &pubErr)
		suite.Equal("push", pubErr.Op)
		b, readErr := os.ReadFile(filepath.Join(suite.workDir, suite.artifacts[0]))
		suite.NoError(readErr)
		suite.Equal(`[{"courseId": "FIRE-103"}]`, string(b))
	})
}

func TestGitPublisher_PublishErrorMessage(t *testing.T) {
	t.Run("success - publish error names the failing operation", func(t *testing.T) {
		// arrange
		err := PublishError{Op: "push", Err: assert.AnError}

		// assert
		assert.Contains(t, err.Error(), "push")
		assert.ErrorIs(t, err, assert.AnError)
	})
}
