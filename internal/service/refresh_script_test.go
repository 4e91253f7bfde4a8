package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshScript_ReadRefreshScript(t *testing.T) {
	t.Run("success - script is parsed with defaults applied", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		path := filepath.Join(dir, "refresh.yml")
		script := `
steps:
  - step: class data
    command: ./generate-classes
  - step: map
    command: ./generate-map
    timeout_seconds: 600
artifacts:
  - current_firefighter_I_classes.json
  - docs/index.html
`
		err := os.WriteFile(path, []byte(script), 0o644)
		assert.NoError(t, err)

		// act
		rs, err := ReadRefreshScript(path)

		// assert
		assert.NoError(t, err)
		assert.Len(t, rs.Steps, 2)
		assert.Equal(t, int64(3600), rs.Steps[0].TimeoutSeconds)
		assert.Equal(t, int64(600), rs.Steps[1].TimeoutSeconds)
		assert.Equal(t, "origin", rs.Publish.Remote)
		assert.Equal(t, "main", rs.Publish.Branch)
		assert.Equal(t, "refreshd-bot", rs.Publish.AuthorName)
	})
	t.Run("failure - script without steps is rejected", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		path := filepath.Join(dir, "refresh.yml")
		err := os.WriteFile(path, []byte("artifacts:\n  - a.json\n"), 0o644)
		assert.NoError(t, err)

		// act
		rs, err := ReadRefreshScript(path)

		// assert
		assert.Error(t, err)
		assert.Nil(t, rs)
	})
	t.Run("failure - step without command is rejected", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		path := filepath.Join(dir, "refresh.yml")
		script := `
steps:
  - step: class data
artifacts:
  - a.json
`
		err := os.WriteFile(path, []byte(script), 0o644)
		assert.NoError(t, err)

		// act
		_, err = ReadRefreshScript(path)

		// assert
		assert.Error(t, err)
	})
	t.Run("failure - script without artifacts is rejected", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		path := filepath.Join(dir, "refresh.yml")
		script := `
steps:
  - step: class data
    command: ./generate-classes
`
		err := os.WriteFile(path, []byte(script), 0o644)
		assert.NoError(t, err)

		// act
		_, err = ReadRefreshScript(path)

		// assert
		assert.Error(t, err)
	})
	t.Run("failure - missing file", func(t *testing.T) {
		// act
		_, err := ReadRefreshScript(filepath.Join(t.TempDir(), "nope.yml"))

		// assert
		assert.Error(t, err)
	})
}
