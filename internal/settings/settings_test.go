package settings

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_ReadDotenv(t *testing.T) {
	t.Run("success - .env files is read into env variables", func(t *testing.T) {
		// arrange
		testDotEnvFile := ".env.test"
		f, err := os.Create(testDotEnvFile)
		if err != nil {
			t.Error(err)
		}
		lines := []string{
			`#COMMENTED=asdf`,
			`REFRESHD_TEST=1234`,
			``,
			`REFRESHD_TEST2= 2345 `,
		}
		for _, line := range lines {
			f.Write([]byte(line + "\n"))
		}
		f.Close()
		defer os.Remove(testDotEnvFile)

		// act
		ReadDotenv(testDotEnvFile)

		// assert
		assert.Equal(t, os.Getenv("REFRESHD_TEST"), "1234")
		assert.Equal(t, os.Getenv("REFRESHD_TEST2"), "2345")
	})
}

func TestSettings_NewSettings(t *testing.T) {
	t.Run("success - port is prefixed with a colon", func(t *testing.T) {
		// arrange
		os.Setenv("REFRESHD_PORT", "8090")
		defer os.Unsetenv("REFRESHD_PORT")

		// act
		s := NewSettings()

		// assert
		assert.Equal(t, ":8090", s.Port)
	})
	t.Run("success - defaults are applied", func(t *testing.T) {
		// act
		s := NewSettings()

		// assert
		assert.Equal(t, "refresh.yml", s.ScriptPath)
		assert.Equal(t, "06:00", s.ScheduleUTC)
	})
}
