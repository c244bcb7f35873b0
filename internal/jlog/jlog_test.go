// Public domain.

package jlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevelFromEnv(t *testing.T) {
	t.Setenv(LevelEnv, "debug")
	assert.Equal(t, logrus.DebugLevel, New().GetLevel())
	t.Setenv(LevelEnv, "bogus")
	assert.Equal(t, logrus.InfoLevel, New().GetLevel())
}

func TestConfigureInvalid(t *testing.T) {
	t.Setenv(LevelEnv, "")
	l := New()
	assert.Error(t, Configure(l, "loud", "json", "", 0))
	assert.Error(t, Configure(l, "info", "xml", "", 0))
}

func TestConfigureFile(t *testing.T) {
	t.Setenv(LevelEnv, "")
	path := filepath.Join(t.TempDir(), "joker.log")
	l := New()
	require.NoError(t, Configure(l, "warn", "text", path, 0))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	l.WithField("component", "test").Warn("written")
	l.Info("dropped")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "written")
	assert.Contains(t, string(b), "component=test")
	assert.NotContains(t, string(b), "dropped")
}

func TestConfigureEnvWins(t *testing.T) {
	t.Setenv(LevelEnv, "error")
	l := New()
	require.NoError(t, Configure(l, "debug", "json", "stderr", 0))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
}
