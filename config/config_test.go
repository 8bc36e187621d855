package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8080", config.Port)
	assert.Equal(t, "exec", config.CloneBackend)
	assert.Equal(t, 10*time.Minute, config.SourceTimeout)
	assert.Equal(t, 2*time.Minute, config.EnvironmentTimeout)
	assert.Equal(t, 500*time.Millisecond, config.ProgressThrottle)
	assert.Equal(t, 70, config.SourceWeight)
	assert.Equal(t, 30, config.EnvironmentWeight)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT_TIMEOUT", "45s")
	t.Setenv("CLONE_BACKEND", "docker")
	t.Setenv("SOURCE_REPO_URL", "https://mirror.example.test/odoo.git")

	config, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, config.EnvironmentTimeout)
	assert.Equal(t, "docker", config.CloneBackend)
	assert.Equal(t, "https://mirror.example.test/odoo.git", config.SourceRepositoryURL)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CLONE_BACKEND", "ssh")
	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel("chatty"))
}
