package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Empty(t, cfg.Project.RootPath)
		assert.Zero(t, cfg.Resolver.MaxSteps)
	})

	t.Run("yaml values are read", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := "project:\n  root_path: /srv/app\nresolver:\n  max_steps: 500\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/app", cfg.Project.RootPath)
		assert.Equal(t, 500, cfg.Resolver.MaxSteps)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("project:\n  root_path: /srv/app\n"), 0o644))
		t.Setenv("PYSCOPE_ROOT_PATH", "/srv/other")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/other", cfg.Project.RootPath)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("project: ["), 0o644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
