package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
storage:
  file: /tmp/fixedkv.db
buffer:
  pool_size: 64
tree:
  leaf_max: 4
  internal_max: 5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/fixedkv.db", cfg.Storage.File)
	require.Equal(t, 64, cfg.Buffer.PoolSize)
	require.Equal(t, 4, cfg.Tree.LeafMax)
	require.Equal(t, 5, cfg.Tree.InternalMax)
}

func TestLoad_FillsZeroValuesWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  file: x.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Greater(t, cfg.Buffer.PoolSize, 0)
	require.Greater(t, cfg.Tree.LeafMax, 0)
	require.Greater(t, cfg.Tree.InternalMax, 0)
}

func TestDefault(t *testing.T) {
	cfg := Default("a.db")
	require.Equal(t, "a.db", cfg.Storage.File)
	require.Greater(t, cfg.Buffer.PoolSize, 0)
}
