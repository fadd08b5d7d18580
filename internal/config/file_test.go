package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	fc, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Empty(t, fc.Backs)
	require.Equal(t, 0, fc.This)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	fc := &FileConfig{Backs: []string{"a:1", "b:2"}, Addrs: []string{"a:2", "b:3"}, This: 1}
	require.NoError(t, fc.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, fc, loaded)
}
