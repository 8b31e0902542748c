package appdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDir, dir)

	require.NoError(t, Init())

	for _, p := range []string{CertsDir(), KeysDir(), LogsDir()} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.True(t, info.IsDir(), p)
	}

	data, err := os.ReadFile(ConfigPath())
	require.NoError(t, err)
	require.Equal(t, DefaultConfigYAML(), data)

	_, err = os.Stat(CertPath())
	require.NoError(t, err)
	info, err := os.Stat(CertKeyPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Ключ канала Init не создаёт.
	_, err = os.Stat(LinkKeyPath())
	require.True(t, os.IsNotExist(err))
}

func TestInitKeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDir, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 1\n"), 0600))
	require.NoError(t, Init())

	data, err := os.ReadFile(ConfigPath())
	require.NoError(t, err)
	require.Equal(t, "server:\n  port: 1\n", string(data))
}

func TestDirOverride(t *testing.T) {
	t.Setenv(EnvDir, "/tmp/manchester-node-a")
	require.Equal(t, "/tmp/manchester-node-a/keys/link.key", LinkKeyPath())
}
