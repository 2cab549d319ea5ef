package sourcecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, root, name string, uploads ...string) {
	t.Helper()
	for _, u := range uploads {
		p := filepath.Join(root, name, u)
		require.NoError(t, os.MkdirAll(p, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(p, "main.py"), []byte("print()"), 0o644))
	}
}

func TestCleanKeepsLiveUpload(t *testing.T) {
	root := t.TempDir()
	seed(t, root, "ACME-Boot", "u1", "u2", "u3")
	d := Dir{Root: root}

	removed, err := d.Clean(context.Background(), "ACME-Boot", "u2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u3"}, removed)

	entries, err := os.ReadDir(filepath.Join(root, "ACME-Boot"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u2", entries[0].Name())
}

func TestCleanMissingMissionIsNoop(t *testing.T) {
	removed, err := Dir{Root: t.TempDir()}.Clean(context.Background(), "ghost", "")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPurge(t *testing.T) {
	root := t.TempDir()
	seed(t, root, "ACME-Boot", "u1")
	require.NoError(t, Dir{Root: root}.Purge(context.Background(), "ACME-Boot"))
	_, err := os.Stat(filepath.Join(root, "ACME-Boot"))
	assert.True(t, os.IsNotExist(err))
}

func TestRejectsTraversal(t *testing.T) {
	d := Dir{Root: t.TempDir()}
	require.Error(t, d.Purge(context.Background(), "../etc"))
	_, err := d.Clean(context.Background(), "..", "")
	require.Error(t, err)
}
