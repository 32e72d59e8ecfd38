package session

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newListingFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/work/src", 0755))
	require.NoError(t, fs.MkdirAll("/work/docs", 0755))
	require.NoError(t, afero.WriteFile(fs, "/work/readme.md", []byte("hi"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/work/a.go", []byte("package a"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/secret.txt", []byte("nope"), 0644))
	return fs
}

func TestListDirsFirstThenName(t *testing.T) {
	l := NewListerFs(newListingFs(t), "/work")

	entries, err := l.List(".")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "docs", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "src", entries[1].Name)
	assert.Equal(t, "a.go", entries[2].Name)
	assert.Equal(t, "readme.md", entries[3].Name)
	assert.Equal(t, int64(9), entries[2].Size)
}

func TestListSubdirectory(t *testing.T) {
	l := NewListerFs(newListingFs(t), "/work")

	entries, err := l.List("src")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListEscapeClampedToRoot(t *testing.T) {
	l := NewListerFs(newListingFs(t), "/work")

	// Paths that try to climb out resolve back to the root.
	entries, err := l.List("../..")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.NotEqual(t, "secret.txt", e.Name)
	}
}

func TestListMissingDirectory(t *testing.T) {
	l := NewListerFs(newListingFs(t), "/work")
	_, err := l.List("nope")
	assert.Error(t, err)
}
