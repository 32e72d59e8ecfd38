package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResource(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
}

func TestResourcesInitialRead(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "review.md")
	writeResource(t, dir, "commit.md")
	writeResource(t, dir, ".hidden")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	r := NewResources(dir)
	assert.Equal(t, []string{"commit", "review"}, r.Names())
}

func TestResourcesMissingDir(t *testing.T) {
	r := NewResources(filepath.Join(t.TempDir(), "absent"))
	assert.Empty(t, r.Names())
}

func TestResourcesReload(t *testing.T) {
	dir := t.TempDir()
	r := NewResources(dir)
	assert.Empty(t, r.Names())

	writeResource(t, dir, "new.md")
	r.Reload()
	assert.Equal(t, []string{"new"}, r.Names())
}
