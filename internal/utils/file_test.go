package utils

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	assert.Equal(t, "b1c66a42-6f7d68ca", Stem("images/train/b1c66a42-6f7d68ca.jpg"))
	assert.Equal(t, "noext", Stem("noext"))
	assert.Equal(t, "a.b", Stem("a.b.png"))
	assert.Equal(t, "a.b.txt", LabelFilename("dir/a.b.png"))
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("x.JPG"))
	assert.True(t, IsImageFile("x.webp"))
	assert.False(t, IsImageFile("x.txt"))
}

func TestReadLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(p, []byte("a.jpg\n\n  b.jpg  \r\n"), 0o644))
	lines, err := ReadLines(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, lines)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sub", "out.txt")

	require.NoError(t, WriteAtomic(p, func(w io.Writer) error {
		_, err := io.WriteString(w, "hello")
		return err
	}))
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	boom := errors.New("boom")
	err = WriteAtomic(p, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// the previous content survives and no temporary file is left behind
	got, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	assert.True(t, FileExists(p))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(p))
}
