// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	want := []string{"empty road", "heavy traffic", "normal traffic"}
	require.NoError(t, Write(path, want))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "empty road\nheavy traffic\nnormal traffic\n", string(contents))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, IsSorted(got))
	assert.Equal(t, 1, Index(got, "heavy traffic"))
	assert.Equal(t, -1, Index(got, "emergency vehicle"))
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
		return path
	}

	// Windows line endings and trailing empty lines.
	got, err := Read(write("crlf.txt", "b\r\na \r\n\r\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got)
	assert.False(t, IsSorted(got))

	// Empty line in the middle shifts indices: error.
	_, err = Read(write("hole.txt", "a\n\nb\n"))
	require.Error(t, err)

	_, err = Read(write("empty.txt", "\n\n"))
	require.Error(t, err)

	_, err = Read(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)

	// Index prefixes.
	path := write("indexed.txt", "0 empty road\n1 heavy traffic\n12 x\n")
	got, err = ReadWithOptions(path, Options{StripIndexPrefix: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"empty road", "heavy traffic", "x"}, got)
	got, err = Read(path)
	require.NoError(t, err)
	assert.Equal(t, "0 empty road", got[0])
	assert.Equal(t, "4x4", stripIndexPrefix("4x4"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate([]string{"a", "b"}, 2))
	require.Error(t, Validate(nil, 0))
	require.Error(t, Validate([]string{"a", "b"}, 3))
	require.Error(t, Validate([]string{"a", "a"}, 2))
	require.Error(t, Validate([]string{"a", " "}, 2))
	require.Error(t, Validate([]string{"a", "b\nc"}, 2))
	require.Error(t, Write(filepath.Join(t.TempDir(), "x.txt"), []string{"a", "a"}))
}

func TestFromDirectory(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"normal traffic", "empty road", ".cache", "heavy traffic"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), []byte("not a class"), 0o644))

	got, err := FromDirectory(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"empty road", "heavy traffic", "normal traffic"}, got)
	assert.True(t, IsSorted(got))

	_, err = FromDirectory(t.TempDir())
	require.Error(t, err)
}
