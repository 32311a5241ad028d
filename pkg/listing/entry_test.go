package listing

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("Core Functionality: classic directory line", func(t *testing.T) {
		entry, err := Parse("drwxr-xr-x 2 root wheel 1024 Nov 17 1993 lib")
		require.NoError(t, err)

		assert.Equal(t, DirectoryEntry{
			Mode:       "drwxr-xr-x",
			LinkCount:  2,
			Owner:      "root",
			Group:      "wheel",
			SizeBytes:  1024,
			ModifiedAt: "Nov 17 1993",
			Name:       "lib",
		}, entry)
		assert.True(t, entry.IsDir())
	})

	t.Run("Core Functionality: regular file with time of day", func(t *testing.T) {
		entry, err := Parse("-rw-r--r--   1 ftp      ftp        52428800 Mar  4 09:15 big.iso")
		require.NoError(t, err)

		assert.Equal(t, "Mar 4 09:15", entry.ModifiedAt)
		assert.Equal(t, int64(52428800), entry.SizeBytes)
		assert.Equal(t, "big.iso", entry.Name)
		assert.False(t, entry.IsDir())
	})

	t.Run("Input Validation: name with spaces is joined by single spaces", func(t *testing.T) {
		entry, err := Parse("-rw-r--r-- 1 u g 10 Jan 01  2020 my   holiday  photo.jpg")
		require.NoError(t, err)
		assert.Equal(t, "my holiday photo.jpg", entry.Name)
	})

	t.Run("Input Validation: symlink keeps arrow in name", func(t *testing.T) {
		entry, err := Parse("lrwxrwxrwx 1 root root 7 Jan 01 12:00 bin -> usr/bin")
		require.NoError(t, err)
		assert.Equal(t, "bin -> usr/bin", entry.Name)
		assert.False(t, entry.IsDir())
	})

	t.Run("Error Handling: too few fields", func(t *testing.T) {
		_, err := Parse("drwxr-xr-x 2 root wheel 1024 Nov 17 1993")

		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Contains(t, perr.Reason, "got 8")
	})

	t.Run("Error Handling: total header", func(t *testing.T) {
		_, err := Parse("total 48")
		var perr *ParseError
		assert.True(t, errors.As(err, &perr))
	})

	t.Run("Error Handling: non numeric size", func(t *testing.T) {
		_, err := Parse("-rw-r--r-- 1 u g big Jan 01 12:00 file")
		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "size is not a number", perr.Reason)
	})
}

func TestParse_NameReconstruction(t *testing.T) {
	names := []string{"a", "two words", "three little words", "x.tar.gz"}
	for _, name := range names {
		line := "-rw-r--r-- 1 owner group 0 Feb 29 2024 " + name
		entry, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, strings.Join(strings.Fields(name), " "), entry.Name)
		assert.NotEmpty(t, entry.Name)
	}
}

func TestIsTotalLine(t *testing.T) {
	assert.True(t, IsTotalLine("total 0"))
	assert.True(t, IsTotalLine("  total 1234  "))
	assert.False(t, IsTotalLine("total"))
	assert.False(t, IsTotalLine("-rw-r--r-- 1 u g 1 Jan 01 12:00 total"))
}

func TestReadLocalDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes  draft.txt"), []byte("hello"), 0644))
	require.NoError(t, os.Chmod(filepath.Join(dir, "notes  draft.txt"), 0644))

	entries, err := ReadLocalDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string]DirectoryEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}

	docs, ok := byName["docs"]
	require.True(t, ok)
	assert.True(t, docs.IsDir())
	assert.Len(t, docs.Mode, 10)

	note, ok := byName["notes  draft.txt"]
	require.True(t, ok, "exact local name must be preserved")
	assert.Equal(t, int64(5), note.SizeBytes)
	assert.Equal(t, "-rw-r--r--", note.Mode)
}

func TestFormatLine(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(p, make([]byte, 42), 0600))

	old := time.Date(2001, time.March, 5, 10, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(p, old, old))
	info, err := os.Stat(p)
	require.NoError(t, err)

	entry, err := Parse(FormatLine(info, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "Mar 5 2001", entry.ModifiedAt)
	assert.Equal(t, "-rw-------", entry.Mode)
	assert.Equal(t, int64(42), entry.SizeBytes)
}
