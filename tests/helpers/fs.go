package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TempDirWithFiles creates a temporary directory containing one empty file
// per entry. Entries may contain slashes, in which case the intermediate
// directories are created too. The directory and the absolute paths of the
// created files are returned.
func TempDirWithFiles(t *testing.T, files []string) (string, []string) {
	dirPath := t.TempDir()
	filePaths := make([]string, 0, len(files))
	for _, filename := range files {
		filePaths = append(filePaths, CreateFile(t, dirPath, filename))
	}

	assert.Len(t, filePaths, len(files), "Expected file paths recorded to match length of requested files")
	return dirPath, filePaths
}

// CreateFile creates an empty file at the relative path under dir, creating
// any missing parent directories.
func CreateFile(t *testing.T, dir string, relPath string) string {
	path := filepath.Join(dir, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create parent directory")
	require.NoError(t, os.WriteFile(path, nil, 0o644), "failed to create temporary file in temporary dir")

	return path
}
