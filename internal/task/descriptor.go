package task

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type (
	// KeyStrategy controls how the store key for a video is
	// derived from its path.
	KeyStrategy string

	// Keyer derives store keys for paths under a root directory.
	Keyer struct {
		root     string
		strategy KeyStrategy
	}

	// Descriptor identifies one unit of work: a single video file and
	// the key its OCR result is stored under. Descriptors are immutable.
	Descriptor struct {
		ID   uuid.UUID
		Path string
		Key  string
	}
)

const (
	// KeyBasename uses the file name without its extension. Two videos with
	// the same name in different directories share a key.
	KeyBasename KeyStrategy = "basename"

	// KeyRelativePath uses a name-based UUID of the path relative to the
	// watched root, which is unique per file.
	KeyRelativePath KeyStrategy = "relpath"
)

func NewKeyer(root string, strategy KeyStrategy) Keyer {
	if strategy == "" {
		strategy = KeyBasename
	}

	return Keyer{root: filepath.Clean(root), strategy: strategy}
}

// Key returns the store key for the video at the given path.
func (keyer Keyer) Key(path string) string {
	if keyer.strategy == KeyRelativePath {
		rel, err := filepath.Rel(keyer.root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = path
		}

		return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file:///"+filepath.ToSlash(rel))).String()
	}

	return BaseIdentifier(path)
}

// Descriptor builds a new task descriptor for the path provided.
func (keyer Keyer) Descriptor(path string) Descriptor {
	return Descriptor{ID: uuid.New(), Path: path, Key: keyer.Key(path)}
}

// BaseIdentifier returns the file's base name with the extension removed.
func BaseIdentifier(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (key=%s)", d.Path, d.Key)
}
