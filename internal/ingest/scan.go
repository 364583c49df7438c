package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

// Filter decides whether a path is an eligible video, based
// solely on its extension.
type Filter struct {
	extensions map[string]struct{}
}

func NewFilter(extensions []string) Filter {
	filter := Filter{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		filter.extensions[ext] = struct{}{}
	}

	return filter
}

// Matches returns true if the extension of the path provided is eligible.
func (filter Filter) Matches(path string) bool {
	_, ok := filter.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Walk recursively walks the tree at root, calling fn for every eligible
// file found. Directories which cannot be read are logged and skipped, along
// with everything beneath them. An error returned by fn aborts the walk.
func Walk(root string, filter Filter, fn func(path string) error) error {
	err := filepath.WalkDir(root, func(path string, dir fs.DirEntry, err error) error {
		if err != nil {
			if dir == nil || path == root {
				return err
			}

			if errors.Is(err, fs.ErrPermission) {
				log.Emit(logger.WARNING, "Permission denied: %s\n", path)
			} else {
				log.Emit(logger.WARNING, "Skipping %s: %v\n", path, err)
			}

			if dir.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if dir.IsDir() || !filter.Matches(dir.Name()) {
			return nil
		}

		return fn(path)
	})

	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return nil
}

// CountEligible performs a fresh walk of the tree and returns the number
// of eligible files found.
func CountEligible(root string, filter Filter) (int64, error) {
	var count int64
	err := Walk(root, filter, func(string) error {
		count++
		return nil
	})

	return count, err
}
