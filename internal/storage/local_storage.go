package storage

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var pageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// FileStorage reads page images from the local filesystem
type FileStorage struct {
	root string
}

// NewFileStorage serves pages under root. An empty root allows any path.
func NewFileStorage(root string) *FileStorage {
	if root != "" {
		root = filepath.Clean(root)
	}
	return &FileStorage{root: root}
}

func (s *FileStorage) GetPage(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	return decodePage(f)
}

func (s *FileStorage) resolve(path string) (string, error) {
	path = strings.TrimPrefix(path, "file://")
	if s.root == "" {
		return filepath.Clean(path), nil
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.root, path)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("page path %q is outside %s", path, s.root)
	}
	return full, nil
}

// ListPageFiles returns the PNG and JPEG files in dir sorted by name, which
// is the page order used by directory batches.
func ListPageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read page directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !pageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
