package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hls2mp4/internal/domain/conversion"
)

// Store manages the directory that holds converted artifacts.
type Store struct {
	Dir string
}

// NewStore creates filesystem adapter rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// EnsureDir creates the managed directory when absent.
func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.Dir, 0o755)
}

// ReservePath maps a job identifier to its artifact path. Nothing is created on disk.
func (s *Store) ReservePath(jobID string) string {
	return filepath.Join(s.Dir, filepath.Base(jobID)+conversion.ArtifactExt)
}

// Exists reports whether path is a regular file inside the managed directory.
func (s *Store) Exists(path string) bool {
	if !isWithinDir(s.Dir, path) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Open opens an artifact for streaming.
func (s *Store) Open(path string) (*os.File, error) {
	if !isWithinDir(s.Dir, path) {
		return nil, fmt.Errorf("%w: %s is outside %s", conversion.ErrArtifactNotFound, path, s.Dir)
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", conversion.ErrArtifactNotFound, filepath.Base(path))
		}
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s is not a file", conversion.ErrArtifactNotFound, filepath.Base(path))
	}
	return file, nil
}

// List returns the entries of the managed directory, oldest first.
func (s *Store) List() ([]conversion.Artifact, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	artifacts := make([]conversion.Artifact, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		artifacts = append(artifacts, conversion.Artifact{
			Name:       entry.Name(),
			Path:       filepath.Join(s.Dir, entry.Name()),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModifiedAt.Before(artifacts[j].ModifiedAt)
	})
	return artifacts, nil
}

// DeleteIfOlderThan removes path when its modification time is more than threshold before now.
// A file that is already gone counts as not deleted and is not an error.
func (s *Store) DeleteIfOlderThan(path string, threshold time.Duration, now time.Time) (bool, error) {
	if !isWithinDir(s.Dir, path) {
		return false, fmt.Errorf("refusing to delete %s outside %s", path, s.Dir)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	artifact := conversion.Artifact{Name: info.Name(), Path: path, Size: info.Size(), ModifiedAt: info.ModTime()}
	if !artifact.Expired(threshold, now) {
		return false, nil
	}

	if info.IsDir() {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isWithinDir(basePath, targetPath string) bool {
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return false
	}
	return true
}
