package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileOperations provides file system utilities on top of an afero.Fs
type FileOperations struct {
	fs afero.Fs
}

// NewFileOperationsOn creates a FileOperations on fsys
func NewFileOperationsOn(fsys afero.Fs) *FileOperations {
	return &FileOperations{fs: fsys}
}

// Fs returns the underlying filesystem
func (f *FileOperations) Fs() afero.Fs {
	return f.fs
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	return f.fs.MkdirAll(filepath.Dir(path), 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := f.fs.Stat(path)
	return !os.IsNotExist(err)
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadFile reads a whole file, refusing anything larger than maxSize
func (f *FileOperations) ReadFile(path string, maxSize int64) ([]byte, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%s is too large (%d bytes, limit %d)", path, info.Size(), maxSize)
	}
	return afero.ReadFile(f.fs, path)
}

// CreatePartialFile creates or truncates the .part file for outputPath
func (f *FileOperations) CreatePartialFile(outputPath string) (afero.File, string, error) {
	partPath := outputPath + ".part"
	file, err := f.fs.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create partial file: %w", err)
	}
	return file, partPath, nil
}

// AtomicRename performs an atomic file rename operation
func (f *FileOperations) AtomicRename(oldPath, newPath string) error {
	return f.fs.Rename(oldPath, newPath)
}

// Remove deletes a file, ignoring a missing one
func (f *FileOperations) Remove(path string) error {
	if err := f.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// UniquePath returns path, or "name (n).ext" for the first n that is free
func (f *FileOperations) UniquePath(path string) string {
	if !f.FileExists(path) && !f.FileExists(path+".part") {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !f.FileExists(candidate) && !f.FileExists(candidate+".part") {
			return candidate
		}
	}
}
