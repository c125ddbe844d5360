package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// PartSuffix marks a file that is still being written
const PartSuffix = ".part"

// Manager writes files atomically and counts what it saved
type Manager struct {
	outputDir string
	saved     int
	bytes     int64
	mu        sync.RWMutex
}

// NewManager creates the output directory and returns a manager for it
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// Save creates path through WriteAtomic and counts the result
func (m *Manager) Save(path string, fill func(w io.Writer) error) error {
	n, err := WriteAtomic(path, fill)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.saved++
	m.bytes += n
	m.mu.Unlock()
	return nil
}

// WriteAtomic lets fill write "<path>.part" and renames it to path once the
// data is synced. On any failure the partial file is removed and path is
// left untouched. It returns the number of bytes written.
func WriteAtomic(path string, fill func(w io.Writer) error) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := path + PartSuffix
	out, err := os.Create(tempFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	counter := &countingWriter{w: out}
	err = fill(counter)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, err
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return counter.n, nil
}

// Exists reports whether a complete file is present at path
func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Dir returns the output directory
func (m *Manager) Dir() string {
	return m.outputDir
}

// Saved returns how many files this manager wrote and their total size
func (m *Manager) Saved() (files int, bytes int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saved, m.bytes
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
