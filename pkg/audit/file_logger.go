package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileAppender mirrors records as newline-delimited JSON with size based
// rotation.
type FileAppender struct {
	basePath string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	now     func() time.Time
}

// FileAppenderConfig configures the file appender
type FileAppenderConfig struct {
	BasePath string // directory holding audit.log and rotated files
	MaxSize  int64  // rotate once audit.log reaches this many bytes (default 100MB)
	MaxFiles int    // rotated files to keep (default 10)
}

const currentFileName = "audit.log"

// NewFileAppender opens (or creates) BasePath/audit.log for appending
func NewFileAppender(cfg FileAppenderConfig) (*FileAppender, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("audit file directory is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	a := &FileAppender{
		basePath: cfg.BasePath,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
		now:      time.Now,
	}
	if a.maxSize <= 0 {
		a.maxSize = 100 * 1024 * 1024
	}
	if a.maxFiles <= 0 {
		a.maxFiles = 10
	}

	if err := a.open(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *FileAppender) open() error {
	file, err := os.OpenFile(filepath.Join(a.basePath, currentFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	a.file = file
	a.encoder = json.NewEncoder(file)
	return nil
}

// Append writes rec as one JSON line
func (a *FileAppender) Append(ctx context.Context, rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return fmt.Errorf("audit log file is closed")
	}

	if info, err := a.file.Stat(); err == nil && info.Size() >= a.maxSize {
		if err := a.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	if err := a.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

func (a *FileAppender) rotate() error {
	if err := a.file.Close(); err != nil {
		return err
	}
	a.file = nil

	rotated := filepath.Join(a.basePath, fmt.Sprintf("audit-%s.log", a.now().UTC().Format("20060102T150405.000000000")))
	if err := os.Rename(filepath.Join(a.basePath, currentFileName), rotated); err != nil {
		return err
	}
	if err := a.prune(); err != nil {
		return err
	}
	return a.open()
}

// prune removes the oldest rotated files beyond maxFiles. Rotated names
// sort chronologically.
func (a *FileAppender) prune() error {
	files, err := filepath.Glob(filepath.Join(a.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= a.maxFiles {
		return nil
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-a.maxFiles] {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the current file
func (a *FileAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
