package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// RotationConfig configures a RotatingWriter.
type RotationConfig struct {
	Filename string

	// MaxSize in megabytes; zero disables rotation.
	MaxSize int64

	// MaxBackups is the number of rotated files kept; zero keeps all.
	MaxBackups int
}

// RotatingWriter is an io.WriteCloser over a log file that renames the file
// aside once it reaches MaxSize.
type RotatingWriter struct {
	mu     sync.Mutex
	config RotationConfig
	file   *os.File
	size   int64
	now    func() time.Time
}

// NewRotatingWriter opens (or creates) the log file.
func NewRotatingWriter(config *RotationConfig) (*RotatingWriter, error) {
	if config == nil || config.Filename == "" {
		return nil, fmt.Errorf("log filename is required")
	}
	w := &RotatingWriter{config: *config, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if limit := w.config.MaxSize * 1024 * 1024; limit > 0 && w.size > 0 && w.size+int64(len(p)) > limit {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the log file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Rotate moves the current file aside immediately.
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}
	if err := os.Rename(w.config.Filename, w.backupName()); err != nil && !os.IsNotExist(err) {
		return err
	}
	w.prune()
	return w.open()
}

func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.config.Filename), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(w.config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file, w.size = f, info.Size()
	return nil
}

func (w *RotatingWriter) split() (dir, prefix, ext string) {
	dir = filepath.Dir(w.config.Filename)
	base := filepath.Base(w.config.Filename)
	ext = filepath.Ext(base)
	return dir, strings.TrimSuffix(base, ext) + "-", ext
}

// backupName is "<name>-<UTC timestamp><ext>"; the nanosecond suffix keeps
// names unique and sortable when rotating more than once per second.
func (w *RotatingWriter) backupName() string {
	dir, prefix, ext := w.split()
	return filepath.Join(dir, prefix+w.now().UTC().Format("20060102T150405.000000000")+ext)
}

// Backups lists rotated files, oldest first.
func (w *RotatingWriter) Backups() []string {
	dir, prefix, ext := w.split()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if name := e.Name(); strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			names = append(names, filepath.Join(dir, name))
		}
	}
	slices.Sort(names)
	return names
}

func (w *RotatingWriter) prune() {
	if w.config.MaxBackups <= 0 {
		return
	}
	backups := w.Backups()
	for len(backups) > w.config.MaxBackups {
		if err := os.Remove(backups[0]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old log %s: %v\n", backups[0], err)
		}
		backups = backups[1:]
	}
}
