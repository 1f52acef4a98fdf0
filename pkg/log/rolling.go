package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	rollingFilePrefix = "ghmirror-"
	rollingFileSuffix = ".log"

	// maxRollingFileSize caps a single log file at 50MB before rolling
	maxRollingFileSize = 1024 * 1024 * 50
)

// RollingWriter is an io.Writer that writes numbered log files into a
// directory, rolling to a new file once the current one exceeds the size
// cap. Only the current and previous file are retained; older files are
// deleted as the writer rolls forward. Files from previous processes are
// removed on creation.
type RollingWriter struct {
	mu sync.Mutex

	dir     string
	file    *os.File
	current int
	written int64
}

// NewRollingWriter creates a rolling writer in the given directory. The
// directory is created if it does not exist.
func NewRollingWriter(dir string) (*RollingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Delete log files left behind by previous processes
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, rollingFilePrefix) && strings.HasSuffix(name, rollingFileSuffix) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}

	return &RollingWriter{dir: dir}, nil
}

// Write appends p to the current log file, rolling first if the size cap
// has been reached. Write failures are reported but leave the writer
// usable; the next write retries with a fresh file.
func (w *RollingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil || w.written > maxRollingFileSize {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if err != nil {
		w.file.Close()
		w.file = nil
		return n, fmt.Errorf("failed to write log file: %w", err)
	}
	return n, nil
}

// Close closes the current log file
func (w *RollingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RollingWriter) roll() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	w.current++
	w.written = 0

	// Keep current and previous only
	stale := filepath.Join(w.dir, fmt.Sprintf("%s%d%s", rollingFilePrefix, w.current-2, rollingFileSuffix))
	_ = os.Remove(stale)

	path := filepath.Join(w.dir, fmt.Sprintf("%s%d%s", rollingFilePrefix, w.current, rollingFileSuffix))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	w.file = f
	return nil
}
