// Package slogutil persists the obfuscation Orchestrator's non-fatal
// warning trail to a size-rotated file, so ambiguous_ownership and
// dynamic_name_uncertain events from a long run survive independent of
// stdout buffering.
package slogutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WarningLog is the rotating sink warning events are appended to.
type WarningLog struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	file       *os.File
	written    int64
}

// OpenWarningLog opens (creating parent directories as needed) the warning
// log at path. The active file rotates to <path>.1, <path>.2, ... once it
// passes maxSize bytes; at most maxBackups rotated files are kept. maxSize
// of 0 disables rotation.
func OpenWarningLog(path string, maxSize int64, maxBackups int) (*WarningLog, error) {
	w := &WarningLog{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WarningLog) reopen() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// Record appends one warning entry: a UTC timestamp, the warning code
// ("ambiguous_ownership" or "dynamic_name_uncertain"), the file and line it
// was raised at, and its message.
func (w *WarningLog) Record(code, file string, line int, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := fmt.Sprintf("%s [%s] %s:%d %s\n",
		time.Now().UTC().Format(time.RFC3339), code, file, line, message)

	if w.maxSize > 0 && w.written+int64(len(entry)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	n, err := w.file.WriteString(entry)
	w.written += int64(n)
	return err
}

func (w *WarningLog) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	for n := w.maxBackups; n >= 1; n-- {
		from := w.backupName(n)
		if n == w.maxBackups {
			os.Remove(from)
			continue
		}
		if _, err := os.Stat(from); err == nil {
			os.Rename(from, w.backupName(n+1))
		}
	}

	if w.maxBackups > 0 {
		os.Rename(w.path, w.backupName(1))
	} else {
		os.Remove(w.path)
	}

	w.written = 0
	return w.reopen()
}

func (w *WarningLog) backupName(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// Close closes the underlying file.
func (w *WarningLog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
