package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const currentLogName = "audit.log"

// FileLogger appends audit events as JSON lines, rotating by size
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64 // Max file size in bytes before rotation
	maxFiles int   // Max number of rotated files to keep
	now      func() time.Time
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of files to keep (default: 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/tenantguard/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		now:      time.Now,
	}
	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

// openLogFile opens or creates the current log file, rotating it first if
// it is already full
func (l *FileLogger) openLogFile() error {
	filename := filepath.Join(l.basePath, currentLogName)

	if l.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

func (l *FileLogger) rotateFile() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	timestamp := l.now().UTC().Format("2006-01-02-15-04-05.000000000")
	rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", timestamp))
	if err := os.Rename(filepath.Join(l.basePath, currentLogName), rotated); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	return l.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest rotated files beyond maxFiles. Rotated
// names embed a sortable timestamp.
func (l *FileLogger) cleanupOldFiles() error {
	files, err := l.RotatedFiles()
	if err != nil {
		return err
	}
	if len(files) <= l.maxFiles {
		return nil
	}

	var errs []error
	for _, file := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(file); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RotatedFiles lists rotated log files, oldest first
func (l *FileLogger) RotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Log appends event to the current file
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("audit log is closed")
	}

	if l.rotate {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.openLogFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Close closes the file logger
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// ReadLogs reads up to count events from the current file. A count of zero
// reads everything.
func (l *FileLogger) ReadLogs(count int) ([]*Event, error) {
	file, err := os.Open(filepath.Join(l.basePath, currentLogName))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*Event
	decoder := json.NewDecoder(file)
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)

		if count > 0 && len(events) >= count {
			break
		}
	}
	return events, nil
}
