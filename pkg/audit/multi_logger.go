package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MultiLogger logs to multiple audit loggers simultaneously
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, len(loggers)+1),
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers. In async mode errors
// are collected for Errors instead of being returned.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if m.async {
		for _, logger := range m.loggers {
			m.wg.Add(1)
			go func(l Logger) {
				defer m.wg.Done()
				if err := l.Log(context.WithoutCancel(ctx), event); err != nil {
					select {
					case m.errChan <- err:
					default:
						// Channel full, drop error
					}
				}
			}(logger)
		}
		return nil
	}

	var errs []error
	for _, logger := range m.loggers {
		// Continue logging to other loggers even if one fails
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Errors drains the errors collected from async logging
func (m *MultiLogger) Errors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}
