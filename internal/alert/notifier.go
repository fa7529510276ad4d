// Package alert handles sending run notifications.
package alert

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Notifier is the interface for sending alert messages.
type Notifier interface {
	Send(message string) error
	Close() error
}

// NoOpNotifier is a notifier that does nothing. It is used when alerting is disabled.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing and returns nil.
func (n *NoOpNotifier) Send(message string) error {
	return nil
}

// Close does nothing and returns nil.
func (n *NoOpNotifier) Close() error {
	return nil
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("notifier is closed")

// LogNotifier writes every message to a zap logger at warn level.
type LogNotifier struct {
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
	sent   int
}

// NewLogNotifier creates a notifier writing to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("alert")}
}

// Send logs message.
func (n *LogNotifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.sent++
	n.logger.Warn(message, zap.Int("seq", n.sent))
	return nil
}

// Close stops further sends and flushes the logger.
func (n *LogNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	_ = n.logger.Sync() // stderr sync fails on some platforms
	return nil
}
