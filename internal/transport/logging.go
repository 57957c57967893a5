// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"specview/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary of
// every Nth frame at debug level.
type LoggingTransport struct {
	logger *log.Logger
	every  uint64
	count  atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport. every <= 0 logs every
// frame.
func NewLoggingTransport(logger *log.Logger, every int) *LoggingTransport {
	if logger == nil {
		logger = log.Nop()
	}
	logger.Infof("Using LoggingTransport")
	return &LoggingTransport{logger: logger, every: uint64(max(every, 1))}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.count.Add(1)
	if (n-1)%lt.every != 0 {
		return nil
	}

	switch v := data.(type) {
	case *Frame:
		lt.logger.Debugf("frame %d fresh=%t bass=%.3f pulse=%t bands=%v", v.Frame, v.Fresh, v.Bass, v.Pulse, v.Bands)
	default:
		lt.logger.Debugf("received %T: %+v", data, data)
	}
	return nil // Logging transport never fails to "send"
}

// Sent returns the number of payloads received.
func (lt *LoggingTransport) Sent() uint64 {
	return lt.count.Load()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.logger.Debugf("LoggingTransport closed after %d payloads", lt.count.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
