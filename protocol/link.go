package protocol

import (
	"errors"
	"io"
	"os"
	"sync"
)

// Link is the USB bulk endpoint pair as the bootloader sees it. Both calls
// are non-blocking on hardware: Transmit reports false while the IN endpoint
// is busy, Receive returns 0 when nothing has arrived.
type Link interface {
	Transmit(p []byte) bool
	Receive(p []byte) int
}

// StreamLink adapts a byte stream (serial port, pipe, socket) to a Link.
// Zero-length packets have no meaning on a stream and are dropped.
type StreamLink struct {
	rw io.ReadWriter

	mu  sync.Mutex
	err error
}

// NewStreamLink wraps rw.
func NewStreamLink(rw io.ReadWriter) *StreamLink {
	return &StreamLink{rw: rw}
}

// Transmit writes p in full. After a write error the link swallows every
// packet so a sender never spins on a dead stream; Err reports the cause.
func (l *StreamLink) Transmit(p []byte) bool {
	if len(p) == 0 || l.Err() != nil {
		return true
	}
	if _, err := l.rw.Write(p); err != nil {
		l.setErr(err)
	}
	return true
}

// Receive reads whatever is available. Timeouts and EOF read as 0 bytes: a
// serial port opened with a read timeout reports an empty read as EOF. Any
// other error is latched for Err.
func (l *StreamLink) Receive(p []byte) int {
	if l.Err() != nil {
		return 0
	}
	n, err := l.rw.Read(p)
	if err != nil && err != io.EOF && !isTimeout(err) {
		l.setErr(err)
	}
	if n < 0 {
		return 0
	}
	return n
}

// Err returns the first fatal stream error.
func (l *StreamLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *StreamLink) setErr(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// linkErr returns the latched error of links that have one.
func linkErr(l Link) error {
	if el, ok := l.(interface{ Err() error }); ok {
		return el.Err()
	}
	return nil
}
