// Package iox provides I/O helpers for HTTP bodies and resource cleanup.
package iox

import (
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned by ReadAllLimit when the input exceeds the limit.
var ErrTooLarge = errors.New("input exceeds size limit")

// drainLimit caps how much of an unread body DrainClose consumes.
const drainLimit = 64 << 10

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(a)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DrainClose reads and discards up to 64 KiB of rc, then closes it, so an
// HTTP keep-alive connection can be reused after an early return.
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, drainLimit))
	_ = rc.Close()
}

// ReadAllLimit reads r to EOF. It fails with ErrTooLarge instead of
// silently truncating when r holds more than limit bytes.
func ReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}
