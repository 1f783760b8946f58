package payload

// Echo payload construction

import (
	"errors"
	"fmt"
)

// Pattern is the repeating block payloads are tiled from. Printable so an
// echoed buffer can be eyeballed in a hex dump.
const Pattern = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ErrInvalidSize is returned for payload sizes below one byte.
var ErrInvalidSize = errors.New("payload size must be at least 1 byte")

// Build returns a payload of exactly size bytes.
func Build(size int) ([]byte, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}

	buf := make([]byte, 0, size)
	for i := 0; i < size/len(Pattern); i++ {
		buf = append(buf, Pattern...)
	}
	buf = append(buf, Pattern[:size%len(Pattern)]...)
	return buf, nil
}

// Verify compares an echoed buffer against the payload that was sent.
// It returns the offset of the first differing byte, or -1 if they match.
func Verify(expected, got []byte) int {
	n := len(expected)
	if len(got) < n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		if expected[i] != got[i] {
			return i
		}
	}
	if len(expected) != len(got) {
		return n
	}
	return -1
}
