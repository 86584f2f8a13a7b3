package records

// streaming.go provides reader wrappers applied before CSV decoding:
//
//   - bomSkippingReader: Removes UTF-8 BOM (0xEF 0xBB 0xBF) from Windows files
//   - utf8Sanitizer: Replaces invalid UTF-8 bytes with '?'
//   - sizeLimitReader: Fails once more than a configured number of bytes is read
//
// Use wrapInput to apply all of them in the correct order.

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInputTooLarge is returned when the source exceeds the configured size limit.
var ErrInputTooLarge = errors.New("input too large")

// utf8Sanitizer wraps an io.Reader and replaces invalid UTF-8 bytes on the fly.
type utf8Sanitizer struct {
	reader io.Reader

	// Leftover bytes from previous read that may form a multi-byte sequence
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset

	if n == 0 {
		return 0, err
	}

	if isAllASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to hand out.
// Unless atEOF, an incomplete trailing sequence is held back in pending.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		if !atEOF && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			// '?' keeps the rewrite in place; U+FFFD would grow the buffer.
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}

	return write
}

// bomSkippingReader drops a leading UTF-8 BOM.
type bomSkippingReader struct {
	reader  io.Reader
	checked bool
	buf     [3]byte
	pending []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: r}
}

// Read implements io.Reader.
func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		if n == 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF {
			r.pending = nil
		} else {
			r.pending = r.buf[:n]
		}

		if err == io.EOF && len(r.pending) == 0 {
			return 0, io.EOF
		}
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// sizeLimitReader fails with ErrInputTooLarge after more than limit bytes.
// A non-positive limit disables the check.
type sizeLimitReader struct {
	reader    io.Reader
	limit     int64
	BytesRead int64
}

func newSizeLimitReader(r io.Reader, limit int64) *sizeLimitReader {
	return &sizeLimitReader{reader: r, limit: limit}
}

// Read implements io.Reader.
func (r *sizeLimitReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	if r.limit > 0 && r.BytesRead > r.limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrInputTooLarge, r.limit)
	}
	return n, err
}

// wrapInput applies, in order: size limiting on the raw bytes, BOM removal
// and UTF-8 sanitizing.
func wrapInput(r io.Reader, maxBytes int64) io.Reader {
	limited := newSizeLimitReader(r, maxBytes)
	return newUTF8Sanitizer(newBOMSkippingReader(limited))
}
