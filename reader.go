package dataimport

import (
	"io"
	"unicode/utf8"
)

// reader.go wraps raw input sources so the CSV parsers never see a UTF-8
// BOM or invalid byte sequences, and so the streaming importer can track
// consumed bytes without materializing the file. All wrappers are
// O(buffer) memory.

// bomStrippingReader removes a leading UTF-8 BOM (0xEF 0xBB 0xBF), common
// in Windows spreadsheet exports.
type bomStrippingReader struct {
	r       io.Reader
	checked bool
	held    []byte
}

func newBOMStrippingReader(r io.Reader) *bomStrippingReader {
	return &bomStrippingReader{r: r}
}

func (b *bomStrippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var head [3]byte
		n, err := io.ReadFull(b.r, head[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
			// BOM consumed; fall through to a normal read.
		} else if n > 0 {
			b.held = append(b.held, head[:n]...)
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(b.held) > 0 {
		n := copy(p, b.held)
		b.held = b.held[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// utf8CleaningReader replaces invalid UTF-8 bytes with '?' as data flows
// through. A single replacement byte (rather than U+FFFD) keeps the output
// the same length as the input, so it can sanitize in place.
type utf8CleaningReader struct {
	r       io.Reader
	pending []byte // possible start of a multi-byte rune split across reads
}

func newUTF8CleaningReader(r io.Reader) *utf8CleaningReader {
	return &utf8CleaningReader{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (u *utf8CleaningReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, u.pending)
	u.pending = u.pending[:0]

	n, err := u.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	if ascii(p[:n]) {
		return n, err
	}
	return u.clean(p[:n], err == io.EOF), err
}

// clean rewrites buf in place, replacing invalid bytes. Unless atEOF, a
// trailing incomplete rune is saved for the next read instead of being
// judged invalid too early. Returns the number of bytes kept.
func (u *utf8CleaningReader) clean(buf []byte, atEOF bool) int {
	w := 0
	for i := 0; i < len(buf); {
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 {
			rest := buf[i:]
			if !atEOF && len(rest) < utf8.UTFMax && expectedRuneLen(rest[0]) > len(rest) {
				u.pending = append(u.pending, rest...)
				return w
			}
			buf[w] = '?'
			w++
			i++
			continue
		}
		copy(buf[w:], buf[i:i+size])
		w += size
		i += size
	}
	return w
}

func ascii(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// expectedRuneLen returns the byte length implied by a UTF-8 lead byte,
// or 0 for a bare continuation byte.
func expectedRuneLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// countingReader tracks bytes consumed from the underlying reader.
type countingReader struct {
	r     io.Reader
	count int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.count += int64(n)
	return n, err
}

// newImportReader stacks the wrappers in the required order: BOM stripping
// first, UTF-8 cleaning second, byte counting outermost.
func newImportReader(r io.Reader) *countingReader {
	return &countingReader{r: newUTF8CleaningReader(newBOMStrippingReader(r))}
}
