// Package textstream decodes a streamed UTF-8 response body into text fragments.
package textstream

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

const DefaultBufferSize = 4096

// Decoder is an incremental UTF-8 decoder. Incomplete trailing sequences are
// held back until the next Decode call; invalid bytes become U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text decodable from the pending bytes plus p. With final
// set, any remaining partial sequence is flushed as a replacement character.
func (d *Decoder) Decode(p []byte, final bool) (string, error) {
	src := make([]byte, 0, len(d.pending)+len(p))
	src = append(src, d.pending...)
	src = append(src, p...)
	d.pending = d.pending[:0]
	if len(src) == 0 {
		return "", nil
	}

	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	nDst, nSrc, err := d.t.Transform(dst, src, final)
	switch {
	case err == nil:
	case errors.Is(err, transform.ErrShortSrc) && !final:
		d.pending = append(d.pending, src[nSrc:]...)
	default:
		return "", fmt.Errorf("decode utf-8: %w", err)
	}
	return string(dst[:nDst]), nil
}

// Pending reports how many bytes are buffered awaiting the rest of a sequence.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Fragments returns a lazy sequence of decoded fragments read from body. Each
// range over the sequence starts a fresh decoder; it does not resume an
// earlier iteration. A nil body yields a single ErrStream error.
func Fragments(body io.Reader, bufSize int) iter.Seq2[string, error] {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return func(yield func(string, error) bool) {
		if body == nil {
			yield("", domain.WrapError(domain.ErrStream, "read description stream", errors.New("response has no readable body")))
			return
		}

		dec := NewDecoder()
		buf := make([]byte, bufSize)
		for {
			n, readErr := body.Read(buf)
			final := errors.Is(readErr, io.EOF)
			if n > 0 || final {
				text, err := dec.Decode(buf[:n], final)
				if err != nil {
					yield("", domain.WrapError(domain.ErrStream, "decode description stream", err))
					return
				}
				if text != "" && !yield(text, nil) {
					return
				}
			}
			if final {
				return
			}
			if readErr != nil {
				yield("", domain.WrapError(domain.ErrStream, "read description stream", readErr))
				return
			}
		}
	}
}

// ReadAll drains body and returns the concatenation of all fragments.
func ReadAll(body io.Reader) (string, error) {
	var out []byte
	for fragment, err := range Fragments(body, DefaultBufferSize) {
		if err != nil {
			return string(out), err
		}
		out = append(out, fragment...)
	}
	return string(out), nil
}

// Splitter binds Fragments to a fixed read buffer size.
type Splitter struct {
	BufferSize int
}

func (s Splitter) Fragments(body io.Reader) iter.Seq2[string, error] {
	return Fragments(body, s.BufferSize)
}
