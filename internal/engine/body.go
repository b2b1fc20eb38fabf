package engine

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Body is a materialized response body.
type Body struct {
	mode BodyMode
	data []byte
}

// NewBody wraps already materialized data.
func NewBody(mode BodyMode, data []byte) Body {
	return Body{mode: mode, data: data}
}

// Mode returns how the body was materialized.
func (b Body) Mode() BodyMode {
	return b.mode
}

// Bytes returns the body bytes. In text mode they are valid UTF-8.
func (b Body) Bytes() []byte {
	return b.data
}

// Text returns the body as a string.
func (b Body) Text() string {
	return string(b.data)
}

// Len returns the body length in bytes.
func (b Body) Len() int {
	return len(b.data)
}

// bodyReader is the one-shot consumer of a response body.
type bodyReader struct {
	body        io.ReadCloser
	contentType string
	// empty is set for responses that carry no body by definition.
	empty    bool
	consumed atomic.Bool
}

func newBodyReader(resp *http.Response) *bodyReader {
	body := resp.Body
	if body == nil {
		body = http.NoBody
	}

	return &bodyReader{
		body:        body,
		contentType: resp.Header.Get("Content-Type"),
		empty:       hasNoBody(resp),
	}
}

// hasNoBody reports whether resp answers a HEAD request or has a status that forbids content.
func hasNoBody(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}

	return resp.Request != nil && resp.Request.Method == http.MethodHead
}

// consume reads and closes the body. Only the first call reads; later calls fail with ErrBodyConsumed.
// A positive limit fails bodies larger than limit bytes with ErrBodyTooLarge.
func (r *bodyReader) consume(mode BodyMode, limit int64) (Body, error) {
	if !r.consumed.CompareAndSwap(false, true) {
		return Body{}, ErrBodyConsumed
	}

	defer r.body.Close() //nolint:errcheck // The body is fully read or abandoned; close errors carry no data.

	if r.empty {
		return NewBody(mode, []byte{}), nil
	}

	var source io.Reader = r.body
	if limit > 0 {
		source = io.LimitReader(r.body, limit+1)
	}

	data, err := io.ReadAll(source)
	if err != nil {
		return Body{}, err
	}

	if limit > 0 && int64(len(data)) > limit {
		return Body{}, ErrBodyTooLarge
	}

	if mode == BodyModeText {
		data = decodeText(data, r.contentType)
	}

	return NewBody(mode, data), nil
}

//nolint:gochecknoglobals // Immutable replacement sequence for invalid UTF-8.
var replacementChar = []byte(string(utf8.RuneError))

// decodeText converts data to UTF-8 using the charset parameter of contentType,
// defaulting to UTF-8. A byte order mark overrides the declared charset and is
// stripped. Undecodable sequences become U+FFFD.
func decodeText(data []byte, contentType string) []byte {
	if len(data) == 0 {
		return data
	}

	var declared encoding.Encoding = unicode.UTF8

	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label := params["charset"]; label != "" {
			if found, _ := charset.Lookup(label); found != nil {
				declared = found
			}
		}
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(declared.NewDecoder()), data)
	if err != nil {
		return bytes.ToValidUTF8(data, replacementChar)
	}

	return decoded
}
