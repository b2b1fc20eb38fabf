package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// Header is one name/value pair. Header lists keep order and allow duplicates.
type Header struct {
	// Name is the header field name.
	Name string
	// Value is the header field value.
	Value string
}

// Payload is an optional request body. The zero value is an absent body,
// which is distinct from a present body of zero length.
type Payload struct {
	data    []byte
	present bool
}

// NoPayload returns an absent body.
func NoPayload() Payload {
	return Payload{}
}

// BytesPayload returns a present body holding data, which may be empty.
func BytesPayload(data []byte) Payload {
	if data == nil {
		data = []byte{}
	}

	return Payload{data: data, present: true}
}

// TextPayload returns a present body holding text, which may be empty.
func TextPayload(text string) Payload {
	return BytesPayload([]byte(text))
}

// IsPresent reports whether a body was given.
func (p Payload) IsPresent() bool {
	return p.present
}

// Bytes returns the body bytes, nil for an absent body.
func (p Payload) Bytes() []byte {
	return p.data
}

// Len returns the body length.
func (p Payload) Len() int {
	return len(p.data)
}

// RedirectPolicy controls what happens when the server answers with a redirect.
type RedirectPolicy uint8

const (
	// RedirectFollow follows redirects up to the configured maximum.
	RedirectFollow RedirectPolicy = iota
	// RedirectManual returns the redirect response itself.
	RedirectManual
	// RedirectError fails the request on the first redirect.
	RedirectError
)

// String returns the policy name.
func (p RedirectPolicy) String() string {
	switch p {
	case RedirectFollow:
		return "follow"
	case RedirectManual:
		return "manual"
	case RedirectError:
		return "error"
	default:
		return fmt.Sprintf("RedirectPolicy(%d)", uint8(p))
	}
}

// ParseRedirectPolicy converts a policy name; an empty name selects RedirectFollow.
func ParseRedirectPolicy(value string) (RedirectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "follow":
		return RedirectFollow, nil
	case "manual":
		return RedirectManual, nil
	case "error":
		return RedirectError, nil
	default:
		return RedirectFollow, fmt.Errorf("invalid redirect policy '%s'", value)
	}
}

// Request describes one HTTP transaction.
type Request struct {
	// Method is the HTTP method; standard methods are matched case-insensitively.
	Method string
	// URL is the absolute http or https URL.
	URL string
	// Headers are attached in order, duplicates included.
	Headers []Header
	// Body is the optional request body.
	Body Payload
	// Redirect selects the redirect policy.
	Redirect RedirectPolicy
	// Credentials selects whether the pool's cookie jar is used; the zero value omits cookies.
	Credentials CredentialsMode
	// Timeout bounds the whole transaction; 0 falls back to Settings.RequestTimeout.
	Timeout time.Duration
}

//nolint:gochecknoglobals // Immutable lookup table of the methods registered in RFC 9110 and RFC 5789.
var standardMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// ParseMethod validates method as an HTTP token.
// Standard methods are upper-cased; other valid tokens are returned unchanged.
func ParseMethod(method string) (string, error) {
	if method == "" {
		return "", ErrEmptyMethod
	}

	// A method is a token, the same grammar as a header field name.
	if !httpguts.ValidHeaderFieldName(method) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	if upper := strings.ToUpper(method); upper != method {
		if _, ok := standardMethods[upper]; ok {
			return upper, nil
		}
	}

	return method, nil
}

// newHTTPRequest builds the outbound request. It performs no I/O.
func newHTTPRequest(ctx context.Context, method string, req *Request) (*http.Request, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedScheme, target.Scheme)
	}

	if target.Host == "" {
		return nil, fmt.Errorf("%w: missing host in '%s'", ErrInvalidURL, req.URL)
	}

	ctx = withCredentials(ctx, req.Credentials, target)

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, err
	}

	for _, header := range req.Headers {
		// net/http takes the Host header from Request.Host only.
		if strings.EqualFold(header.Name, "Host") {
			httpReq.Host = header.Value

			continue
		}

		httpReq.Header.Add(header.Name, header.Value)
	}

	attachPayload(httpReq, req.Body)

	return httpReq, nil
}

// attachPayload sets the body only when one is present, so that an absent
// body leaves Request.Body nil and no body is framed. A present empty body
// is sent chunked: with a zero Content-Length the transport would frame it
// exactly like an absent one.
func attachPayload(httpReq *http.Request, payload Payload) {
	if !payload.IsPresent() {
		return
	}

	data := payload.Bytes()
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	httpReq.Body, _ = httpReq.GetBody()

	if len(data) == 0 {
		httpReq.ContentLength = -1
		httpReq.TransferEncoding = []string{"chunked"}

		return
	}

	httpReq.ContentLength = int64(len(data))
}

type redirectPolicyKey struct{}

func withRedirectPolicy(ctx context.Context, policy RedirectPolicy) context.Context {
	return context.WithValue(ctx, redirectPolicyKey{}, policy)
}

func redirectPolicyFrom(ctx context.Context) RedirectPolicy {
	if policy, ok := ctx.Value(redirectPolicyKey{}).(RedirectPolicy); ok {
		return policy
	}

	return RedirectFollow
}
