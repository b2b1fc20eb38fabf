package http

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/oshokin/fetchcore/internal/logger"
	"github.com/oshokin/fetchcore/internal/utils"
)

// LogTransport is an http.RoundTripper that dumps every outbound hop at debug level.
// Each redirect hop passes through RoundTrip separately, so a followed
// redirect chain produces one log entry per hop.
type LogTransport struct {
	// next is the underlying HTTP round tripper.
	next http.RoundTripper
	// maxLogLength is the maximum length of a logged request or response dump.
	maxLogLength uint64
}

// ErrNilRequest indicates that the HTTP request is nil.
var ErrNilRequest = errors.New("request is nil")

// NewLogTransport wraps next with debug logging.
// If maxLogLength is 0, it defaults to DefaultMaxLogLength.
func NewLogTransport(next http.RoundTripper, maxLogLength uint64) http.RoundTripper {
	if maxLogLength == 0 {
		maxLogLength = DefaultMaxLogLength
	}

	return &LogTransport{
		next:         next,
		maxLogLength: maxLogLength,
	}
}

// RoundTrip executes a single HTTP transaction and logs the exchange when debug logging is on.
func (t *LogTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	if !logger.IsDebugLevel() {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	requestDump, outbound := t.dumpRequest(req)
	startTime := time.Now()

	resp, err := t.next.RoundTrip(outbound)

	duration := time.Since(startTime)

	if err != nil {
		logger.DebugKV(ctx, "Round trip failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration", duration,
			"error", err)

		return nil, err
	}

	logger.DebugKV(ctx, "Round trip completed",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"protocol", resp.Proto,
		"duration", duration,
		"request", requestDump,
		"response", t.dumpResponse(resp))

	return resp, nil
}

// dumpRequest dumps a clone of req and returns the request to send on.
// req itself is never modified: a replayable body is dumped from a fresh copy,
// otherwise the clone carrying the buffered body is sent instead of req.
func (t *LogTransport) dumpRequest(req *http.Request) (string, *http.Request) {
	dumped := req.Clone(req.Context())
	outbound := req

	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err.Error(), req
			}

			dumped.Body = body
		} else {
			outbound = dumped
		}
	}

	// DumpRequest swaps dumped.Body for an equivalent buffered reader.
	dump, err := httputil.DumpRequest(dumped, true)
	if err != nil {
		return err.Error(), outbound
	}

	return t.truncate(dump), outbound
}

func (t *LogTransport) dumpResponse(resp *http.Response) string {
	// Binary bodies are left out of the dump; text bodies are buffered and restored.
	contentType := resp.Header.Get("Content-Type")

	dump, err := httputil.DumpResponse(resp, utils.IsTextContentType(contentType))
	if err != nil {
		return err.Error()
	}

	return t.truncate(dump)
}

func (t *LogTransport) truncate(data []byte) string {
	if uint64(len(data)) > t.maxLogLength {
		return string(data[:t.maxLogLength]) + truncatedSuffix
	}

	return string(data)
}
