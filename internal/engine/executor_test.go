package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method  string
	outcome string
}

type recordingObserver struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (o *recordingObserver) ObserveRequest(method, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requests = append(o.requests, recordedRequest{method: method, outcome: outcome})
}

func (o *recordingObserver) recorded() []recordedRequest {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]recordedRequest(nil), o.requests...)
}

// newTestExecutor builds an executor with its own runtime and pool.
func newTestExecutor(t *testing.T, settings Settings, options ...ExecutorOption) *Executor {
	t.Helper()

	if settings.WorkerThreads == 0 {
		settings.WorkerThreads = 4
	}

	pool, err := NewPool(settings)
	require.NoError(t, err)

	rt := NewRuntime(settings.WorkerThreads)

	t.Cleanup(func() {
		rt.Close()
		pool.CloseIdleConnections()
	})

	return NewExecutor(rt, pool, options...)
}

// newCountingServer starts a server that counts accepted connections.
func newCountingServer(t *testing.T, handler http.Handler) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var connections atomic.Int64

	server := httptest.NewUnstartedServer(handler)
	server.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			connections.Add(1)
		}
	}
	server.Start()
	t.Cleanup(server.Close)

	return server, &connections
}

// TestExecute_Basic tests a plain GET with a custom response header.
func TestExecute_Basic(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Test", "1")
		_, _ = io.WriteString(w, "hello")
	}))
	t.Cleanup(server.Close)

	observer := &recordingObserver{}
	executor := newTestExecutor(t, Settings{}, WithRequestObserver(observer))

	result, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "OK", result.StatusText)
	assert.Equal(t, "hello", result.Body.Text())
	assert.Equal(t, "1", result.Headers.Get("x-test"))
	assert.Contains(t, result.Headers, Header{Name: "x-test", Value: "1"})
	assert.Equal(t, server.URL, result.URL)
	assert.False(t, result.Redirected)
	assert.Equal(t, "basic", result.Type)

	assert.Equal(t, []recordedRequest{{method: "GET", outcome: "ok"}}, observer.recorded())
}

// TestExecute_FollowRedirect tests that redirects are followed and the final URL is reported.
func TestExecute_FollowRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "moved here")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{})

	result, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL + "/old"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, server.URL+"/new", result.URL)
	assert.True(t, result.Redirected)
	assert.Equal(t, "moved here", result.Body.Text())
}

// TestExecute_RedirectPolicies tests manual and error redirect handling.
func TestExecute_RedirectPolicies(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/target" {
			_, _ = io.WriteString(w, "target")

			return
		}

		http.Redirect(w, r, "/target", http.StatusFound)
	}))
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{})

	t.Run("manual", func(t *testing.T) {
		t.Parallel()

		result, err := executor.Execute(context.Background(), Request{
			Method:   "GET",
			URL:      server.URL + "/start",
			Redirect: RedirectManual,
		})
		require.NoError(t, err)

		assert.Equal(t, http.StatusFound, result.Status)
		assert.Equal(t, "/target", result.Headers.Get("Location"))
		assert.Equal(t, server.URL+"/start", result.URL)
		assert.False(t, result.Redirected)
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		_, err := executor.Execute(context.Background(), Request{
			Method:   "GET",
			URL:      server.URL + "/start",
			Redirect: RedirectError,
		})
		require.ErrorIs(t, err, ErrTransport)
		require.ErrorIs(t, err, ErrRedirectRefused)
	})
}

// TestExecute_TooManyRedirects tests the redirect limit.
func TestExecute_TooManyRedirects(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{MaxRedirects: 3})

	_, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL + "/loop"})
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, ErrTooManyRedirects)

	// The original request plus three followed redirects.
	assert.Equal(t, int64(4), hits.Load())
}

// TestExecute_InvalidMethod tests that an invalid method fails without network activity.
func TestExecute_InvalidMethod(t *testing.T) {
	t.Parallel()

	server, connections := newCountingServer(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	observer := &recordingObserver{}
	executor := newTestExecutor(t, Settings{}, WithRequestObserver(observer))

	result, err := executor.Execute(context.Background(), Request{Method: "G E T", URL: server.URL})
	require.Error(t, err)
	assert.Nil(t, result)

	assert.ErrorIs(t, err, ErrMethodParse)
	assert.ErrorIs(t, err, ErrInvalidMethod)
	assert.Equal(t, KindMethodParse, KindOf(err))
	assert.Zero(t, connections.Load())

	var requestErr *RequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Equal(t, StageIdle, requestErr.Stage)
	assert.Equal(t, "G E T", requestErr.Method)

	assert.Equal(t, []recordedRequest{{method: "G E T", outcome: "method_parse"}}, observer.recorded())
}

// TestExecute_Unreachable tests that a refused connection is a transport error.
func TestExecute_Unreachable(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	executor := newTestExecutor(t, Settings{})

	result, err := executor.Execute(context.Background(), Request{Method: "GET", URL: "http://" + address})
	require.ErrorIs(t, err, ErrTransport)
	assert.Nil(t, result)
	assert.Equal(t, KindTransport, KindOf(err))
}

// TestExecute_UnsupportedScheme tests that non-HTTP URLs are rejected as transport errors.
func TestExecute_UnsupportedScheme(t *testing.T) {
	t.Parallel()

	executor := newTestExecutor(t, Settings{})

	_, err := executor.Execute(context.Background(), Request{Method: "GET", URL: "ftp://example.com/file"})
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

// TestExecute_Timeout tests per-request and default timeouts.
func TestExecute_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}

		_, _ = io.WriteString(w, "late")
	}))
	t.Cleanup(server.Close)

	t.Run("per request", func(t *testing.T) {
		t.Parallel()

		executor := newTestExecutor(t, Settings{})

		_, err := executor.Execute(context.Background(), Request{
			Method:  "GET",
			URL:     server.URL,
			Timeout: 50 * time.Millisecond,
		})
		require.ErrorIs(t, err, ErrTransport)
	})

	t.Run("settings default", func(t *testing.T) {
		t.Parallel()

		executor := newTestExecutor(t, Settings{RequestTimeout: 50 * time.Millisecond})

		_, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL})
		require.ErrorIs(t, err, ErrTransport)
	})
}

// TestExecute_Cancelled tests that a cancelled context aborts the request.
func TestExecute_Cancelled(t *testing.T) {
	t.Parallel()

	executor := newTestExecutor(t, Settings{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, Request{Method: "GET", URL: "http://127.0.0.1:9"})
	require.ErrorIs(t, err, ErrTransport)
}

// TestExecute_Headers tests request header order, duplicates and the default user agent.
func TestExecute_Headers(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Received", strings.Join(r.Header.Values("X-Dup"), ","))
		w.Header().Set("X-User-Agent", r.UserAgent())
		w.Header().Add("X-Multi", "first")
		w.Header().Add("X-Multi", "second")
	}))
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{})

	result, err := executor.Execute(context.Background(), Request{
		Method: "get",
		URL:    server.URL,
		Headers: []Header{
			{Name: "X-Dup", Value: "a"},
			{Name: "x-dup", Value: "b"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "a,b", result.Headers.Get("x-received"))
	assert.True(t, strings.HasPrefix(result.Headers.Get("x-user-agent"), "fetchcore/"))
	assert.Equal(t, []string{"first", "second"}, result.Headers.Values("x-multi"))

	custom, err := executor.Execute(context.Background(), Request{
		Method:  "GET",
		URL:     server.URL,
		Headers: []Header{{Name: "User-Agent", Value: "custom/1.0"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom/1.0", custom.Headers.Get("x-user-agent"))
}

// TestExecute_Payload tests that request bodies reach the server and that an
// empty body is framed differently from an absent one for the same method.
func TestExecute_Payload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		_, _ = fmt.Fprintf(w, "%s cl=%d te=%s body=%s",
			r.Method, r.ContentLength, strings.Join(r.TransferEncoding, ","), data)
	}))
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{})

	tests := []struct {
		name    string
		method  string
		payload Payload
		want    string
	}{
		{name: "text", method: "POST", payload: TextPayload("hi"), want: "POST cl=2 te= body=hi"},
		{name: "bytes", method: "PUT", payload: BytesPayload([]byte{'o', 'k'}), want: "PUT cl=2 te= body=ok"},
		{name: "absent GET", method: "GET", payload: NoPayload(), want: "GET cl=0 te= body="},
		{name: "empty GET", method: "GET", payload: BytesPayload(nil), want: "GET cl=-1 te=chunked body="},
		{name: "absent POST", method: "POST", payload: NoPayload(), want: "POST cl=0 te= body="},
		{name: "empty POST", method: "POST", payload: TextPayload(""), want: "POST cl=-1 te=chunked body="},
		{name: "absent DELETE", method: "DELETE", payload: NoPayload(), want: "DELETE cl=0 te= body="},
		{name: "empty DELETE", method: "DELETE", payload: BytesPayload([]byte{}), want: "DELETE cl=-1 te=chunked body="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := executor.Execute(context.Background(), Request{
				Method: tt.method,
				URL:    server.URL,
				Body:   tt.payload,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Body.Text())
		})
	}
}

// TestExecute_BodyModes tests text decoding and raw bytes.
func TestExecute_BodyModes(t *testing.T) {
	t.Parallel()

	raw := []byte{'c', 'a', 'f', 0xe9}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=ISO-8859-1")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(server.Close)

	text, err := newTestExecutor(t, Settings{BodyMode: BodyModeText}).
		Execute(context.Background(), Request{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "café", text.Body.Text())

	bytesResult, err := newTestExecutor(t, Settings{BodyMode: BodyModeBytes}).
		Execute(context.Background(), Request{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, raw, bytesResult.Body.Bytes())
}

// TestExecute_BodyTooLarge tests that an oversized body is a body read error.
func TestExecute_BodyTooLarge(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hello")
	}))
	t.Cleanup(server.Close)

	observer := &recordingObserver{}
	executor := newTestExecutor(t, Settings{MaxBodySize: 4}, WithRequestObserver(observer))

	_, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL})
	require.ErrorIs(t, err, ErrBodyRead)
	require.ErrorIs(t, err, ErrBodyTooLarge)

	var requestErr *RequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Equal(t, StageMetadataExtracted, requestErr.Stage)

	assert.Equal(t, []recordedRequest{{method: "GET", outcome: "body_read"}}, observer.recorded())
}

// TestExecute_NoBodyStatuses tests HEAD and 204 responses.
func TestExecute_NoBodyStatuses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		_, _ = io.WriteString(w, "content")
	}))
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{})

	head, err := executor.Execute(context.Background(), Request{Method: "HEAD", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, head.Status)
	assert.Equal(t, 0, head.Body.Len())

	empty, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL + "/empty"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, empty.Status)
	assert.Equal(t, "No Content", empty.StatusText)
	assert.Equal(t, 0, empty.Body.Len())
}

// TestExecute_ConnectionReuse tests that sequential requests share one pooled connection.
func TestExecute_ConnectionReuse(t *testing.T) {
	t.Parallel()

	server, connections := newCountingServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pooled")
	}))

	executor := newTestExecutor(t, Settings{})

	for range 5 {
		result, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, "pooled", result.Body.Text())
	}

	assert.Equal(t, int64(1), connections.Load())
}

// TestExecute_HTTP2 tests that HTTP/2 is negotiated over TLS.
func TestExecute_HTTP2(t *testing.T) {
	t.Parallel()

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Proto)
	}))
	server.EnableHTTP2 = true
	server.StartTLS()
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{})

	serverTransport, ok := server.Client().Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, executor.pool.transport.TLSClientConfig)

	executor.pool.transport.TLSClientConfig.RootCAs = serverTransport.TLSClientConfig.RootCAs

	result, err := executor.Execute(context.Background(), Request{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "HTTP/2.0", result.Body.Text())
}

// TestGo_Concurrent tests that concurrent requests complete independently.
func TestGo_Concurrent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Query().Get("n"))
	}))
	t.Cleanup(server.Close)

	executor := newTestExecutor(t, Settings{WorkerThreads: 3})

	const count = 20

	tasks := make([]*Task[*Result], 0, count)
	for i := range count {
		tasks = append(tasks, executor.Go(context.Background(), Request{
			Method: "GET",
			URL:    fmt.Sprintf("%s/?n=%d", server.URL, i),
		}))
	}

	// One failing request does not affect the others.
	failing := executor.Go(context.Background(), Request{Method: "BAD METHOD", URL: server.URL})

	for i, task := range tasks {
		result, err := task.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), result.Body.Text())
	}

	_, err := failing.Await(context.Background())
	require.ErrorIs(t, err, ErrMethodParse)
}

// TestGo_SlowPeerDoesNotStall tests that a request hanging on one server does not
// delay a request to another server on a single-worker runtime.
func TestGo_SlowPeerDoesNotStall(t *testing.T) {
	t.Parallel()

	observer := &recordingObserver{}
	executor := newTestExecutor(t, Settings{WorkerThreads: 1}, WithRequestObserver(observer))

	entered := make(chan struct{})
	release := make(chan struct{})

	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		_, _ = io.WriteString(w, "late")
	}))
	t.Cleanup(hanging.Close)

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "fast")
	}))
	t.Cleanup(healthy.Close)

	// Cleanups run in reverse order, so the hanging handler is released first.
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	slow := executor.Go(context.Background(), Request{Method: "GET", URL: hanging.URL})
	<-entered

	fast := executor.Go(context.Background(), Request{Method: "GET", URL: healthy.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := fast.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fast", result.Body.Text())

	close(release)

	result, err = slow.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", result.Body.Text())

	assert.Len(t, observer.recorded(), 2)
}
