package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oshokin/fetchcore/internal/utils"
	mock_utils "github.com/oshokin/fetchcore/internal/utils/mocks"
)

// TestUserAgentInjector_KeepsCallerValue tests that a caller-supplied User-Agent is never replaced.
func TestUserAgentInjector_KeepsCallerValue(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// The provider must not be consulted when the request already names an agent.
	mockProvider := mock_utils.NewMockUserAgentProvider(ctrl)

	var received *http.Request

	next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		received = req

		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("User-Agent", "caller/1.0")

	resp, err := NewUserAgentInjector(next, mockProvider).RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Same(t, req, received)
	assert.Equal(t, "caller/1.0", received.Header.Get("User-Agent"))
}

// TestUserAgentInjector_FillsMissingValue tests injection on a clone of the request.
func TestUserAgentInjector_FillsMissingValue(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockProvider := mock_utils.NewMockUserAgentProvider(ctrl)
	mockProvider.EXPECT().GetUserAgent().Return("fetchcore/test").Times(1)

	var received *http.Request

	next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		received = req

		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Add("X-Dup", "a")
	req.Header.Add("X-Dup", "b")

	resp, err := NewUserAgentInjector(next, mockProvider).RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.NotNil(t, received)
	assert.NotSame(t, req, received)
	assert.Equal(t, "fetchcore/test", received.Header.Get("User-Agent"))
	assert.Equal(t, []string{"a", "b"}, received.Header.Values("X-Dup"))
	assert.Empty(t, req.Header.Get("User-Agent"))
}

// TestUserAgentInjector_PropagatesError tests that errors from the next round tripper are returned.
func TestUserAgentInjector_PropagatesError(t *testing.T) {
	t.Parallel()

	expected := errors.New("connection refused")
	next := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, expected
	})

	injector := NewUserAgentInjector(next, utils.NewStaticUserAgentProvider("", DefaultUserAgent()))

	resp, err := injector.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.ErrorIs(t, err, expected)
	assert.Nil(t, resp)
}

// TestUserAgentInjector_DefaultUserAgent tests the default agent against a real server.
func TestUserAgentInjector_DefaultUserAgent(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	injector := NewUserAgentInjector(http.DefaultTransport, utils.NewStaticUserAgentProvider("", DefaultUserAgent()))

	for range 3 {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil) //nolint:noctx // Test code, context not needed.
		require.NoError(t, err)

		resp, err := injector.RoundTrip(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, DefaultUserAgent(), <-agents)
	}
}
