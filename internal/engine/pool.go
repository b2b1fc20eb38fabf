package engine

import (
	"fmt"
	"net"
	"net/http"

	"golang.org/x/net/http2"

	http_transport "github.com/oshokin/fetchcore/internal/transport/http"
	"github.com/oshokin/fetchcore/internal/utils"
)

// Pool is the shared HTTP client: one transport whose idle connections are
// reused across all requests, with HTTP/2 negotiated over TLS and transparent
// gzip decompression. Requests that opt in through their credentials mode
// share a cookie jar kept per origin.
type Pool struct {
	// client sends requests and follows redirects.
	client *http.Client
	// transport owns the pooled connections.
	transport *http.Transport
	// jar stores cookies for requests with credentials.
	jar *originJar
	// settings is the configuration the pool was built with.
	settings Settings
}

// NewPool builds a pool. Errors wrap ErrInit.
func NewPool(settings Settings) (*Pool, error) {
	settings = settings.withDefaults()

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: dialKeepAlive,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   settings.MaxIdlePerHost,
		IdleConnTimeout:       settings.IdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
	}

	h2Transport, err := http2.ConfigureTransports(transport)
	if err != nil {
		return nil, fmt.Errorf("%w: configure HTTP/2: %w", ErrInit, err)
	}

	// Health-check idle HTTP/2 connections so dead ones are not reused.
	h2Transport.ReadIdleTimeout = http2ReadIdleTimeout
	h2Transport.PingTimeout = http2PingTimeout

	pool := &Pool{
		transport: transport,
		jar:       newOriginJar(),
		settings:  settings,
	}

	// Cookies are attached outermost so the debug dumps show them.
	pool.client = &http.Client{
		Transport: newCookieTransport(
			http_transport.NewUserAgentInjector(
				http_transport.NewLogTransport(transport, settings.MaxLogLength),
				utils.NewStaticUserAgentProvider(settings.UserAgent, http_transport.DefaultUserAgent())),
			pool.jar),
		CheckRedirect: pool.checkRedirect,
	}

	return pool, nil
}

// Do sends one request through the pool.
func (p *Pool) Do(req *http.Request) (*http.Response, error) {
	return p.client.Do(req)
}

// Settings returns the configuration the pool was built with.
func (p *Pool) Settings() Settings {
	return p.settings
}

// CloseIdleConnections closes every idle pooled connection.
func (p *Pool) CloseIdleConnections() {
	// The client transport is wrapped by middleware, so the pooled transport is closed directly.
	p.transport.CloseIdleConnections()
}

// checkRedirect applies the redirect policy carried by the request context.
func (p *Pool) checkRedirect(req *http.Request, via []*http.Request) error {
	switch redirectPolicyFrom(req.Context()) {
	case RedirectManual:
		return http.ErrUseLastResponse
	case RedirectError:
		return fmt.Errorf("%w: to '%s'", ErrRedirectRefused, req.URL)
	case RedirectFollow:
	}

	if len(via) > p.settings.MaxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", ErrTooManyRedirects, p.settings.MaxRedirects)
	}

	return nil
}
