package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// CredentialsMode controls whether a request takes part in the pool's cookie jar.
type CredentialsMode uint8

const (
	// CredentialsOmit neither sends nor stores cookies.
	CredentialsOmit CredentialsMode = iota
	// CredentialsSameOrigin sends and stores cookies only while the request
	// stays on the origin it started on; redirect hops to other origins carry none.
	CredentialsSameOrigin
	// CredentialsInclude sends and stores cookies on every hop, each hop using
	// the cookies of its own origin.
	CredentialsInclude
)

// String returns the mode name.
func (m CredentialsMode) String() string {
	switch m {
	case CredentialsOmit:
		return "omit"
	case CredentialsSameOrigin:
		return "same-origin"
	case CredentialsInclude:
		return "include"
	default:
		return fmt.Sprintf("CredentialsMode(%d)", uint8(m))
	}
}

// ParseCredentialsMode converts a mode name; an empty name selects CredentialsOmit.
func ParseCredentialsMode(value string) (CredentialsMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "omit":
		return CredentialsOmit, nil
	case "same-origin":
		return CredentialsSameOrigin, nil
	case "include":
		return CredentialsInclude, nil
	default:
		return CredentialsOmit, fmt.Errorf("invalid credentials mode '%s'", value)
	}
}

// originJar keeps one cookie jar per origin, so cookies are never shared
// across schemes, hosts or ports.
type originJar struct {
	mu   sync.Mutex
	jars map[string]*cookiejar.Jar
}

func newOriginJar() *originJar {
	return &originJar{jars: make(map[string]*cookiejar.Jar)}
}

func (j *originJar) forURL(u *url.URL) (*cookiejar.Jar, error) {
	origin := originOf(u)

	j.mu.Lock()
	defer j.mu.Unlock()

	if jar, ok := j.jars[origin]; ok {
		return jar, nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	j.jars[origin] = jar

	return jar, nil
}

// originOf returns scheme://host:port with default ports made explicit.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())

	port := u.Port()
	if port == "" {
		switch scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}

	return scheme + "://" + net.JoinHostPort(host, port)
}

// cookieTransport attaches stored cookies to outgoing requests and stores the
// cookies of their responses, following the credentials carried by the request context.
type cookieTransport struct {
	next http.RoundTripper
	jar  *originJar
}

func newCookieTransport(next http.RoundTripper, jar *originJar) *cookieTransport {
	return &cookieTransport{next: next, jar: jar}
}

// RoundTrip implements http.RoundTripper. The caller's request is never modified.
func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	credentials := credentialsFrom(req.Context())
	if !credentials.allows(req.URL) {
		return t.next.RoundTrip(req)
	}

	jar, err := t.jar.forURL(req.URL)
	if err != nil {
		return nil, err
	}

	if cookies := jar.Cookies(req.URL); len(cookies) > 0 {
		req = req.Clone(req.Context())
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if cookies := resp.Cookies(); len(cookies) > 0 {
		jar.SetCookies(req.URL, cookies)
	}

	return resp, nil
}

// requestCredentials is the credentials mode of a request and the origin it started on.
type requestCredentials struct {
	mode   CredentialsMode
	origin string
}

func (c requestCredentials) allows(u *url.URL) bool {
	switch c.mode {
	case CredentialsInclude:
		return true
	case CredentialsSameOrigin:
		return originOf(u) == c.origin
	case CredentialsOmit:
	}

	return false
}

type credentialsKey struct{}

func withCredentials(ctx context.Context, mode CredentialsMode, target *url.URL) context.Context {
	return context.WithValue(ctx, credentialsKey{}, requestCredentials{
		mode:   mode,
		origin: originOf(target),
	})
}

func credentialsFrom(ctx context.Context) requestCredentials {
	if credentials, ok := ctx.Value(credentialsKey{}).(requestCredentials); ok {
		return credentials
	}

	return requestCredentials{mode: CredentialsOmit}
}
