package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-request failure.
type ErrorKind uint8

const (
	// KindMethodParse means the method is not a valid HTTP method token. No I/O happened.
	KindMethodParse ErrorKind = iota + 1
	// KindTransport covers URL, DNS, connect, TLS, redirect, timeout and protocol failures.
	KindTransport
	// KindBodyRead means the response body could not be materialized after headers arrived.
	KindBodyRead
)

// Sentinels matched by errors.Is against a *RequestError of the corresponding kind.
var (
	// ErrMethodParse matches every KindMethodParse failure.
	ErrMethodParse = errors.New("method parse error")
	// ErrTransport matches every KindTransport failure.
	ErrTransport = errors.New("transport error")
	// ErrBodyRead matches every KindBodyRead failure.
	ErrBodyRead = errors.New("body read error")
)

// Causes wrapped inside a *RequestError.
var (
	// ErrEmptyMethod indicates that no method was given.
	ErrEmptyMethod = errors.New("empty method")
	// ErrInvalidMethod indicates a method containing characters outside the HTTP token set.
	ErrInvalidMethod = errors.New("invalid method token")
	// ErrInvalidURL indicates a URL that cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrUnsupportedScheme indicates a URL whose scheme is neither http nor https.
	ErrUnsupportedScheme = errors.New("unsupported protocol scheme")
	// ErrTooManyRedirects indicates a redirect chain longer than the configured maximum.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrRedirectRefused indicates a redirect received under RedirectError.
	ErrRedirectRefused = errors.New("redirect refused")
	// ErrBodyTooLarge indicates a response body larger than the configured limit.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
	// ErrBodyConsumed indicates a second attempt to consume the same response body.
	ErrBodyConsumed = errors.New("response body already consumed")
)

// Errors of the engine singletons and the runtime.
var (
	// ErrInit indicates that a process-wide singleton could not be constructed.
	ErrInit = errors.New("engine initialization failed")
	// ErrAlreadyInitialized indicates Configure was called after the singletons were built.
	ErrAlreadyInitialized = errors.New("engine already initialized")
	// ErrRuntimeClosed indicates a task submitted to a closed runtime.
	ErrRuntimeClosed = errors.New("runtime closed")
	// ErrTaskPanicked indicates that a task panicked; the panic value is part of the message.
	ErrTaskPanicked = errors.New("task panicked")
)

// String returns the human-readable name of the kind.
func (k ErrorKind) String() string {
	if sentinel := k.sentinel(); sentinel != nil {
		return sentinel.Error()
	}

	return fmt.Sprintf("unknown error kind %d", k)
}

// Outcome returns the metrics label of the kind.
func (k ErrorKind) Outcome() string {
	switch k {
	case KindMethodParse:
		return "method_parse"
	case KindTransport:
		return "transport"
	case KindBodyRead:
		return "body_read"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindMethodParse:
		return ErrMethodParse
	case KindTransport:
		return ErrTransport
	case KindBodyRead:
		return ErrBodyRead
	default:
		return nil
	}
}

// RequestError is the single error value a failed request produces.
type RequestError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Stage is the last state the request reached before failing.
	Stage Stage
	// Method is the method as given by the caller.
	Method string
	// URL is the URL as given by the caller.
	URL string
	// Err is the underlying cause.
	Err error
}

func newRequestError(kind ErrorKind, stage Stage, req *Request, err error) *RequestError {
	return &RequestError{
		Kind:   kind,
		Stage:  stage,
		Method: req.Method,
		URL:    req.URL,
		Err:    err,
	}
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Err == nil {
		return e.Kind.String()
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// Is reports whether target is the sentinel of the error's kind.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}

	return target == e.Kind.sentinel()
}

// KindOf returns the kind of a *RequestError found in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var requestErr *RequestError
	if errors.As(err, &requestErr) {
		return requestErr.Kind
	}

	return 0
}
