package fetch

//go:generate $MOCKGEN -source=client.go -destination=mocks/client_mock.go

import (
	"context"

	"github.com/oshokin/fetchcore/internal/engine"
)

// Client defines the interface for issuing HTTP requests.
type Client interface {
	// Fetch performs the request and waits for its result.
	Fetch(ctx context.Context, req engine.Request) (*engine.Result, error)
	// FetchAsync schedules the request and returns its task immediately.
	FetchAsync(ctx context.Context, req engine.Request) *engine.Task[*engine.Result]
}

// Handle implements Client on top of the process-wide engine.
// It holds no state; copies are interchangeable.
type Handle struct{}

var _ Client = Handle{}

// NewHandle returns a handle. It never fails and does not start the engine.
func NewHandle() Handle {
	return Handle{}
}

// IssueRequest schedules req on the process-wide executor and returns immediately.
// The first call starts the runtime and builds the connection pool.
func IssueRequest(ctx context.Context, _ Handle, req engine.Request) *engine.Task[*engine.Result] {
	return engine.Default().Go(ctx, req)
}

// FetchAsync is IssueRequest bound to h.
func (h Handle) FetchAsync(ctx context.Context, req engine.Request) *engine.Task[*engine.Result] {
	return IssueRequest(ctx, h, req)
}

// Fetch issues req and waits for the result or for ctx to end.
func (h Handle) Fetch(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return h.FetchAsync(ctx, req).Await(ctx)
}
