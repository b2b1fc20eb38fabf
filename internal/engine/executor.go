package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/fetchcore/internal/logger"
)

// Stage is a state of the request life cycle:
// Idle → MethodParsed → Sent → MetadataExtracted → BodyConsumed → Done.
// A failure in any stage ends the request.
type Stage uint8

const (
	// StageIdle is the state before the method is parsed.
	StageIdle Stage = iota
	// StageMethodParsed is reached once the method is a valid token.
	StageMethodParsed
	// StageSent is reached once the response head has arrived.
	StageSent
	// StageMetadataExtracted is reached once status, headers and final URL are copied.
	StageMetadataExtracted
	// StageBodyConsumed is reached once the body is materialized.
	StageBodyConsumed
	// StageDone is reached once the result is assembled.
	StageDone
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageMethodParsed:
		return "method_parsed"
	case StageSent:
		return "sent"
	case StageMetadataExtracted:
		return "metadata_extracted"
	case StageBodyConsumed:
		return "body_consumed"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// outcomeOK is the metrics label of a successful request.
const outcomeOK = "ok"

// RequestObserver is notified once per finished request.
type RequestObserver interface {
	// ObserveRequest records the method, the outcome label and the total duration.
	ObserveRequest(method, outcome string, duration time.Duration)
}

// Executor drives requests through a Pool on a Runtime.
type Executor struct {
	// runtime runs tasks created by Go.
	runtime *Runtime
	// pool sends the requests.
	pool *Pool
	// observer records finished requests.
	observer RequestObserver
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithRequestObserver sets the observer notified about finished requests.
func WithRequestObserver(observer RequestObserver) ExecutorOption {
	return func(e *Executor) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// NewExecutor creates an executor over the given runtime and pool.
func NewExecutor(rt *Runtime, pool *Pool, options ...ExecutorOption) *Executor {
	executor := &Executor{
		runtime:  rt,
		pool:     pool,
		observer: noopRequestObserver{},
	}

	for _, option := range options {
		option(executor)
	}

	return executor
}

// Go submits req to the runtime and returns immediately.
// A worker parses the method and builds the outbound request; sending and
// reading the body run on a goroutine of their own, so requests waiting on
// slow peers do not hold workers.
func (e *Executor) Go(ctx context.Context, req Request) *Task[*Result] {
	return SubmitDetached(e.runtime, func() (func() (*Result, error), error) {
		startTime := time.Now()
		ctx := withRequestID(ctx)

		prepared, err := e.prepare(ctx, &req)
		if err != nil {
			e.finish(ctx, &req, startTime, nil, err)

			return nil, err
		}

		return func() (*Result, error) {
			result, err := e.send(prepared)
			e.finish(ctx, &req, startTime, result, err)

			return result, err
		}, nil
	})
}

// Execute performs req on the calling goroutine. It returns either a fully
// populated Result or a *RequestError, never both.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()
	ctx = withRequestID(ctx)

	prepared, err := e.prepare(ctx, &req)
	if err != nil {
		e.finish(ctx, &req, startTime, nil, err)

		return nil, err
	}

	result, err := e.send(prepared)
	e.finish(ctx, &req, startTime, result, err)

	return result, err
}

// call is a request that passed method parsing and is ready to be sent.
type call struct {
	// req is the caller's request.
	req *Request
	// httpReq is the outbound request.
	httpReq *http.Request
	// cancel releases the request timeout.
	cancel context.CancelFunc
	// settings is the pool configuration.
	settings Settings
}

// prepare runs the stages that perform no I/O.
func (e *Executor) prepare(ctx context.Context, req *Request) (*call, error) {
	settings := e.pool.Settings()

	method, err := ParseMethod(req.Method)
	if err != nil {
		return nil, newRequestError(KindMethodParse, StageIdle, req, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = settings.RequestTimeout
	}

	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	httpReq, err := newHTTPRequest(withRedirectPolicy(ctx, req.Redirect), method, req)
	if err != nil {
		cancel()

		return nil, newRequestError(KindTransport, StageMethodParsed, req, err)
	}

	return &call{
		req:      req,
		httpReq:  httpReq,
		cancel:   cancel,
		settings: settings,
	}, nil
}

// send performs the network exchange and materializes the body.
func (e *Executor) send(c *call) (*Result, error) {
	defer c.cancel()

	//nolint:bodyclose // The body is closed by bodyReader.consume.
	resp, err := e.pool.Do(c.httpReq)
	if err != nil {
		return nil, newRequestError(KindTransport, StageMethodParsed, c.req, err)
	}

	// Metadata must be copied before the body is consumed.
	metadata := metadataOf(resp)

	body, err := newBodyReader(resp).consume(c.settings.BodyMode, c.settings.MaxBodySize)
	if err != nil {
		return nil, newRequestError(KindBodyRead, StageMetadataExtracted, c.req, err)
	}

	return newResult(c.req.URL, metadata, body), nil
}

// finish logs the outcome and reports it to the observer.
func (e *Executor) finish(ctx context.Context, req *Request, startTime time.Time, result *Result, err error) {
	duration := time.Since(startTime)
	outcome := outcomeOK

	if err != nil {
		outcome = KindOf(err).Outcome()

		logger.DebugKV(ctx, "Request failed",
			"method", req.Method,
			"url", req.URL,
			"duration", duration,
			"error", err)
	} else {
		logger.DebugKV(ctx, "Request completed",
			"method", req.Method,
			"url", req.URL,
			"final_url", result.URL,
			"status", result.Status,
			"body_bytes", result.Body.Len(),
			"duration", duration)
	}

	e.observer.ObserveRequest(req.Method, outcome, duration)
}

func withRequestID(ctx context.Context) context.Context {
	return logger.WithKV(ctx, "request_id", uuid.NewString())
}

type noopRequestObserver struct{}

func (noopRequestObserver) ObserveRequest(string, string, time.Duration) {}
