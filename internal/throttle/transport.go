package throttle

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

type workerKey struct{}

// WithWorker attaches a worker identity to ctx for Transport.
func WithWorker(ctx context.Context, worker WorkerID) context.Context {
	return context.WithValue(ctx, workerKey{}, worker)
}

// WorkerFromContext returns the worker identity stored by WithWorker.
func WorkerFromContext(ctx context.Context) (WorkerID, bool) {
	worker, ok := ctx.Value(workerKey{}).(WorkerID)
	return worker, ok && worker != ""
}

// Transport paces every round trip through a Throttler and retries 429
// responses in place.
//
// The worker identity comes from the request context (see WithWorker). A
// request without one gets a fresh identity.
type Transport struct {
	Transport http.RoundTripper
	Throttler Throttler
}

// NewTransport wraps base (http.DefaultTransport when nil) with th.
func NewTransport(base http.RoundTripper, th Throttler) *Transport {
	return &Transport{Transport: base, Throttler: th}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Throttler == nil {
		return base.RoundTrip(req)
	}

	ctx := req.Context()
	worker, ok := WorkerFromContext(ctx)
	if !ok {
		worker = NewWorkerID()
	}

	first := true
	resp, err := t.Throttler.Call(ctx, worker, func(ctx context.Context) (*Response, error) {
		attempt := req
		if !first {
			var err error
			if attempt, err = rewind(req); err != nil {
				return nil, err
			}
		}
		first = false

		httpResp, err := base.RoundTrip(attempt)
		if err != nil {
			return nil, err
		}
		r := FromHTTP(httpResp)
		if IsRateLimited(r) {
			// the retry will replace this response
			_, _ = io.Copy(io.Discard, httpResp.Body)
			_ = httpResp.Body.Close()
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.HTTP, nil
}

// Unwrap returns the wrapped transport.
func (t *Transport) Unwrap() http.RoundTripper {
	return t.Transport
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("retry %s %s: request body cannot be replayed", req.Method, req.URL)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("retry %s %s: %w", req.Method, req.URL, err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}
