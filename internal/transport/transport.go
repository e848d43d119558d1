// Package transport retrieves raw page content for the ingestion engine.
//
// Failures are represented uniformly: a Response with a zero status and an
// empty body. The retry/backoff policy is layered on top by the orchestrator,
// so implementations stay a single bounded GET.
package transport

import "context"

// Response carries the outcome of one retrieval attempt.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the response carries a usable 2xx payload.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Transport fetches a URL. Implementations must not panic and must map every
// failure mode onto a zero-status Response.
type Transport interface {
	Get(ctx context.Context, url string) Response
}
