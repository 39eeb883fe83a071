// Package ratelimit wraps an http.RoundTripper with a token-bucket limiter,
// acting as a client-side safety valve independent of the Work Queue's own
// pacing gate (internal/queue): even if a caller mis-paces the queue, or a
// burst of owner/repository discovery fires many requests at once, the
// upstream adapters never exceed this floor. Grounded on
// ethpandaops-benchmarkoor's pkg/api/ratelimit.go, which applies the same
// golang.org/x/time/rate token bucket to inbound requests; here it guards
// outbound ones instead.
package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"
)

// roundTripper blocks each request on a shared token bucket before handing
// it to the wrapped transport.
type roundTripper struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

// Wrap returns an http.RoundTripper that rate-limits requests to
// requestsPerSecond with the given burst, delegating to next (or
// http.DefaultTransport if next is nil).
func Wrap(next http.RoundTripper, requestsPerSecond float64, burst int) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &roundTripper{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst), next: next}
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return rt.next.RoundTrip(req)
}
