package paygate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Forwarder performs the pass-through call to a hidden upstream once payment
// has been verified.
//
// The outbound Content-Type is fixed to application/json regardless of the
// inbound request; non-JSON upstreams are out of scope. The upstream's status
// code is deliberately not relayed: a completed forward always reads the full
// body and reports it to the caller as a 200. Only transport-level failures
// (connection refused, timeout, DNS) surface as errors. Changing either
// behavior changes the wire protocol.
type Forwarder struct {
	client *http.Client
	sem    chan struct{}
}

// NewForwarder creates a Forwarder with the given per-call timeout and a cap
// on concurrent upstream calls.
func NewForwarder(timeout time.Duration, maxCalls int) *Forwarder {
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	if maxCalls <= 0 {
		maxCalls = DefaultMaxOutboundCalls
	}

	return &Forwarder{
		client: &http.Client{Timeout: timeout},
		sem:    make(chan struct{}, maxCalls),
	}
}

// Forward issues the upstream call with the inbound method and raw body and
// returns the buffered upstream response body.
func (f *Forwarder) Forward(ctx context.Context, method string, body io.Reader, targetURL string) ([]byte, error) {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("forward canceled: %w", ctx.Err())
	}
	defer func() { <-f.sem }()

	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	return data, nil
}
