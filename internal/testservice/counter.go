//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Counter is a minimal stateful service: inc() atomically increments a
// shared counter and returns the new value, so concurrent callers each
// observe a distinct, strictly increasing result. There is no direct
// original_source equivalent, since MyService in main.rs has no
// stateful operation.
//

package testservice

import (
	"context"
	"sync/atomic"

	"github.com/bassosimone/nitrogen"
)

// CounterRequest is Counter's whole request tagged union.
type CounterRequest struct {
	Inc *CounterIncRequest `msgpack:"inc,omitempty"`
}

// CounterIncRequest carries inc's (empty) argument.
type CounterIncRequest struct{}

// CounterResponse is Counter's whole response tagged union. Inc wraps
// its declared return (uint64) in a [nitrogen.Result].
type CounterResponse struct {
	Inc *nitrogen.Result[uint64] `msgpack:"inc,omitempty"`
}

// CounterService holds the shared counter state behind inc. Unlike Echo
// and Sleep, Counter's route closes over per-instance state, so it is a
// method rather than a free function.
type CounterService struct {
	value uint64
}

// NewCounterService returns a Counter service starting at zero.
func NewCounterService() *CounterService {
	return &CounterService{}
}

// incOp implements inc: it never fails, so its Result is always Ok, but
// it still goes through [nitrogen.Invoke] like any other operation.
func (s *CounterService) incOp(ctx context.Context, _ CounterIncRequest) (uint64, error) {
	return atomic.AddUint64(&s.value, 1), nil
}

// Route implements Counter's single operation, inc. Concurrent calls
// each receive a distinct, strictly increasing value.
func (s *CounterService) Route(ctx context.Context, req CounterRequest) CounterResponse {
	switch {
	case req.Inc != nil:
		result := nitrogen.Invoke(ctx, s.incOp, *req.Inc)
		return CounterResponse{Inc: &result}
	default:
		return CounterResponse{}
	}
}

// CounterClient is Counter's per-service client handle.
type CounterClient struct {
	client *nitrogen.Client[CounterRequest, CounterResponse]
}

// NewCounterClient opens a Counter client against session.
func NewCounterClient(session *nitrogen.Session, opts ...nitrogen.ClientOption) *CounterClient {
	return &CounterClient{client: nitrogen.NewClient[CounterRequest, CounterResponse](session, "Counter", opts...)}
}

// Inc calls Counter's inc operation.
func (c *CounterClient) Inc(ctx context.Context) (uint64, error) {
	resp, err := c.client.Request(ctx, CounterRequest{Inc: &CounterIncRequest{}})
	if err != nil {
		return 0, err
	}
	if resp.Inc == nil {
		return 0, nitrogen.NewRpcError("CounterClient::request protocol mismatch")
	}
	return resp.Inc.Unwrap()
}

// Close terminates the client's background driver.
func (c *CounterClient) Close() { c.client.Close() }
