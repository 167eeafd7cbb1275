//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Sleep is a minimal slow service: wait(ms) blocks for the requested
// duration (or until its context is canceled) before replying with no
// payload, making it useful for exercising the client driver's per-call
// timeout.
//

package testservice

import (
	"context"
	"time"

	"github.com/bassosimone/nitrogen"
)

// SleepRequest is Sleep's whole request tagged union.
type SleepRequest struct {
	Wait *SleepWaitRequest `msgpack:"wait,omitempty"`
}

// SleepWaitRequest carries wait's argument.
type SleepWaitRequest struct {
	Ms uint32 `msgpack:"ms"`
}

// SleepResponse is Sleep's whole response tagged union. Wait has no
// declared return, so it wraps [nitrogen.Unit] in a [nitrogen.Result].
type SleepResponse struct {
	Wait *nitrogen.Result[nitrogen.Unit] `msgpack:"wait,omitempty"`
}

// waitOp implements wait: it blocks for ms milliseconds, or until ctx is
// canceled, in which case it reports ctx's error as an application-level
// failure.
func waitOp(ctx context.Context, req SleepWaitRequest) (nitrogen.Unit, error) {
	timer := time.NewTimer(time.Duration(req.Ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nitrogen.Unit{}, nil
	case <-ctx.Done():
		return nitrogen.Unit{}, ctx.Err()
	}
}

// SleepRoute implements Sleep's single operation, wait.
func SleepRoute(ctx context.Context, req SleepRequest) SleepResponse {
	switch {
	case req.Wait != nil:
		result := nitrogen.Invoke(ctx, waitOp, *req.Wait)
		return SleepResponse{Wait: &result}
	default:
		return SleepResponse{}
	}
}

// SleepClient is Sleep's per-service client handle.
type SleepClient struct {
	client *nitrogen.Client[SleepRequest, SleepResponse]
}

// NewSleepClient opens a Sleep client against session.
func NewSleepClient(session *nitrogen.Session, opts ...nitrogen.ClientOption) *SleepClient {
	return &SleepClient{client: nitrogen.NewClient[SleepRequest, SleepResponse](session, "Sleep", opts...)}
}

// Wait calls Sleep's wait operation. The request's own context deadline
// and the client's configured timeout both bound how long this blocks;
// whichever fires first yields an error whose message contains
// "timeout" when it was the client-side timeout.
func (c *SleepClient) Wait(ctx context.Context, ms uint32) error {
	resp, err := c.client.Request(ctx, SleepRequest{Wait: &SleepWaitRequest{Ms: ms}})
	if err != nil {
		return err
	}
	if resp.Wait == nil {
		return nitrogen.NewRpcError("SleepClient::request protocol mismatch")
	}
	_, err = resp.Wait.Unwrap()
	return err
}

// Close terminates the client's background driver.
func (c *SleepClient) Close() { c.client.Close() }
