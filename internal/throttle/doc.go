// Package throttle paces outbound requests to a rate-limited HTTP API.
//
// A Throttler is shared by every worker that talks to the same API from one
// process. Before each attempt the caller sleeps for the shared delay plus a
// small jitter, performs its request, and reports the outcome back. A 429
// response is retried in place until the server accepts the request; every
// other status is handed back to the caller untouched.
//
// # Strategies
//
//   - Adaptive: decays the delay in proportion to the remaining quota and the
//     time since the last escalation. Concurrent 429s are coordinated by a
//     RetryCoordinator so only one worker escalates per episode.
//   - ExponentialBackoff: no delay until limited, then multiply per retry.
//   - GradualDecrease: multiplicative increase, fixed step decrease.
//   - RemainingDecrease: multiplicative increase, quota-proportional decrease.
//
// # Example
//
//	th, err := throttle.NewAdaptive(throttle.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	worker := throttle.NewWorkerID()
//	resp, err := th.Call(ctx, worker, func(ctx context.Context) (*throttle.Response, error) {
//	    httpResp, err := client.Get(url)
//	    if err != nil {
//	        return nil, err
//	    }
//	    defer httpResp.Body.Close()
//	    return throttle.FromHTTP(httpResp), nil
//	})
//
// State never crosses process boundaries. Each process owns its own Throttler.
package throttle
