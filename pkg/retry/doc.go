// Package retry provides exponential backoff retry logic for transient failures.
//
// Do runs an operation until it succeeds, the attempt count or time budget is
// spent, the context is cancelled, or the operation returns an error that must
// not be retried (NonRetryable, or one rejected by Config.RetryIf).
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay (startup binds and connects)
//   - Polling(budget): unlimited attempts within budget, 100ms-1s delay
//
// Stream resolution polls the discovery surface until the resolve timeout:
//
//	desc, err := retry.DoWithResult(ctx, retry.Polling(15*time.Second), func() (message.Descriptor, error) {
//	    return resolver.Resolve(ctx, "EEG")
//	})
//	if errors.Is(err, retry.ErrBudgetExhausted) {
//	    // nothing appeared in time
//	}
package retry
