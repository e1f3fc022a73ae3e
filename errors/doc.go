// Package errors provides standardized error handling for eegstreams components.
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, absorbed or rejected) and Fatal (unrecoverable, stop the session).
// Classification works through errors.Is and errors.As, so wrapped errors keep
// their class.
//
// Wrap third-party errors with component context:
//
//	if err := w.Flush(); err != nil {
//	    return errors.Persistence(err, "recorder", "Flush", "durability flush")
//	}
//
// The domain sentinels describe the pipeline's failure modes:
//
//   - ErrNoStreamFound: resolution timed out without a matching stream
//   - ErrInsufficientChannels: the resolved stream has too few channels
//   - ErrSourceClosed: the source went away mid-session
//   - ErrMalformedSample: a sample had the wrong width (warning only)
//   - ErrPersistence: writing or flushing the recording failed
//
// Remediation maps fatal errors to the hint printed before the process exits.
package errors
