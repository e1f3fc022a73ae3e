package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"timeout in message", fmt.Errorf("read udp: i/o timeout"), true},
		{"no stream found", ErrNoStreamFound, false},
		{"persistence", ErrPersistence, false},
		{"malformed sample", ErrMalformedSample, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("connection reset")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err), "error: %v", tt.err)
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"no stream found", ErrNoStreamFound, true},
		{"insufficient channels", ErrInsufficientChannels, true},
		{"source closed", ErrSourceClosed, true},
		{"persistence", ErrPersistence, true},
		{"wrapped persistence", fmt.Errorf("recorder: %w", ErrPersistence), true},
		{"disk full in message", fmt.Errorf("write data.csv: no space left on device"), true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"malformed sample", ErrMalformedSample, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err), "error: %v", tt.err)
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrMalformedSample))
	assert.True(t, IsInvalid(ErrParsingFailed))
	assert.True(t, IsInvalid(WrapInvalid(errors.New("bad row"), "replay", "Pull", "parse row")))
	assert.False(t, IsInvalid(ErrPersistence))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"connection timeout", ErrConnectionTimeout, ErrorTransient},
		{"no stream found", ErrNoStreamFound, ErrorFatal},
		{"malformed sample", ErrMalformedSample, ErrorInvalid},
		{"unknown error", fmt.Errorf("unknown error"), ErrorTransient},
		{"classified error", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassifiedError(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorTransient, baseErr, "inlet", "Pull", "custom message")

	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "inlet", ce.Component)
	assert.Equal(t, "Pull", ce.Operation)
	assert.Equal(t, "custom message", ce.Error())
	assert.ErrorIs(t, ce, baseErr)

	bare := newClassified(ErrorTransient, baseErr, "inlet", "Pull", "")
	assert.Equal(t, "base error", bare.Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "component", "method", "action"))

	err := Wrap(fmt.Errorf("original error"), "acquirer", "Pull", "pull chunk")
	require.Error(t, err)
	assert.Equal(t, "acquirer.Pull: pull chunk failed: original error", err.Error())
}

func TestWrapClassified(t *testing.T) {
	baseErr := fmt.Errorf("original error")

	tests := []struct {
		name     string
		wrapFunc func(error, string, string, string) error
		class    ErrorClass
	}{
		{"WrapTransient", WrapTransient, ErrorTransient},
		{"WrapFatal", WrapFatal, ErrorFatal},
		{"WrapInvalid", WrapInvalid, ErrorInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.wrapFunc(baseErr, "component", "method", "action")

			var ce *ClassifiedError
			require.ErrorAs(t, result, &ce)
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "component", ce.Component)
			assert.Equal(t, "method", ce.Operation)
			assert.Contains(t, ce.Error(), "component.method: action failed")
			assert.ErrorIs(t, result, baseErr)
		})
	}

	assert.Nil(t, WrapFatal(nil, "c", "m", "a"))
}

func TestPersistence(t *testing.T) {
	cause := errors.New("write recording.csv: input/output error")
	err := Persistence(cause, "recorder", "Flush", "durability flush")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "recorder.Flush: durability flush failed")

	assert.Nil(t, Persistence(nil, "recorder", "Flush", "durability flush"))
}

func TestRemediation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"no stream", WrapFatal(ErrNoStreamFound, "stream", "Connect", "resolve"), "streaming"},
		{"channels", ErrInsufficientChannels, "min_channels"},
		{"persistence", Persistence(errors.New("eio"), "recorder", "Append", "write row"), "disk space"},
		{"config", ErrInvalidConfig, "--validate"},
		{"source closed", ErrSourceClosed, "restart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, Remediation(tt.err), tt.contains)
		})
	}

	assert.Empty(t, Remediation(nil))
	assert.Empty(t, Remediation(errors.New("something else")))
}

func TestStandardErrors(t *testing.T) {
	standard := []error{
		ErrAlreadyStarted, ErrNotStarted, ErrAlreadyStopped,
		ErrNoConnection, ErrConnectionLost, ErrConnectionTimeout,
		ErrInvalidData, ErrParsingFailed, ErrInvalidConfig, ErrMissingConfig,
		ErrNoStreamFound, ErrInsufficientChannels, ErrSourceClosed, ErrMalformedSample,
		ErrPersistence, ErrStorageFull,
	}

	seen := make(map[string]bool)
	for _, err := range standard {
		require.NotNil(t, err)
		msg := err.Error()
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate error message %q", msg)
		seen[msg] = true
	}
}

func BenchmarkClassify(b *testing.B) {
	err := Persistence(errors.New("eio"), "recorder", "Flush", "durability flush")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Classify(err)
	}
}
