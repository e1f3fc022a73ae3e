package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eegstreams/errors"
)

func TestKeyFor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sim-1234", "sim-1234"},
		{"muse:00:55:da", "muse_00_55_da"},
		{"a.b c", "a_b_c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KeyFor(tt.in), tt.in)
	}
	assert.Equal(t, "eeg.streams.muse_1.chunks", SubjectFor("muse.1"))
}

func TestNewResolverRequiresClient(t *testing.T) {
	_, err := NewResolver(context.Background(), Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
	assert.True(t, errors.IsInvalid(err))
}
