package window

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
	tu "github.com/c360/eegstreams/testutil"
)

func timestamps(s Snapshot) []float64 {
	ts, _ := s.Series(0)
	return ts
}

func TestEmptySnapshot(t *testing.T) {
	b := New(10*time.Second, 4)
	s := b.Snapshot()
	assert.NotNil(t, s.Points)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Latest()
	assert.False(t, ok)
	_, ok = b.Latest()
	assert.False(t, ok)
}

func TestColdStart(t *testing.T) {
	b := New(10*time.Second, 4)
	require.NoError(t, b.Consume(tu.Batch(4, 0.0)))

	s := b.Snapshot()
	assert.Equal(t, []float64{0}, timestamps(s))
	assert.Zero(t, b.Evicted())
}

func TestPruneKeepsLastWindow(t *testing.T) {
	b := New(10*time.Second, 4)
	var ts []float64
	for i := 0; i <= 20; i++ {
		ts = append(ts, float64(i))
	}
	require.NoError(t, b.Consume(tu.Batch(4, ts...)))

	got := timestamps(b.Snapshot())
	assert.Equal(t, ts[10:], got)
	assert.EqualValues(t, 10, b.Evicted())
}

func TestPruneBound(t *testing.T) {
	const span = 2.0
	b := New(2*time.Second, 1)

	ts := 0.0
	for chunk := range 50 {
		batch := make(message.Batch, 1+chunk%7)
		for i := range batch {
			ts += 0.013 * float64(1+i%3)
			batch[i] = message.Sample{Timestamp: ts, Values: []float64{ts}}
		}
		require.NoError(t, b.Consume(batch))

		s := b.Snapshot()
		latest, ok := s.Latest()
		require.True(t, ok)
		for _, p := range s.Points {
			require.GreaterOrEqual(t, p.Timestamp, latest-span)
		}
	}
}

func TestSnapshotPreservesOrder(t *testing.T) {
	b := New(time.Minute, 2)
	for i := range 100 {
		b.Append(message.Sample{Timestamp: float64(i), Values: []float64{float64(i), -float64(i)}})
	}

	s := b.Snapshot()
	want := make([]Point, 100)
	for i := range want {
		want[i] = Point{Timestamp: float64(i), Values: []float64{float64(i), -float64(i)}}
	}
	if diff := cmp.Diff(want, s.Points); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	_, values := s.Series(1)
	assert.Equal(t, -99.0, values[99])
}

func TestSnapshotIsIsolated(t *testing.T) {
	b := New(time.Minute, 1)
	values := []float64{1}
	b.Append(message.Sample{Timestamp: 1, Values: values})
	values[0] = 42

	s := b.Snapshot()
	b.Append(message.Sample{Timestamp: 2, Values: []float64{2}})
	b.Prune(100)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1.0, s.Points[0].Values[0])
	assert.Equal(t, 0, b.Len())
}

func TestPruneUsesGivenTime(t *testing.T) {
	b := New(5*time.Second, 1)
	b.Append(message.Sample{Timestamp: 1, Values: []float64{0}})
	b.Append(message.Sample{Timestamp: 4, Values: []float64{0}})
	b.Append(message.Sample{Timestamp: 8, Values: []float64{0}})

	assert.Equal(t, 0, b.Prune(6))
	assert.Equal(t, 1, b.Prune(7))
	assert.Equal(t, []float64{4, 8}, timestamps(b.Snapshot()))

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 8.0, latest)
}

func TestStallKeepsWindow(t *testing.T) {
	b := New(time.Second, 1)
	require.NoError(t, b.Consume(tu.Batch(1, 0.1, 0.5, 0.9)))
	require.NoError(t, b.Consume(nil))
	assert.Equal(t, 3, b.Len())
}

func TestMetrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	b := New(time.Second, 1, WithMetrics(m))
	require.NoError(t, b.Consume(tu.Batch(1, 0, 0.5, 1, 1.5, 2, 2.5)))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.points))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.evicted))
}

func TestConcurrentReaders(t *testing.T) {
	b := New(time.Second, 1)
	var wg sync.WaitGroup
	done := make(chan struct{})

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s := b.Snapshot()
				for i := 1; i < len(s.Points); i++ {
					if s.Points[i].Timestamp < s.Points[i-1].Timestamp {
						t.Error("snapshot out of order")
						return
					}
				}
			}
		}()
	}

	for i := range 2000 {
		_ = b.Consume(tu.Batch(1, float64(i)*0.01))
	}
	close(done)
	wg.Wait()
	assert.LessOrEqual(t, b.Len(), 101)
}
