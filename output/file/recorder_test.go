package file

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
)

var museChannels = []string{"TP9", "AF7", "AF8", "TP10"}

type RecorderSuite struct {
	suite.Suite
	dir string
	cfg Config
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.cfg = DefaultConfig()
	s.cfg.Directory = filepath.Join(s.dir, "Data")
	s.cfg.Sync = false
}

func (s *RecorderSuite) open(opts ...Option) *Recorder {
	r, err := Open(s.cfg, Header(museChannels), opts...)
	s.Require().NoError(err)
	return r
}

func sample(i uint64) message.Sample {
	v := float64(i)
	return message.Sample{
		Index:     i,
		Timestamp: 1000 + v/256,
		WallTime:  time.Unix(1700000000, int64(i)*int64(time.Millisecond)),
		Values:    []float64{v, -v, v / 3, 1e-7},
	}
}

func (s *RecorderSuite) TestOpenWritesHeader() {
	r := s.open()
	defer r.Close()

	data, err := os.ReadFile(r.Path())
	s.Require().NoError(err)
	s.Equal("wall_time_iso,wall_time_unix,lsl_timestamp,sample_index,TP9,AF7,AF8,TP10\n", string(data))
	s.NotEmpty(r.SessionID())
	s.True(r.Health().Healthy)
}

func (s *RecorderSuite) TestOpenTruncatesExisting() {
	s.Require().NoError(os.MkdirAll(s.cfg.Directory, 0o755))
	s.Require().NoError(os.WriteFile(s.cfg.Path(), []byte("stale\nrows\n"), 0o644))

	r := s.open()
	s.Require().NoError(r.Close())

	channels, samples, err := ReadAll(s.cfg.Path())
	s.Require().NoError(err)
	s.Equal(museChannels, channels)
	s.Empty(samples)
}

func (s *RecorderSuite) TestRowCountMatchesAppended() {
	r := s.open()
	batch := make(message.Batch, 0, 1000)
	for i := range uint64(1000) {
		batch = append(batch, sample(i))
	}
	s.Require().NoError(r.Consume(batch[:600]))
	s.Require().NoError(r.Consume(batch[600:]))
	s.Require().NoError(r.Close())
	s.EqualValues(1000, r.Rows())

	data, err := os.ReadFile(r.Path())
	s.Require().NoError(err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	s.Len(lines, 1001)
	for _, line := range lines {
		s.Equal(8, strings.Count(line, ",")+1)
	}
}

func (s *RecorderSuite) TestDurabilityFlushEvery() {
	s.cfg.FlushEvery = 3
	reg := metric.NewMetricsRegistry()
	r := s.open(WithMetrics(reg))
	defer r.Close()

	for i := range uint64(7) {
		s.Require().NoError(r.Append(sample(i)))
	}
	// header flush plus two batches of three
	s.Equal(3.0, testutil.ToFloat64(r.metrics.flushes))
	s.Equal(7.0, testutil.ToFloat64(r.metrics.rowsWritten))

	_, samples, err := ReadAll(r.Path())
	s.Require().NoError(err)
	s.Len(samples, 6)

	s.Require().NoError(r.Flush())
	_, samples, err = ReadAll(r.Path())
	s.Require().NoError(err)
	s.Len(samples, 7)
}

func (s *RecorderSuite) TestCloseIsIdempotent() {
	r := s.open()
	s.Require().NoError(r.Append(sample(0)))
	s.Require().NoError(r.Close())
	s.Require().NoError(r.Close())
	s.False(r.Health().Healthy)

	err := r.Append(sample(1))
	s.Require().Error(err)
	s.ErrorIs(err, errors.ErrPersistence)

	_, samples, err := ReadAll(r.Path())
	s.Require().NoError(err)
	s.Len(samples, 1)
}

func (s *RecorderSuite) TestWriteFailureIsFatal() {
	s.cfg.FlushEvery = 2
	r := s.open()
	s.Require().NoError(r.Append(sample(0)))
	s.Require().NoError(r.Append(sample(1)))

	s.Require().NoError(r.file.Close())

	s.Require().NoError(r.Append(sample(2)))
	err := r.Append(sample(3))
	s.Require().Error(err)
	s.ErrorIs(err, errors.ErrPersistence)
	s.True(errors.IsFatal(err))
	s.NotEmpty(errors.Remediation(err))

	s.ErrorIs(r.Append(sample(4)), errors.ErrPersistence)
	s.False(r.Health().Healthy)
	s.Require().NoError(r.Close())

	_, samples, err := ReadAll(r.Path())
	s.Require().NoError(err)
	s.Len(samples, 2)
}

func (s *RecorderSuite) TestManifest() {
	desc := message.Descriptor{SourceID: "sim-1", Name: "FakeMuse", Type: "EEG", ChannelCount: 4, NominalRate: 256}
	r := s.open(WithDescriptor(desc))

	m, err := ReadManifest(r.Path())
	s.Require().NoError(err)
	s.Equal(r.SessionID(), m.SessionID)
	s.Nil(m.StoppedAt)

	s.Require().NoError(r.Append(sample(0)))
	s.Require().NoError(r.Close())

	m, err = ReadManifest(r.Path())
	s.Require().NoError(err)
	s.EqualValues(1, m.Rows)
	s.Require().NotNil(m.StoppedAt)
	s.Require().NotNil(m.Descriptor)
	s.Equal("FakeMuse", m.Descriptor.Name)
	s.Equal(museChannels, m.Channels)
}

func (s *RecorderSuite) TestManifestDisabled() {
	s.cfg.Manifest = false
	r := s.open()
	s.Require().NoError(r.Close())
	s.Empty(r.SessionID())

	_, err := os.Stat(r.Path() + ManifestSuffix)
	s.True(os.IsNotExist(err))
}

func TestOpenRejectsBadHeader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()

	_, err := Open(cfg, museChannels)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestOpenUnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	cfg := DefaultConfig()
	cfg.Directory = filepath.Join(blocker, "Data")

	_, err := Open(cfg, Header(museChannels))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistence)
	assert.True(t, errors.IsFatal(err))
}

func TestRoundTripWithNaN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	cfg.Sync = false

	r, err := Open(cfg, Header(museChannels))
	require.NoError(t, err)

	want := []message.Sample{
		sample(0),
		{Index: 1, Timestamp: 1000.5, WallTime: time.Unix(1700000001, 250000000), Values: []float64{1.5, math.NaN(), math.NaN(), math.NaN()}},
		sample(2),
	}
	for _, s := range want {
		require.NoError(t, r.Append(s))
	}
	require.NoError(t, r.Close())

	channels, got, err := ReadAll(r.Path())
	require.NoError(t, err)
	assert.Equal(t, museChannels, channels)
	require.Len(t, got, len(want))

	for i := range want {
		assert.Equal(t, want[i].Index, got[i].Index)
		assert.InDelta(t, want[i].Timestamp, got[i].Timestamp, 1e-6)
		assert.WithinDuration(t, want[i].WallTime, got[i].WallTime, time.Microsecond)
		for c := range want[i].Values {
			if math.IsNaN(want[i].Values[c]) {
				assert.True(t, math.IsNaN(got[i].Values[c]), "row %d channel %d", i, c)
				continue
			}
			assert.Equal(t, want[i].Values[c], got[i].Values[c], "row %d channel %d", i, c)
		}
	}

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), ",1.5,NaN,NaN,NaN\n")
}

func TestShortRowsArePadded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	cfg.Sync = false

	r, err := Open(cfg, Header(museChannels))
	require.NoError(t, err)
	require.NoError(t, r.Append(message.Sample{Index: 0, Timestamp: 1, WallTime: time.Now(), Values: []float64{7}}))
	require.NoError(t, r.Append(message.Sample{Index: 1, Timestamp: 2, WallTime: time.Now(), Values: []float64{1, 2, 3, 4, 5}}))
	require.NoError(t, r.Close())

	_, got, err := ReadAll(r.Path())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 7.0, got[0].Values[0])
	assert.True(t, math.IsNaN(got[0].Values[3]))
	assert.Equal(t, []float64{1, 2, 3, 4}, got[1].Values)
}

func TestFormatRow(t *testing.T) {
	wall := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.Local)
	row := formatRow(nil, message.Sample{Index: 42, Timestamp: 12.3456789, WallTime: wall, Values: []float64{0.1, math.NaN()}}, 2)

	assert.Equal(t, "2024-03-01T12:30:45.123456", row[0])
	assert.Equal(t, "12.345679", row[2])
	assert.Equal(t, "42", row[3])
	assert.Equal(t, []string{"0.1", "NaN"}, row[4:])
	assert.Len(t, strings.Split(row[1], ".")[1], 6)
}

func TestReaderRejectsForeignHeader(t *testing.T) {
	_, err := NewReader(strings.NewReader("a,b,c\n1,2,3\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestReaderReportsBadValue(t *testing.T) {
	src := "wall_time_iso,wall_time_unix,lsl_timestamp,sample_index,TP9\n" +
		"x,1.000000,2.000000,0,oops\n"
	r, err := NewReader(strings.NewReader(src))
	require.NoError(t, err)

	_, err = r.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
	assert.Contains(t, err.Error(), "TP9")
}
