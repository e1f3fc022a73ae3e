package file

import (
	"math"
	"strconv"

	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/pkg/timestamp"
)

// Fixed leading columns of every recording.
const (
	ColumnWallTimeISO  = "wall_time_iso"
	ColumnWallTimeUnix = "wall_time_unix"
	ColumnTimestamp    = "lsl_timestamp"
	ColumnSampleIndex  = "sample_index"
)

var fixedColumns = []string{ColumnWallTimeISO, ColumnWallTimeUnix, ColumnTimestamp, ColumnSampleIndex}

// Header returns the header row for channels.
func Header(channels []string) []string {
	h := make([]string, 0, len(fixedColumns)+len(channels))
	h = append(h, fixedColumns...)
	return append(h, channels...)
}

func formatRow(dst []string, s message.Sample, width int) []string {
	dst = dst[:0]
	wall := s.WallTime
	dst = append(dst,
		timestamp.FormatISO(wall),
		timestamp.FormatSeconds(timestamp.UnixSeconds(wall)),
		timestamp.FormatSeconds(s.Timestamp),
		strconv.FormatUint(s.Index, 10),
	)
	for i := range width {
		v := math.NaN()
		if i < len(s.Values) {
			v = s.Values[i]
		}
		dst = append(dst, formatValue(v))
	}
	return dst
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
