package file

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/pkg/timestamp"
)

// Reader parses a recording back into samples.
type Reader struct {
	r        *csv.Reader
	channels []string
	line     int
}

// NewReader reads and checks the header from src.
func NewReader(src io.Reader) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: header: %w", errors.ErrParsingFailed, err),
			"reader", "NewReader", "read header")
	}
	if len(header) < len(fixedColumns) || !slices.Equal(header[:len(fixedColumns)], fixedColumns) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unexpected header %v", errors.ErrInvalidData, header),
			"reader", "NewReader", "check header")
	}

	return &Reader{
		r:        cr,
		channels: slices.Clone(header[len(fixedColumns):]),
		line:     1,
	}, nil
}

// Channels returns the channel names from the header.
func (r *Reader) Channels() []string {
	return slices.Clone(r.channels)
}

// Next returns the next sample, or io.EOF after the last row.
func (r *Reader) Next() (message.Sample, error) {
	rec, err := r.r.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return message.Sample{}, io.EOF
		}
		return message.Sample{}, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrParsingFailed, err), "reader", "Next", "read row")
	}
	r.line++

	fail := func(column string, err error) (message.Sample, error) {
		return message.Sample{}, errors.WrapInvalid(
			fmt.Errorf("%w: line %d column %s: %w", errors.ErrParsingFailed, r.line, column, err),
			"reader", "Next", "parse row")
	}

	wall, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return fail(ColumnWallTimeUnix, err)
	}
	ts, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return fail(ColumnTimestamp, err)
	}
	idx, err := strconv.ParseUint(rec[3], 10, 64)
	if err != nil {
		return fail(ColumnSampleIndex, err)
	}

	values := make([]float64, len(r.channels))
	for i := range values {
		values[i], err = strconv.ParseFloat(rec[len(fixedColumns)+i], 64)
		if err != nil {
			return fail(r.channels[i], err)
		}
	}

	return message.Sample{
		Index:     idx,
		Timestamp: ts,
		WallTime:  timestamp.FromUnixSeconds(wall),
		Values:    values,
	}, nil
}

// ReadAll parses the recording at path.
func ReadAll(path string) (channels []string, samples []message.Sample, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.WrapInvalid(err, "reader", "ReadAll", "open recording")
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, nil, err
	}
	for {
		s, err := r.Next()
		if stderrors.Is(err, io.EOF) {
			return r.Channels(), samples, nil
		}
		if err != nil {
			return nil, nil, err
		}
		samples = append(samples, s)
	}
}
