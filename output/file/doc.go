// Package file records a session to a CSV file.
//
// A Recorder owns one output file. The header is written once at Open and
// never rewritten; each Append writes one row in arrival order. Rows are
// buffered and made durable every FlushEvery rows (a CSV flush followed by an
// fsync when Sync is set), on an explicit Flush, and on Close. Any failure to
// write or flush is fatal and wraps errors.ErrPersistence; rows that were
// durable before the failure stay intact.
//
// Columns:
//
//	wall_time_iso, wall_time_unix, lsl_timestamp, sample_index, <channel names...>
//
// wall_time_iso is local time with microseconds, the two time columns use six
// decimals and channel values use the shortest representation that round
// trips. Missing values are written as NaN.
//
// When the manifest is enabled a sidecar <file>.meta.json describes the
// session: its id, the stream descriptor, the channels, start and stop time
// and the final row count.
//
// Reader parses a recording back into samples, which is what the replay
// source uses.
package file
