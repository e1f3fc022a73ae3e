// Package buffer provides generic, thread-safe buffers for sample plumbing.
//
//   - CircularBuffer: fixed-capacity FIFO that evicts its oldest item on overflow,
//     used as the inlet queue between a network reader and the acquisition loop
//   - Ring: unbounded growable deque with O(1) push-back and pop-front, used as
//     the storage of the sliding window
//
// Statistics are always collected; Prometheus metrics are optional via WithMetrics().
package buffer

// Buffer represents a bounded FIFO parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item to the buffer. When the buffer is full the oldest
	// item is evicted first.
	Write(item T) error

	// Read retrieves and removes one item from the buffer.
	// Returns the item and true if successful, zero value and false if buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items in FIFO order.
	ReadBatch(max int) []T

	// Ready returns a channel that receives a value after writes to an empty
	// or partially drained buffer. Consumers use it to wait without polling.
	Ready() <-chan struct{}

	Size() int
	Capacity() int
	IsEmpty() bool
	Clear()

	// Stats returns buffer statistics (always available for observability).
	Stats() *Statistics

	// Close rejects further writes. Buffered items can still be read.
	Close() error
}

// NewCircularBuffer creates a new circular buffer with the specified capacity and options.
// Returns an error if metrics registration fails when metrics are requested.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	return newCircularBuffer(capacity, collect(options))
}
