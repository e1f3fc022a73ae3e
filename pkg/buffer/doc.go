// Package buffer provides the two queues the acquisition pipeline is built on.
//
// CircularBuffer is a bounded FIFO. Network inlets write decoded samples into
// it from their reader goroutine and the acquisition loop drains it with
// ReadBatch. When the consumer falls behind, the oldest items are evicted so
// the most recent data survives, which bounds the inlet's buffering horizon:
//
//	queue, err := buffer.NewCircularBuffer[message.Sample](rate*10,
//	    buffer.WithMetrics[message.Sample](registry, "inlet"),
//	    buffer.OnDrop(func(message.Sample) { dropped.Add(1) }),
//	)
//
// Ready() lets a consumer wait for data with its own timeout instead of polling.
//
// Ring is an unguarded growable deque. The sliding window appends to its back
// and evicts from its front, so both ends are O(1) and no indices shift.
package buffer
