// Package websocket serves the live view of the sliding window.
//
// LiveView is pull based: on every redraw tick it takes a snapshot of the
// window, turns it into a Frame and broadcasts the JSON encoding to every
// connected WebSocket client. It never writes to the window and never
// blocks acquisition; a client that falls behind loses its oldest frames.
//
// Axes follow the plotting rules of the desktop viewer: the x range is the
// window ending at the newest timestamp, and each channel's y range is
// recomputed only when more than MinAutoscaleSamples points are present,
// ignoring NaN, with a span of at least 1.0 and 15% padding. Otherwise the
// previous range is kept.
//
// Endpoints (relative to the configured path):
//
//	GET <path>           WebSocket upgrade, one text message per frame
//	GET <path>/snapshot  the most recent frame as JSON
package websocket
