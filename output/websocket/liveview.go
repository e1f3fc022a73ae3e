package websocket

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/pkg/buffer"
	"github.com/c360/eegstreams/window"
)

// Snapshotter is the read side of the sliding window.
type Snapshotter interface {
	Snapshot() window.Snapshot
}

// Config holds configuration for the live view
type Config struct {
	Path                string
	RedrawInterval      time.Duration
	MinAutoscaleSamples int

	// MaxPoints caps the points per channel in a frame; longer windows are
	// thinned by taking every n-th point. Zero sends everything.
	MaxPoints int
}

// DefaultConfig returns the live view defaults
func DefaultConfig() Config {
	return Config{
		Path:                "/live",
		RedrawInterval:      50 * time.Millisecond,
		MinAutoscaleSamples: 10,
		MaxPoints:           1024,
	}
}

// Deps holds runtime dependencies for the live view
type Deps struct {
	Window          Snapshotter
	Channels        []string
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// ChannelFrame is one channel's trace.
type ChannelFrame struct {
	Name   string    `json:"name"`
	Y      *Range    `json:"y,omitempty"`
	Values []float64 `json:"values"`
}

// Frame is what clients receive on every redraw. NaN values are sent as
// null.
type Frame struct {
	Type       string         `json:"type"`
	Seq        uint64         `json:"seq"`
	Points     int            `json:"points"`
	X          *Range         `json:"x,omitempty"`
	Timestamps []float64      `json:"timestamps"`
	Channels   []ChannelFrame `json:"channels"`
}

type client struct {
	conn   *websocket.Conn
	frames buffer.Buffer[[]byte]
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.frames.Close()
		_ = c.conn.Close()
	})
}

// LiveView broadcasts window frames to WebSocket clients.
type LiveView struct {
	cfg      Config
	win      Snapshotter
	channels []string
	axes     []*Axis
	logger   *slog.Logger
	metrics  *Metrics
	tracker  component.Tracker
	upgrader websocket.Upgrader

	seq  uint64
	last atomic.Pointer[[]byte]

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

var _ component.Discoverable = (*LiveView)(nil)

// New creates a live view over deps.Window.
func New(cfg Config, deps Deps) (*LiveView, error) {
	if deps.Window == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "liveview", "New", "window check")
	}
	def := DefaultConfig()
	cfg.Path = cmp.Or(strings.TrimSuffix(cfg.Path, "/"), def.Path)
	if cfg.RedrawInterval <= 0 {
		cfg.RedrawInterval = def.RedrawInterval
	}
	if cfg.MinAutoscaleSamples < 0 {
		cfg.MinAutoscaleSamples = def.MinAutoscaleSamples
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.WrapTransient(err, "liveview", "New", "metrics registration")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	axes := make([]*Axis, len(deps.Channels))
	for i := range axes {
		axes[i] = NewAxis(cfg.MinAutoscaleSamples)
	}

	return &LiveView{
		cfg:      cfg,
		win:      deps.Window,
		channels: append([]string(nil), deps.Channels...),
		axes:     axes,
		logger:   logger.With("component", "liveview"),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 16384,
		},
		clients: make(map[*client]struct{}),
	}, nil
}

// Path returns the WebSocket endpoint path.
func (v *LiveView) Path() string {
	return v.cfg.Path
}

// Handler returns the HTTP handler for the WebSocket and snapshot
// endpoints. Mount it at Path() and Path()+"/".
func (v *LiveView) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(v.cfg.Path, v.handleWebSocket)
	mux.HandleFunc(v.cfg.Path+"/snapshot", v.handleSnapshot)
	return mux
}

// Render builds the frame for the window's current contents. It advances
// the autoscale state and is called only from Run's goroutine (or tests).
func (v *LiveView) Render() Frame {
	snap := v.win.Snapshot()
	v.seq++

	f := Frame{
		Type:     "frame",
		Seq:      v.seq,
		Points:   snap.Len(),
		Channels: make([]ChannelFrame, len(v.channels)),
	}
	if latest, ok := snap.Latest(); ok {
		x := XRange(latest, snap.Duration.Seconds())
		f.X = &x
	}

	stride := 1
	if v.cfg.MaxPoints > 0 && snap.Len() > v.cfg.MaxPoints {
		stride = (snap.Len() + v.cfg.MaxPoints - 1) / v.cfg.MaxPoints
	}

	for ch, name := range v.channels {
		ts, values := snap.Series(ch)
		cf := ChannelFrame{Name: name, Values: thin(values, stride)}
		if r, ok := v.axes[ch].Update(values); ok {
			cf.Y = &r
		}
		f.Channels[ch] = cf
		if ch == 0 {
			f.Timestamps = thin(ts, stride)
		}
	}
	if f.Timestamps == nil {
		f.Timestamps = []float64{}
	}
	return f
}

func thin(s []float64, stride int) []float64 {
	if stride <= 1 {
		return s
	}
	out := make([]float64, 0, len(s)/stride+1)
	for i := 0; i < len(s); i += stride {
		out = append(out, s[i])
	}
	return out
}

// Run redraws every RedrawInterval until ctx ends, then disconnects all
// clients.
func (v *LiveView) Run(ctx context.Context) error {
	v.tracker.Start()
	defer v.tracker.Stop()

	redraw := time.NewTicker(v.cfg.RedrawInterval)
	defer redraw.Stop()
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	v.logger.Info("Live view started", "path", v.cfg.Path, "redraw", v.cfg.RedrawInterval)

	for {
		select {
		case <-ctx.Done():
			v.closeAll()
			v.wg.Wait()
			return nil
		case <-redraw.C:
			v.redraw()
		case <-ping.C:
			v.pingClients()
		}
	}
}

func (v *LiveView) redraw() {
	start := time.Now()
	frame := v.Render()
	data, err := encodeFrame(frame)
	if err != nil {
		v.tracker.RecordError(err)
		v.logger.Warn("Frame encoding failed", "error", err)
		return
	}
	v.last.Store(&data)

	v.mu.Lock()
	for c := range v.clients {
		_ = c.frames.Write(data)
	}
	n := len(v.clients)
	v.mu.Unlock()

	v.tracker.RecordActivity(frame.Points, len(data)*n)
	if v.metrics != nil {
		v.metrics.frames.Inc()
		v.metrics.renderDuration.Observe(time.Since(start).Seconds())
	}
}

func (v *LiveView) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	data := v.last.Load()
	if data == nil {
		http.Error(w, "no frame rendered yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(*data)
}

func (v *LiveView) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		v.tracker.RecordError(err)
		if v.metrics != nil {
			v.metrics.errors.WithLabelValues("upgrade").Inc()
		}
		return
	}

	frames, err := buffer.NewCircularBuffer[[]byte](4,
		buffer.OnDrop(func([]byte) {
			if v.metrics != nil {
				v.metrics.framesDropped.Inc()
			}
		}),
	)
	if err != nil {
		_ = conn.Close()
		return
	}

	c := &client{conn: conn, frames: frames, done: make(chan struct{})}
	v.mu.Lock()
	v.clients[c] = struct{}{}
	n := len(v.clients)
	v.mu.Unlock()

	if v.metrics != nil {
		v.metrics.clients.Set(float64(n))
	}
	v.logger.Debug("Live view client connected", "remote", r.RemoteAddr, "clients", n)

	v.wg.Add(2)
	go v.writeLoop(c)
	go v.readLoop(c)
}

// writeLoop sends queued frames to one client.
func (v *LiveView) writeLoop(c *client) {
	defer v.wg.Done()
	defer v.removeClient(c)

	for {
		for {
			data, ok := c.frames.Read()
			if !ok {
				break
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if v.metrics != nil {
					v.metrics.errors.WithLabelValues("write").Inc()
				}
				return
			}
		}
		select {
		case <-c.done:
			return
		case <-c.frames.Ready():
		}
	}
}

// readLoop drains control frames so pongs and closes are processed.
func (v *LiveView) readLoop(c *client) {
	defer v.wg.Done()
	defer v.removeClient(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (v *LiveView) removeClient(c *client) {
	v.mu.Lock()
	_, present := v.clients[c]
	delete(v.clients, c)
	n := len(v.clients)
	v.mu.Unlock()

	c.close()
	if present {
		if v.metrics != nil {
			v.metrics.clients.Set(float64(n))
		}
		v.logger.Debug("Live view client disconnected", "clients", n)
	}
}

func (v *LiveView) pingClients() {
	v.mu.Lock()
	list := make([]*client, 0, len(v.clients))
	for c := range v.clients {
		list = append(list, c)
	}
	v.mu.Unlock()

	for _, c := range list {
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			v.removeClient(c)
		}
	}
}

func (v *LiveView) closeAll() {
	v.mu.Lock()
	list := make([]*client, 0, len(v.clients))
	for c := range v.clients {
		list = append(list, c)
	}
	v.mu.Unlock()
	for _, c := range list {
		v.removeClient(c)
	}
}

// Clients returns the number of connected clients.
func (v *LiveView) Clients() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.clients)
}

// Meta implements component.Discoverable.
func (v *LiveView) Meta() component.Metadata {
	return component.Metadata{
		Name:        "liveview",
		Type:        "output",
		Description: "WebSocket live view of the sliding window at " + v.cfg.Path,
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (v *LiveView) Health() component.HealthStatus {
	return v.tracker.Health()
}

// DataFlow implements component.Discoverable.
func (v *LiveView) DataFlow() component.FlowMetrics {
	return v.tracker.DataFlow()
}

// encodeFrame marshals f with NaN and ±Inf written as null, which JSON cannot
// otherwise carry.
func encodeFrame(f Frame) ([]byte, error) {
	type wireChannel struct {
		Name   string     `json:"name"`
		Y      *Range     `json:"y,omitempty"`
		Values []*float64 `json:"values"`
	}
	type wireFrame struct {
		Type       string        `json:"type"`
		Seq        uint64        `json:"seq"`
		Points     int           `json:"points"`
		X          *Range        `json:"x,omitempty"`
		Timestamps []float64     `json:"timestamps"`
		Channels   []wireChannel `json:"channels"`
	}

	w := wireFrame{
		Type:       f.Type,
		Seq:        f.Seq,
		Points:     f.Points,
		X:          f.X,
		Timestamps: f.Timestamps,
		Channels:   make([]wireChannel, len(f.Channels)),
	}
	for i, ch := range f.Channels {
		values := make([]*float64, len(ch.Values))
		for j := range ch.Values {
			if finite(ch.Values[j]) {
				values[j] = &ch.Values[j]
			}
		}
		w.Channels[i] = wireChannel{Name: ch.Name, Y: ch.Y, Values: values}
	}
	return json.Marshal(w)
}
