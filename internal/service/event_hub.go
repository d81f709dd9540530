package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/model"
	"go.uber.org/zap"
)

// HubConfig tunes connection lifecycle timers and per-connection buffering.
type HubConfig struct {
	HeartbeatInterval time.Duration
	HealthInterval    time.Duration
	BufferSize        int
}

// DefaultHubConfig returns 10s heartbeats, 5s health checks and a 64-frame buffer.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		HeartbeatInterval: 10 * time.Second,
		HealthInterval:    5 * time.Second,
		BufferSize:        64,
	}
}

// Target selects who a connection listens for: one astrologer or every global event.
type Target struct {
	AstrologerID string
	Global       bool
}

// Conn is one open push stream. Transports drain Frames until Done is closed.
type Conn struct {
	Target Target
	ctx    context.Context // transport lifetime; cancelled on client abort
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newConn(ctx context.Context, t Target, size int) *Conn {
	if size <= 0 {
		size = 1
	}
	return &Conn{Target: t, ctx: ctx, send: make(chan []byte, size), done: make(chan struct{})}
}

// Frames yields encoded JSON event frames in send order.
func (c *Conn) Frames() <-chan []byte { return c.send }

// Done is closed once the connection has been evicted from the hub.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) close() { c.once.Do(func() { close(c.done) }) }

// closed reports eviction or an aborted transport, whichever the hub sees first.
func (c *Conn) closed() bool {
	if c.ctx.Err() != nil {
		return true
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) full() bool { return len(c.send) == cap(c.send) }

// enqueue never blocks. The send channel is never closed, so a racing
// eviction cannot make this panic.
func (c *Conn) enqueue(frame []byte) (ok, full bool) {
	if c.closed() {
		return false, false
	}
	select {
	case c.send <- frame:
		return true, false
	default:
		return false, true
	}
}

// Notifier delivers events to listening clients. EventHub delivers to
// connections of this process; relay.Relay fans out across instances.
type Notifier interface {
	NotifyAstrologer(ctx context.Context, astrologerID string, ev model.Event) bool
	NotifyGlobal(ctx context.Context, ev model.Event) int
}

// EventHub keeps the open push connections of this process: at most one per
// astrologer plus any number of global listeners.
type EventHub struct {
	mu          sync.RWMutex
	astrologers map[string]*Conn
	global      map[*Conn]struct{}
	cfg         HubConfig
	log         *zap.Logger
	now         func() time.Time
}

// NewEventHub creates an empty hub. Zero intervals fall back to the defaults.
func NewEventHub(cfg HubConfig, log *zap.Logger) *EventHub {
	def := DefaultHubConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventHub{
		astrologers: make(map[string]*Conn),
		global:      make(map[*Conn]struct{}),
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// Open registers a connection, queues the "connected" handshake and starts the
// heartbeat and health-check timers. Cancelling ctx (client disconnect) evicts
// the connection. A newer connection for the same astrologer supersedes the old one.
func (h *EventHub) Open(ctx context.Context, t Target) *Conn {
	c := newConn(ctx, t, h.cfg.BufferSize)

	var superseded *Conn
	h.mu.Lock()
	if t.Global {
		h.global[c] = struct{}{}
	} else {
		superseded = h.astrologers[t.AstrologerID]
		h.astrologers[t.AstrologerID] = c
	}
	h.mu.Unlock()

	if superseded != nil {
		superseded.close()
		h.log.Info("event connection superseded", zap.String("astrologer_id", t.AstrologerID))
	}
	h.log.Info("event connection opened",
		zap.String("astrologer_id", t.AstrologerID),
		zap.Bool("global", t.Global))

	hello := model.Event{Type: model.EventConnected, AstrologerID: t.AstrologerID, Global: t.Global}
	if frame, err := h.encode(hello); err == nil {
		c.enqueue(frame)
	}

	go h.watch(ctx, c)
	return c
}

func (h *EventHub) watch(ctx context.Context, c *Conn) {
	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	health := time.NewTicker(h.cfg.HealthInterval)
	defer func() {
		heartbeat.Stop()
		health.Stop()
		h.Close(c)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			if c.full() {
				h.log.Debug("heartbeat skipped, send buffer full", zap.String("astrologer_id", c.Target.AstrologerID))
				continue
			}
			if frame, err := h.encode(model.Event{Type: model.EventHeartbeat}); err == nil {
				c.enqueue(frame)
			}
		case <-health.C:
			if ctx.Err() != nil || c.closed() {
				return
			}
		}
	}
}

// Close evicts c from the hub and closes it. It is safe to call more than once.
func (h *EventHub) Close(c *Conn) {
	h.mu.Lock()
	removed := false
	if c.Target.Global {
		if _, ok := h.global[c]; ok {
			delete(h.global, c)
			removed = true
		}
	} else if h.astrologers[c.Target.AstrologerID] == c {
		delete(h.astrologers, c.Target.AstrologerID)
		removed = true
	}
	h.mu.Unlock()
	c.close()

	if removed {
		h.log.Info("event connection closed",
			zap.String("astrologer_id", c.Target.AstrologerID),
			zap.Bool("global", c.Target.Global))
	}
}

// Send queues ev for the astrologer's connection. It returns false when the
// astrologer has no connection, when the buffer is full (connection kept), or
// when the connection is already closed (connection evicted).
func (h *EventHub) Send(astrologerID string, ev model.Event) bool {
	h.mu.RLock()
	c := h.astrologers[astrologerID]
	h.mu.RUnlock()
	if c == nil {
		h.log.Debug("no active event connection", zap.String("astrologer_id", astrologerID))
		return false
	}

	frame, err := h.encode(ev)
	if err != nil {
		h.log.Warn("encode event failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return false
	}
	ok, full := c.enqueue(frame)
	switch {
	case full:
		h.log.Warn("event send buffer full", zap.String("astrologer_id", astrologerID))
		return false
	case !ok:
		h.Close(c)
		return false
	}
	return true
}

// BroadcastGlobal queues ev for every global connection and returns the number
// of successful deliveries. Full or closed connections are evicted afterwards.
func (h *EventHub) BroadcastGlobal(ev model.Event) int {
	frame, err := h.encode(ev)
	if err != nil {
		h.log.Warn("encode event failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.global))
	for c := range h.global {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Conn
	delivered := 0
	for _, c := range conns {
		if ok, _ := c.enqueue(frame); ok {
			delivered++
			continue
		}
		failed = append(failed, c)
	}
	for _, c := range failed {
		h.Close(c)
	}
	if len(failed) > 0 {
		h.log.Info("global event connections evicted", zap.Int("count", len(failed)))
	}
	return delivered
}

// NotifyAstrologer implements Notifier for this process only.
func (h *EventHub) NotifyAstrologer(_ context.Context, astrologerID string, ev model.Event) bool {
	return h.Send(astrologerID, ev)
}

// NotifyGlobal implements Notifier for this process only.
func (h *EventHub) NotifyGlobal(_ context.Context, ev model.Event) int {
	return h.BroadcastGlobal(ev)
}

// Counts returns the number of astrologer and global connections.
func (h *EventHub) Counts() (astrologers, global int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.astrologers), len(h.global)
}

// CloseAll evicts every connection (shutdown).
func (h *EventHub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.astrologers)+len(h.global))
	for _, c := range h.astrologers {
		conns = append(conns, c)
	}
	for c := range h.global {
		conns = append(conns, c)
	}
	h.astrologers = make(map[string]*Conn)
	h.global = make(map[*Conn]struct{})
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// encode stamps the event with the current time, overriding any caller value.
func (h *EventHub) encode(ev model.Event) ([]byte, error) {
	ev.Timestamp = h.now().UTC()
	return json.Marshal(ev)
}
