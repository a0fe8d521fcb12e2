package spcline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures the streaming API.
type StreamConfig struct {
	// Enabled turns on WebSocket streaming
	Enabled bool
	// BufferSize is the channel buffer size per subscription
	BufferSize int
	// WriteTimeout for WebSocket writes
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled:      true,
		BufferSize:   64,
		WriteTimeout: 10 * time.Second,
	}
}

// StreamEvent is one push: a metric received observations and was
// re-analyzed. Result is nil when the re-analysis failed.
type StreamEvent struct {
	Metric string          `json:"metric"`
	Added  []Observation   `json:"added,omitempty"`
	Result *AnalysisResult `json:"result,omitempty"`
}

// Subscription represents an active stream subscription.
type Subscription struct {
	ID      string
	Metric  string
	ch      chan StreamEvent
	done    chan struct{}
	closed  bool
	mu      sync.Mutex
	created time.Time
}

// C returns the channel for receiving events.
func (s *Subscription) C() <-chan StreamEvent {
	return s.ch
}

// Close closes the subscription.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// StreamHub manages real-time subscriptions to analysis updates.
type StreamHub struct {
	config StreamConfig
	mu     sync.RWMutex
	subs   map[string]*Subscription
	nextID uint64
}

// NewStreamHub creates a new streaming hub.
func NewStreamHub(cfg StreamConfig) *StreamHub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	return &StreamHub{
		config: cfg,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe creates a new subscription. An empty metric matches every metric.
func (h *StreamHub) Subscribe(metric string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := fmt.Sprintf("sub-%d", h.nextID)

	sub := &Subscription{
		ID:      id,
		Metric:  metric,
		ch:      make(chan StreamEvent, h.config.BufferSize),
		done:    make(chan struct{}),
		created: time.Now(),
	}

	h.subs[id] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (h *StreamHub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Publish sends an event to all matching subscriptions.
func (h *StreamHub) Publish(ev StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.Metric != "" && sub.Metric != ev.Metric {
			continue
		}

		select {
		case sub.ch <- ev:
		default:
			// Buffer full, drop the event
		}
	}
}

// Interested reports whether any subscription matches the metric. Publishers
// use it to skip re-analysis when nobody is listening.
func (h *StreamHub) Interested(metric string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.Metric == "" || sub.Metric == metric {
			return true
		}
	}
	return false
}

// Count returns the number of active subscriptions.
func (h *StreamHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// List returns all active subscription IDs.
func (h *StreamHub) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	return ids
}

// WebSocket handling

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is the JSON format for WebSocket messages.
type StreamMessage struct {
	Type   string       `json:"type"`
	Metric string       `json:"metric,omitempty"`
	Event  *StreamEvent `json:"event,omitempty"`
	SubID  string       `json:"sub_id,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// WebSocketHandler returns an HTTP handler for WebSocket connections.
func (h *StreamHub) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Map of active subscriptions for this connection
		connSubs := make(map[string]*Subscription)
		var connMu sync.Mutex

		// Read commands from client
		go func() {
			defer cancel()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}

				var cmd StreamMessage
				if err := json.Unmarshal(msg, &cmd); err != nil {
					h.sendError(conn, "invalid message format")
					continue
				}

				switch cmd.Type {
				case "subscribe":
					sub := h.Subscribe(cmd.Metric)
					connMu.Lock()
					connSubs[sub.ID] = sub
					connMu.Unlock()

					resp, _ := json.Marshal(StreamMessage{
						Type:  "subscribed",
						SubID: sub.ID,
					})
					_ = conn.WriteMessage(websocket.TextMessage, resp)

					// Start forwarding events for this subscription
					go h.forwardEvents(ctx, conn, sub)

				case "unsubscribe":
					connMu.Lock()
					if sub, ok := connSubs[cmd.SubID]; ok {
						delete(connSubs, cmd.SubID)
						h.Unsubscribe(sub.ID)
					}
					connMu.Unlock()

					resp, _ := json.Marshal(StreamMessage{
						Type:  "unsubscribed",
						SubID: cmd.SubID,
					})
					_ = conn.WriteMessage(websocket.TextMessage, resp)

				default:
					h.sendError(conn, "unknown command: "+cmd.Type)
				}
			}
		}()

		// Wait for context cancellation
		<-ctx.Done()

		// Cleanup subscriptions
		connMu.Lock()
		for _, sub := range connSubs {
			h.Unsubscribe(sub.ID)
		}
		connMu.Unlock()
	}
}

func (h *StreamHub) forwardEvents(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			msg, _ := json.Marshal(StreamMessage{
				Type:   "update",
				Metric: ev.Metric,
				SubID:  sub.ID,
				Event:  &ev,
			})
			if h.config.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (h *StreamHub) sendError(conn *websocket.Conn, msg string) {
	resp, _ := json.Marshal(StreamMessage{
		Type:  "error",
		Error: msg,
	})
	_ = conn.WriteMessage(websocket.TextMessage, resp)
}
