package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/shiftwise/shiftwise/internal/security"
)

// EventHub fans audit events out to websocket subscribers. Publish never
// blocks; a slow subscriber drops events rather than stalling the audit
// path.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan security.AuditEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan security.AuditEvent]struct{})}
}

// Publish delivers an event to every subscriber. Safe to use as the audit
// logger's OnEvent hook.
func (h *EventHub) Publish(ev security.AuditEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a buffered event channel and a cancel func that must be
// called when the subscriber goes away.
func (h *EventHub) Subscribe() (<-chan security.AuditEvent, func()) {
	ch := make(chan security.AuditEvent, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// handleEvents upgrades to a websocket and streams audit events as JSON
// text frames until the client disconnects.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.hub == nil {
			writeError(w, http.StatusNotImplemented, "event stream disabled")
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		events, cancel := g.hub.Subscribe()
		defer cancel()

		// CloseRead discards inbound frames and cancels the context when
		// the peer goes away.
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			case ev := <-events:
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return
				}
			}
		}
	}
}
