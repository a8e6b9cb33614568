package httpapi

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/psp-engine/psp/internal/alerting"
)

// alertHub fans out newly generated alerts to every connected websocket
// client on the live alert feed. One hub per Server; alertEngine.RegisterHandler
// feeds it directly from the pipeline.
type alertHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool

	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient

	ctx    context.Context
	cancel context.CancelFunc
}

func newAlertHub(ctx context.Context) *alertHub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &alertHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

func (h *alertHub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *alertHub) stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// onAlert is registered as an alerting.Handler and broadcasts every alert
// the pipeline generates to connected clients.
func (h *alertHub) onAlert(a alerting.Alert) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	}
}

func (h *alertHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
