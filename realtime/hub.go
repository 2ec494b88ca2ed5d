package realtime

import "sync"

// Hub fans a board's change signals out to stream subscribers. Signals are
// coalescing: a subscriber that has not drained its channel sees at most one
// pending signal, which is enough because consumers refetch the full board.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string][]chan struct{}{}}
}

// Updates registers a subscriber for the board and returns its signal
// channel.
func (h *Hub) Updates(boardID string) <-chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[boardID] = append(h.subs[boardID], ch)
	h.mu.Unlock()
	return ch
}

// Release removes a subscriber registered with Updates.
func (h *Hub) Release(boardID string, ch <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[boardID]
	for i, cur := range subs {
		if cur == ch {
			h.subs[boardID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Broadcast signals every subscriber of the board.
func (h *Hub) Broadcast(boardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[boardID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
