package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// Broker fans phone display updates out to SSE subscribers. Each
// subscriber gets a buffered channel; a subscriber that cannot keep up
// loses intermediate events, never blocking the publisher. Only the
// latest state matters to the UI, so dropped intermediates are fine.
type Broker struct {
	logger *logger.Logger

	mu   sync.Mutex
	subs map[chan types.DisplayState]struct{}
}

func NewBroker(l *logger.Logger) *Broker {
	return &Broker{
		logger: l.WithTag("sse"),
		subs:   make(map[chan types.DisplayState]struct{}),
	}
}

// Publish sends a display state to all subscribers.
func (b *Broker) Publish(d types.DisplayState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- d:
		default:
			// Slow subscriber; drop this event for it.
		}
	}
}

func (b *Broker) subscribe() chan types.DisplayState {
	ch := make(chan types.DisplayState, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan types.DisplayState) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// SubscriberCount returns the number of live subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ServeHTTP streams display states as server-sent events. The initial
// state is sent immediately so a reconnecting client renders without
// waiting for the next change. The subscription lives exactly as long
// as the request: client teardown cancels the request context, which
// removes the subscriber.
func (b *Broker) serve(w http.ResponseWriter, r *http.Request, initial types.DisplayState) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := b.subscribe()
	defer b.unsubscribe(ch)

	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case d := <-ch:
			if err := writeEvent(w, d); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, d types.DisplayState) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
