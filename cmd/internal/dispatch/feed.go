package dispatch

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	feedSendQueueSize = 64
	feedWriteTimeout  = 5 * time.Second
)

// Feed pushes attendance events to connected front ends over WebSocket.
// It is server-push only: clients never send application messages, so a
// slow or dead subscriber is dropped instead of stalling taps.
type Feed struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewFeed constructs an empty feed.
func NewFeed(log *slog.Logger) *Feed {
	return &Feed{log: log, subs: make(map[chan Event]struct{})}
}

// Broadcast fans an event out to every subscriber without blocking.
func (f *Feed) Broadcast(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; its write loop will close it.
		}
	}
}

func (f *Feed) subscribe() chan Event {
	ch := make(chan Event, feedSendQueueSize)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan Event) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
}

// SubscriberCount returns the number of connected feed clients.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// HandleWS upgrades the request and streams events until the client
// disconnects or the server shuts down.
func (f *Feed) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		f.log.Info("feed.accept.fail", "err", err, "remote", r.RemoteAddr)
		return
	}

	// CloseRead surfaces client disconnects via ctx; incoming data
	// frames also terminate the connection, which is what we want for a
	// push-only feed.
	ctx := conn.CloseRead(r.Context())

	ch := f.subscribe()
	defer f.unsubscribe(ch)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	f.log.Info("feed.subscribe", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			wctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				f.log.Info("feed.write.fail", "err", err, "remote", r.RemoteAddr)
				return
			}
		}
	}
}
