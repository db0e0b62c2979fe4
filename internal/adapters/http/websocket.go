package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	natsadapter "github.com/samirrijal/overlaymap/internal/adapters/nats"
	"github.com/samirrijal/overlaymap/internal/adapters/surface"
	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
	"github.com/samirrijal/overlaymap/internal/core/usecases"
	"github.com/samirrijal/overlaymap/internal/pkg/metrics"
)

const (
	pingInterval = 30 * time.Second
	eventBuffer  = 64
)

// socketWriter serialises writes to a websocket connection.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *socketWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// keepAlive pings the peer until done is closed or a ping fails.
func (w *socketWriter) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			err := w.conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func knownEvent(t domain.EventType) bool {
	switch t {
	case domain.EventLoad, domain.EventMove, domain.EventClick, domain.EventRefresh, domain.EventSport:
		return true
	}
	return false
}

// SessionSocketHandler bridges a browser map to an overlay session.
// The client sends surface events as JSON:
//
//	{"type":"move","bounds":{...},"zoom":10.3}
//
// and receives init, addSource, addLayer, removeLayer, removeSource, popup
// and status commands. The session's layers are torn down on disconnect.
func SessionSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		id := uuid.NewString()
		logger := slog.Default().With("session", id, "remote", c.RemoteAddr().String())
		logger.Info("ws session connected")

		w := &socketWriter{conn: c}
		remote := surface.NewRemote(w.writeJSON, eventBuffer)
		session := usecases.NewSession(remote, deps.fetchers(), usecases.SessionOptions{
			ID:        id,
			Sport:     deps.Defaults.Sport,
			Publisher: deps.Publisher,
			Status: func(st usecases.State, err error) {
				_ = remote.Status(st.String(), err)
			},
		})

		if err := remote.Init(id, deps.Defaults.Center, deps.Defaults.Zoom, session.Sport()); err != nil {
			logger.Warn("ws init failed", "error", err)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("session stopped", "error", err)
			}
		}()
		go w.keepAlive(ctx.Done())

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var ev domain.SurfaceEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				_ = w.writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if !knownEvent(ev.Type) {
				_ = w.writeJSON(map[string]string{"error": "unknown event: " + string(ev.Type)})
				continue
			}
			if err := remote.Push(ctx, ev); err != nil {
				break
			}
		}

		cancel()
		remote.Close()
		<-stopped
		logger.Info("ws session disconnected")
	}
}

// relayMessage is sent by dashboard clients to narrow or widen the relay.
type relayMessage struct {
	Action   string `json:"action"`   // "subscribe" | "unsubscribe"
	Category string `json:"category"` // "" = every category
}

// EventsSocketHandler relays reconciliation events from the broker to
// dashboard clients. Every category is relayed until the client changes it:
//
//	{"action":"subscribe","category":"segment"}
func EventsSocketHandler(sub ports.EventSubscriber) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws relay connected", "remote", remoteAddr)
		metrics.ActiveRelays.Inc()
		defer metrics.ActiveRelays.Dec()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		w := &socketWriter{conn: c}
		forward := func(_ string, data []byte) {
			_ = w.writeJSON(json.RawMessage(data))
		}

		subs := make(map[string]func()) // subject -> unsubscribe
		unsub, err := sub.Subscribe(ctx, natsadapter.SubjectAll, forward)
		if err != nil {
			slog.Warn("ws relay subscribe failed", "error", err)
			return
		}
		subs[natsadapter.SubjectAll] = unsub

		go w.keepAlive(ctx.Done())

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m relayMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = w.writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			subject := natsadapter.SubjectAll
			if m.Category != "" {
				cat, err := domain.ParseCategory(m.Category)
				if err != nil {
					_ = w.writeJSON(map[string]string{"error": err.Error()})
					continue
				}
				subject = natsadapter.ReconciledSubject(cat)
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = w.writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				unsub, err := sub.Subscribe(ctx, subject, forward)
				if err != nil {
					_ = w.writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = unsub
				_ = w.writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if unsub, exists := subs[subject]; exists {
					unsub()
					delete(subs, subject)
					_ = w.writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = w.writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = w.writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		for _, unsub := range subs {
			unsub()
		}
		slog.Info("ws relay disconnected", "remote", remoteAddr)
	}
}
