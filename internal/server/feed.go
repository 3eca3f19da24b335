package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/engine"
)

const (
	defaultFeedPoll  = 2 * time.Second
	defaultFeedBatch = 100
	feedWriteTimeout = 5 * time.Second
	feedPongWait     = 60 * time.Second
	feedPingEvery    = 45 * time.Second
)

// Subscriber streams an actor's committed notifications as they are published.
type Subscriber interface {
	Subscribe(ctx context.Context, actorID string) (<-chan domain.Notification, func() error)
}

// FeedConfig tunes the live notification feed. Without a Subscriber the feed
// polls the notifications table.
type FeedConfig struct {
	Subscriber Subscriber
	Poll       time.Duration
}

type feed struct {
	engine   engine.Engine
	cfg      FeedConfig
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func newFeed(e engine.Engine, cfg FeedConfig, log *slog.Logger) *feed {
	if cfg.Poll <= 0 {
		cfg.Poll = defaultFeedPoll
	}
	return &feed{
		engine: e,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and streams notifications newer than the
// "after" query parameter until the client goes away.
func (f *feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actorID, authErr := actorIDFromContext(r.Context())
	if authErr != nil {
		respondStatusError(w, authErr)
		return
	}
	var cursor int64
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid after cursor", map[string]any{"after": v}))
			return
		}
		cursor = parsed
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.readPump(conn, cancel)

	var live <-chan domain.Notification
	if f.cfg.Subscriber != nil {
		ch, closeSub := f.cfg.Subscriber.Subscribe(ctx, actorID)
		defer closeSub()
		live = ch
	}

	// Backlog first; with a subscriber attached this also covers anything
	// committed while the subscription was being set up.
	if cursor, err = f.flush(ctx, conn, actorID, cursor); err != nil {
		return
	}
	poll := time.NewTicker(f.cfg.Poll)
	defer poll.Stop()
	ping := time.NewTicker(feedPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-live:
			if !ok {
				live = nil
				continue
			}
			if n.ID != 0 && n.ID <= cursor {
				continue
			}
			if err := f.write(conn, n); err != nil {
				return
			}
			if n.ID > cursor {
				cursor = n.ID
			}
		case <-poll.C:
			if live != nil {
				continue
			}
			if cursor, err = f.flush(ctx, conn, actorID, cursor); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (f *feed) flush(ctx context.Context, conn *websocket.Conn, actorID string, cursor int64) (int64, error) {
	for {
		items, err := f.engine.ListNotifications(ctx, actorID, cursor, defaultFeedBatch)
		if err != nil {
			f.log.Warn("feed: list notifications", "actor", actorID, "err", err)
			return cursor, nil
		}
		for _, n := range items {
			if err := f.write(conn, n); err != nil {
				return cursor, err
			}
			cursor = n.ID
		}
		if len(items) < defaultFeedBatch {
			return cursor, nil
		}
	}
}

func (f *feed) write(conn *websocket.Conn, n domain.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// readPump discards client frames and cancels the stream once the peer is gone.
func (f *feed) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
