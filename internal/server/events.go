package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/musestudio/stagehand/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The listener is loopback-only; the UI loads from the asset host on a
	// different ephemeral port, so same-origin checks do not apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	writeWait     = 5 * time.Second
	snapshotQueue = 8
)

// wsObserver buffers snapshots for one websocket client. Deliver never
// blocks: when the client cannot keep up the oldest pending snapshot is
// dropped, which is harmless because every snapshot is complete.
type wsObserver struct {
	ch chan broadcast.Snapshot
}

func (o *wsObserver) Deliver(s broadcast.Snapshot) {
	for {
		select {
		case o.ch <- s:
			return
		default:
			select {
			case <-o.ch: // drop oldest
			default:
			}
		}
	}
}

// handleEvents upgrades to a websocket and streams status snapshots until
// the client goes away.
func (r *Router) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	obs := &wsObserver{ch: make(chan broadcast.Snapshot, snapshotQueue)}
	unsubscribe := r.orch.Subscribe(obs)
	defer unsubscribe()
	defer func() { _ = conn.Close() }()

	// Reader goroutine: we never expect client frames, but reading is
	// required to notice closes and answer pings.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case snap := <-obs.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}
