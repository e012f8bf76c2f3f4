package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/mw"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Stream upgrades to a websocket and pushes the full list as JSON on
// connect and after every change. Client messages are ignored.
func Stream(d deps.Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || mw.OriginAllowed(origin, d.AllowedHosts)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error.
			d.Logger.Debug("websocket upgrade failed", logger.Error(err))
			return
		}
		defer conn.Close()

		updates, cancel := d.Bookmarks.Watch()
		defer cancel()

		log := d.Logger.With(logger.String("remote_ip", r.RemoteAddr))
		log.Debug("stream client connected")

		// Reader: handles pongs and notices the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case snap, ok := <-updates:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
					return
				}
				if err := conn.WriteJSON(snap); err != nil {
					log.Debug("stream write failed", logger.Error(err))
					return
				}

			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-gone:
				log.Debug("stream client disconnected")
				return

			case <-r.Context().Done():
				return
			}
		}
	}
}
