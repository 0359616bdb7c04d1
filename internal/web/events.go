package web

import (
	"log"
	"net/http"
	"time"

	"dapur-kita/internal/app"

	"github.com/gorilla/websocket"
)

const eventWriteTimeout = 5 * time.Second

type eventMessage struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// handleEvents streams cache events of the recipe list so open list pages
// can reload after a recipe is created.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so no event published after
	// the client is connected can be missed.
	events, unsubscribe := s.app.Subscribe(app.RecipesKey)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The read loop only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(eventMessage{Type: ev.Type.String(), Key: ev.Key.String()}); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("Websocket write failed: %v", err)
				}
				return
			}
		}
	}
}
