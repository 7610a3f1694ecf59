package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventsBuffer     = 64
	eventsPingPeriod = 30 * time.Second
	eventsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// The feed is read-only and served to the local web UI.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams operational events over a websocket. Recent
// history is replayed first, then live events follow until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event feed not configured")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	sub := s.bus.Subscribe(eventsBuffer)
	defer s.bus.Unsubscribe(sub)

	for _, ev := range s.bus.Recent() {
		_ = ws.SetWriteDeadline(time.Now().Add(eventsWriteWait))
		if err := ws.WriteJSON(ev); err != nil {
			return
		}
	}

	// Reader loop only notices the close; clients send nothing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("event feed read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Debug("event feed write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		}
	}
}
