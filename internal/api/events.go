package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	logx "alertd/pkg/logx"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingEvery    = 30 * time.Second
	wsBuffer       = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The route is admin-only; browsers on other origins are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// events streams lifecycle events as JSON text frames. ?type=a,b filters by
// event type.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.writeStatus(w, r, http.StatusNotImplemented, "event bus disabled")
		return
	}
	var types []string
	for _, t := range strings.Split(r.URL.Query().Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("websocket upgrade failed", logx.Err(err))
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.bus.Subscribe(wsBuffer, types...)
	defer unsubscribe()

	log := s.log.With(logx.String("request_id", requestID(r.Context())), logx.String("remote", r.RemoteAddr))
	log.Info("event stream opened", logx.Any("types", types))
	defer log.Info("event stream closed")

	// The reader only handles control frames and notices the peer leaving.
	gone := make(chan struct{})
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-s.ctxDone():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("event stream write failed", logx.Err(err))
				return
			}
		}
	}
}
