package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

var streamTopics = []string{"batch.created", "route.optimized"}

// EventsStreamHandler handles GET /v1/events/stream: a WebSocket that
// forwards broker events as JSON. The topics query parameter narrows the
// subscription; the default is every dispatch topic.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	topics := streamTopics
	if v := r.URL.Query().Get("topics"); v != "" {
		topics = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}
	if len(topics) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid topics", "at least one topic required", r.URL.Path)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	merged := make(chan Event, 16)
	done := make(chan struct{})
	type sub struct {
		topic string
		ch    chan Event
	}
	subs := make([]sub, 0, len(topics))
	for _, topic := range topics {
		ch := s.Broker.Subscribe(topic)
		subs = append(subs, sub{topic: topic, ch: ch})
		go func(c chan Event) {
			for evt := range c {
				select {
				case merged <- evt:
				case <-done:
					return
				}
			}
		}(ch)
	}
	defer func() {
		close(done)
		for _, sb := range subs {
			s.Broker.Unsubscribe(sb.topic, sb.ch)
		}
	}()

	// reader goroutine detects client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	for {
		select {
		case evt := <-merged:
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
