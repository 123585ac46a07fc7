package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Alexandru89754/TestPV-V2/internal/chat"
	"github.com/Alexandru89754/TestPV-V2/internal/session"
)

// Websocket frame types.
const (
	frameReset   = "reset"
	frameMessage = "message"
	frameDelta   = "delta"
	frameDone    = "done"
	frameNotice  = "notice"
	frameError   = "error"

	cmdChat  = "chat"
	cmdClear = "clear"
	cmdEnd   = "end"
)

// frame is one websocket message in either direction.
type frame struct {
	Type     string         `json:"type"`
	Role     string         `json:"role,omitempty"`
	Stamp    string         `json:"stamp,omitempty"`
	Text     string         `json:"text,omitempty"`
	Messages []chat.Message `json:"messages,omitempty"`
}

// ChatSocket upgrades to a websocket and streams transcript changes for
// the active identity. Replies are revealed incrementally (delta frames)
// through the typewriter; a done frame marks each reveal complete.
// GET /ws/chat
func (s *Server) ChatSocket(c echo.Context) error {
	id, ok := s.activeIdentity()
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no identity"})
	}

	mgr, sink, err := s.registry.Get(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open session"})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return err
	}

	client := &wsClient{
		conn: ws,
		send: make(chan []byte, 256),
		tw:   session.NewTypewriter(s.cfg.TypingChunk, s.cfg.TypingTick),
	}
	unsubscribe := sink.Subscribe(client)

	// Initial snapshot so the page can render without a REST round trip.
	client.Reset(mgr.Messages())

	go s.writePump(client)
	go s.readPump(client, mgr, unsubscribe)
	return nil
}

func (s *Server) readPump(client *wsClient, mgr *session.Manager, unsubscribe func()) {
	defer func() {
		unsubscribe()
		client.tw.FinalizeAll()
		client.close()
	}()

	client.conn.SetReadLimit(s.cfg.MaxMessage)
	_ = client.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}

		var cmd frame
		if err := json.Unmarshal(data, &cmd); err != nil {
			client.queue(frame{Type: frameError, Text: "invalid frame"})
			continue
		}

		switch cmd.Type {
		case cmdChat:
			// Sends run off the read loop so transcript updates stream
			// while the backend call is in flight.
			go func(text string) {
				if err := mgr.Send(s.requestContext(), text); err != nil {
					client.queue(frame{Type: frameError, Text: err.Error()})
				}
			}(cmd.Text)
		case cmdClear:
			if err := mgr.Clear(); err != nil {
				client.queue(frame{Type: frameError, Text: err.Error()})
			}
		case cmdEnd:
			go func() {
				if err := mgr.CloseSession(s.requestContext()); err != nil {
					client.queue(frame{Type: frameError, Text: err.Error()})
				}
			}()
		default:
			client.queue(frame{Type: frameError, Text: "unknown command"})
		}
	}
}

func (s *Server) writePump(client *wsClient) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// requestContext is the context for manager calls initiated from the
// socket. The remote client owns the timeout.
func (s *Server) requestContext() context.Context {
	return context.Background()
}

// wsClient adapts one websocket connection to the session.Sink interface.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	tw   *session.Typewriter

	mu     sync.Mutex
	closed bool
}

func (w *wsClient) Reset(messages []chat.Message) {
	w.queue(frame{Type: frameReset, Messages: messages})
}

func (w *wsClient) Append(msg chat.Message) {
	w.queue(frame{Type: frameMessage, Role: msg.Role, Stamp: msg.Stamp, Text: msg.Text})
}

// Update reveals the new text chunk by chunk. The final chunk is followed
// by a done frame so the page knows the bubble is settled.
func (w *wsClient) Update(stamp, text string) {
	w.tw.Reveal(stamp, text, func(stamp, partial string) {
		w.queue(frame{Type: frameDelta, Stamp: stamp, Text: partial})
		if partial == text {
			w.queue(frame{Type: frameDone, Stamp: stamp})
		}
	})
}

func (w *wsClient) Notice(text string) {
	w.queue(frame{Type: frameNotice, Text: text})
}

func (w *wsClient) queue(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.send <- data:
	default:
		// Slow consumer; drop the frame rather than block the manager.
	}
}

func (w *wsClient) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.send)
	}
	w.mu.Unlock()
	_ = w.conn.Close()
}
