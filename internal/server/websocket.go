package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peers with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from a peer.
	maxMessageSize = 512
)

// client is one connected index page.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *DeliveryServer
}

// UpdateMessage announces a new generation to connected index pages, which
// reload their bookmarklet list in response.
type UpdateMessage struct {
	Type       string    `json:"type"`
	Generation uint64    `json:"generation,omitempty"`
	Count      int       `json:"count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *DeliveryServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	cl := &client{
		conn:   conn,
		send:   make(chan []byte, 16),
		server: s,
	}

	// The connection outlives this handler; the request context dies when
	// it returns.
	go cl.writePump(context.Background())
	go cl.readPump(context.Background())

	s.register <- cl
}

// checkOrigin only accepts connections from the index page itself.
func (s *DeliveryServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	port := s.Port()
	allowed := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, port),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
	}
	for _, host := range allowed {
		if originURL.Host == host {
			return true
		}
	}

	return false
}

func (s *DeliveryServer) runHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case cl := <-s.register:
			s.clientsMutex.Lock()
			s.clients[cl.conn] = cl
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "reload client connected", "clients", count)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if cl, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(cl.send)
				conn.Close(websocket.StatusNormalClosure, "")
			}
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "reload client disconnected", "clients", count)

		case msg := <-s.broadcast:
			s.clientsMutex.RLock()
			for _, cl := range s.clients {
				select {
				case cl.send <- msg:
				default:
					// Slow client, skip. It will catch up on the
					// next generation or reconnect.
				}
			}
			s.clientsMutex.RUnlock()
		}
	}
}

func (s *DeliveryServer) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		data = []byte(`{"type":"generation"}`)
	}

	select {
	case s.broadcast <- data:
	default:
		// Hub is not draining (e.g. already shut down); drop the update.
	}
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.server.unregister <- c.conn
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.server.unregister <- c.conn
				return
			}
		}
	}
}

func (c *client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			c.server.unregister <- c.conn
			return
		}
	}
}
