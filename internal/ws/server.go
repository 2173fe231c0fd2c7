package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer. Only "ping" is interpreted.
	defaultMaxMessageSize = 512
)

// Liveness probe text messages.
const (
	PingText = "ping"
	PongText = "pong"
)

// Options tunes the push endpoint.
type Options struct {
	// WriteWait caps every write, even if the caller's context allows longer.
	WriteWait time.Duration
	// PongWait is how long the peer may stay silent before it is dropped.
	PongWait time.Duration
	// PingInterval is the protocol-level ping period. Must be less than PongWait.
	PingInterval time.Duration
	// MaxMessageSize limits inbound frames.
	MaxMessageSize int64
	// AllowedOrigins lists browser origins allowed to connect. "*" allows any.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	return o
}

// Server upgrades HTTP requests to WebSocket connections and registers them
// with a Hub for their lifetime.
type Server struct {
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates the push endpoint handler.
func NewServer(hub *Hub, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// ServeHTTP accepts the handshake, then blocks reading from the peer until
// it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	c := newConn(raw, s.opts.WriteWait)
	s.hub.Connect(c)

	done := make(chan struct{})
	go s.keepalive(c, done)

	s.readLoop(c)

	close(done)
	s.hub.Disconnect(c)
	c.Close()
}

// readLoop answers "ping" with "pong" and ignores every other inbound
// message. Any inbound frame extends the read deadline.
func (s *Server) readLoop(c *conn) {
	c.ws.SetReadLimit(s.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		if mt == websocket.TextMessage && string(data) == PingText {
			if err := s.hub.SendPersonal(context.Background(), []byte(PongText), c); err != nil {
				log.Debug().Err(err).Msg("WebSocket pong failed")
				return
			}
		}
	}
}

// keepalive sends protocol pings until done is closed or a ping fails.
func (s *Server) keepalive(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				s.hub.Disconnect(c)
				c.Close()
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients (agents, CLIs) send no Origin.
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// conn adapts a gorilla connection to Conn. gorilla allows one concurrent
// writer, so data writes are serialized; control frames and Close are safe
// to call concurrently.
type conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	writeWait time.Duration
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, writeWait time.Duration) *conn {
	return &conn{ws: ws, writeWait: writeWait}
}

// Send writes msg as a single text frame. The write deadline is the
// earlier of ctx's deadline and writeWait from now.
func (c *conn) Send(ctx context.Context, msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}
