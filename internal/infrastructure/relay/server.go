package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy enforced by the auth middleware
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TokenVerifier validates the token presented on connect and returns the
// identity it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Options tunes relay timeouts and per-connection limits.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	// MessagesPerSecond/Burst bound inbound traffic per connection; zero
	// disables limiting. MaxMessageSize bounds one frame.
	MessagesPerSecond float64
	Burst             int
	MaxMessageSize    int64
}

type client struct {
	conn *websocket.Conn
	send chan *domain.Message

	// done stops the writePump. send itself is never closed: route may
	// hold a stale *client after the map entry was replaced, and a send
	// on a closed channel would panic the relay.
	done chan struct{}
}

// Server is the signaling relay: each identity holds one websocket
// connection and every message is forwarded to the connections of its
// recipients. The relay never interprets message bodies.
type Server struct {
	verifier TokenVerifier
	metrics  *monitoring.Collector
	opts     Options
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewServer builds a relay. verifier may be nil to disable authentication
// (tests, closed deployments).
func NewServer(verifier TokenVerifier, metrics *monitoring.Collector, opts Options, logger *zap.SugaredLogger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Server{
		verifier: verifier,
		metrics:  metrics,
		opts:     opts,
		logger:   logger,
		clients:  make(map[string]*client),
	}
}

// Connected reports whether an identity currently holds a connection.
func (s *Server) Connected(rtcIdentity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[rtcIdentity]
	return ok
}

// HandleWebSocket upgrades one relay connection. The identity comes from the
// query string and must match the presented token when auth is enabled.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}

	if s.verifier != nil {
		subject, err := s.verifier.Verify(r.URL.Query().Get("token"))
		if err != nil {
			s.logger.Warnw("relay auth failed", "identity", identity, "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if subject != identity {
			http.Error(w, "token subject mismatch", http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan *domain.Message, 64),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if old, reconnect := s.clients[identity]; reconnect {
		close(old.done)
		old.conn.Close()
		s.logger.Infow("closing old connection for reconnecting identity", "identity", identity)
	}
	s.clients[identity] = c
	connected := len(s.clients)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetConnectedClients(connected)
	}
	s.logger.Infow("identity connected", "identity", identity)

	go s.writePump(identity, c)
	s.readPump(identity, c)
}

func (s *Server) readPump(identity string, c *client) {
	defer s.drop(identity, c)

	if s.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}

	for {
		var msg domain.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warnw("relay read failed", "identity", identity, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			s.logger.Warnw("rate limit exceeded, dropping message",
				"identity", identity, "type", msg.Type)
			if s.metrics != nil {
				s.metrics.RecordRateLimited(identity)
			}
			continue
		}

		// the connection's identity overrides whatever the client claims
		msg.From = identity
		s.route(&msg)
	}
}

func (s *Server) writePump(identity string, c *client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Warnw("relay write failed", "identity", identity, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// route forwards one message to every recipient's connection. Recipients
// without a connection are logged and skipped; the relay does not queue for
// offline identities.
func (s *Server) route(msg *domain.Message) {
	if s.metrics != nil {
		s.metrics.RecordMessage(string(msg.Type))
	}

	for _, recipient := range msg.To {
		s.mu.RLock()
		c, ok := s.clients[recipient]
		s.mu.RUnlock()
		if !ok {
			s.logger.Debugw("recipient offline, dropping",
				"recipient", recipient, "type", msg.Type, "from", msg.From)
			continue
		}
		select {
		case c.send <- msg:
		default:
			s.logger.Warnw("send queue full, dropping message",
				"recipient", recipient, "type", msg.Type)
		}
	}
}

func (s *Server) drop(identity string, c *client) {
	s.mu.Lock()
	if current, ok := s.clients[identity]; ok && current == c {
		delete(s.clients, identity)
		close(c.done)
	}
	connected := len(s.clients)
	s.mu.Unlock()

	c.conn.Close()
	if s.metrics != nil {
		s.metrics.SetConnectedClients(connected)
	}
	s.logger.Infow("identity disconnected", "identity", identity)
}
