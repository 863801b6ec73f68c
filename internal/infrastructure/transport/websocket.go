package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
)

// WebSocketTransport carries signaling messages over a relay server
// connection. It implements ports.Transport for one relay endpoint.
type WebSocketTransport struct {
	endpoint     string
	writeTimeout time.Duration
	logger       *zap.SugaredLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	receiver func(*domain.Message)
	done     chan struct{}
}

// NewWebSocketTransport builds a transport towards the given relay endpoint
// (ws:// or wss:// URL).
func NewWebSocketTransport(endpoint string, writeTimeout time.Duration, logger *zap.SugaredLogger) *WebSocketTransport {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketTransport{
		endpoint:     endpoint,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Connect dials the relay on behalf of ownIdentity and starts the read pump.
// Reconnecting an already connected transport is a no-op.
func (t *WebSocketTransport) Connect(ctx context.Context, ownIdentity string, credentials domain.Credentials) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("invalid relay endpoint %q: %w", t.endpoint, err)
	}
	q := u.Query()
	q.Set("identity", ownIdentity)
	if credentials.Token != "" {
		q.Set("token", credentials.Token)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("relay dial failed: %w", err)
	}

	t.conn = conn
	t.done = make(chan struct{})
	go t.readPump(conn, t.done)

	t.logger.Infow("connected to relay", "endpoint", t.endpoint, "identity", ownIdentity)
	return nil
}

// Send transmits one message. The caller never retries; an error means the
// message is gone.
func (t *WebSocketTransport) Send(msg *domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return domain.ErrTransportNotReady
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteJSON(msg)
}

// SetReceiver installs the inbound callback.
func (t *WebSocketTransport) SetReceiver(receive func(*domain.Message)) {
	t.mu.Lock()
	t.receiver = receive
	t.mu.Unlock()
}

// Disconnect closes the connection and stops the read pump.
func (t *WebSocketTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	done := t.done
	t.done = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}

func (t *WebSocketTransport) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var msg domain.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warnw("relay read failed", "endpoint", t.endpoint, "error", err)
			}
			return
		}
		t.mu.Lock()
		receiver := t.receiver
		t.mu.Unlock()
		if receiver != nil {
			receiver(&msg)
		} else {
			t.logger.Debugw("dropping message, no receiver installed", "type", msg.Type)
		}
	}
}

// Factory materializes WebSocketTransports by selector from a static
// selector-to-endpoint table. It implements ports.TransportFactory.
type Factory struct {
	writeTimeout time.Duration
	logger       *zap.SugaredLogger

	mu         sync.Mutex
	endpoints  map[string]string
	transports map[string]*WebSocketTransport
}

// NewFactory builds a factory over a selector -> relay endpoint mapping.
func NewFactory(endpoints map[string]string, writeTimeout time.Duration, logger *zap.SugaredLogger) *Factory {
	return &Factory{
		writeTimeout: writeTimeout,
		logger:       logger,
		endpoints:    endpoints,
		transports:   make(map[string]*WebSocketTransport),
	}
}

// AddEndpoint registers or replaces the relay endpoint for a selector.
func (f *Factory) AddEndpoint(selector, endpoint string) {
	f.mu.Lock()
	f.endpoints[selector] = endpoint
	f.mu.Unlock()
}

// Get returns the transport for a selector once its endpoint is known.
func (f *Factory) Get(selector string) (ports.Transport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if transport, ok := f.transports[selector]; ok {
		return transport, true
	}
	endpoint, ok := f.endpoints[selector]
	if !ok {
		return nil, false
	}
	transport := NewWebSocketTransport(endpoint, f.writeTimeout, f.logger)
	f.transports[selector] = transport
	return transport, true
}

// Request is a no-op: endpoints are registered eagerly via AddEndpoint.
func (f *Factory) Request(selector string) {
	f.mu.Lock()
	_, known := f.endpoints[selector]
	f.mu.Unlock()
	if !known {
		f.logger.Debugw("transport requested for unknown selector", "selector", selector)
	}
}
