package mcppool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// TransportState mirrors the connection lifecycle a Client cares about.
type TransportState string

const (
	TransportDisconnected TransportState = "disconnected"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportClosed        TransportState = "closed"
)

// Transport is the wire boundary a Client speaks over. The protocol used
// to reach a server is out of scope for the core; this abstraction lets
// the pool assume only a send/receive/close request-response contract.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg *Message) error
	Receive(ctx context.Context) (*Message, error)
	Close() error
	State() TransportState
}

// WSTransportConfig tunes a websocketTransport. Grounded on
// agent/protocol/mcp/transport_ws.go's WSTransportConfig.
type WSTransportConfig struct {
	Subprotocols []string
	// Header carries per-dial request headers, notably Authorization:
	// Bearer for servers configured with a BearerAuth secret.
	Header http.Header
}

func DefaultWSTransportConfig() WSTransportConfig {
	return WSTransportConfig{Subprotocols: []string{"mcp"}}
}

// websocketTransport implements Transport over github.com/coder/websocket.
type websocketTransport struct {
	url    string
	cfg    WSTransportConfig
	logger *zap.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state TransportState
}

func NewWebSocketTransport(url string, cfg WSTransportConfig, logger *zap.Logger) Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &websocketTransport{url: url, cfg: cfg, logger: logger.With(zap.String("component", "mcp_transport")), state: TransportDisconnected}
}

func (t *websocketTransport) Connect(ctx context.Context) error {
	t.setState(TransportConnecting)

	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{Subprotocols: t.cfg.Subprotocols, HTTPHeader: t.cfg.Header})
	if err != nil {
		t.setState(TransportDisconnected)
		return fmt.Errorf("mcp websocket dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.setState(TransportConnected)
	return nil
}

func (t *websocketTransport) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("mcp transport: not connected")
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

func (t *websocketTransport) Receive(ctx context.Context) (*Message, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("mcp transport: not connected")
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (t *websocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	t.setState(TransportClosed)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}

func (t *websocketTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *websocketTransport) setState(s TransportState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// memoryTransport is an in-process Transport used by tests; it never dials
// a network socket.
type memoryTransport struct {
	mu      sync.Mutex
	state   TransportState
	handler func(*Message) (*Message, error)
	inbox   chan *Message
}

// NewMemoryTransport wires a Transport directly to a handler function,
// useful for exercising the pool without a real server.
func NewMemoryTransport(handler func(*Message) (*Message, error)) Transport {
	return &memoryTransport{state: TransportDisconnected, handler: handler, inbox: make(chan *Message, 16)}
}

func (m *memoryTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.state = TransportConnected
	m.mu.Unlock()
	return nil
}

func (m *memoryTransport) Send(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != TransportConnected {
		return fmt.Errorf("mcp transport: not connected")
	}

	resp, err := m.handler(msg)
	if err != nil {
		return err
	}
	select {
	case m.inbox <- resp:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *memoryTransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-m.inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("mcp transport: receive timed out")
	}
}

func (m *memoryTransport) Close() error {
	m.mu.Lock()
	m.state = TransportClosed
	m.mu.Unlock()
	return nil
}

func (m *memoryTransport) State() TransportState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
