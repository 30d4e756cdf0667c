package mcppool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Client wraps one Transport with request/response correlation. Grounded
// on agent/protocol/mcp/client.go's DefaultMCPClient: a read loop
// dispatches incoming messages to a pending-request map keyed by id,
// adapted here to drop the Content-Length framing (the transport already
// frames messages) and to serve a single tool-call surface rather than
// the full resource/prompt/subscription MCP client interface.
type Client struct {
	name      string
	transport Transport
	logger    *zap.Logger

	nextID    int64
	pendingMu sync.Mutex
	pending   map[int64]chan *Message

	loopDone chan struct{}
}

func NewClient(name string, transport Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		name:      name,
		transport: transport,
		logger:    logger.With(zap.String("component", "mcp_client"), zap.String("server", name)),
		pending:   make(map[int64]chan *Message),
	}
}

// Connect dials the transport and starts the background read loop that
// routes responses to pending callers.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.loopDone = make(chan struct{})
	go c.readLoop(ctx)
	return nil
}

func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) Connected() bool {
	return c.transport.State() == TransportConnected
}

// CallTool sends a tools/call request and blocks for the matching response.
func (c *Client) CallTool(ctx context.Context, tool string, params map[string]any) (json.RawMessage, error) {
	return c.request(ctx, "tools/call", map[string]any{"name": tool, "arguments": params})
}

// GetServerInfo requests server identity metadata.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	raw, err := c.request(ctx, "server/info", nil)
	if err != nil {
		return nil, err
	}
	var info ServerInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("mcp: decode server info: %w", err)
	}
	return &info, nil
}

func (c *Client) request(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if !c.Connected() {
		return nil, fmt.Errorf("mcp client %s: not connected", c.name)
	}

	id := atomic.AddInt64(&c.nextID, 1)
	respCh := make(chan *Message, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.transport.Send(ctx, newRequest(id, method, params)); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.loopDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("mcp read error", zap.Error(err))
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	idFloat, ok := msg.ID.(float64)
	if !ok {
		if id, ok := msg.ID.(int64); ok {
			idFloat = float64(id)
		} else {
			return
		}
	}
	id := int64(idFloat)

	c.pendingMu.Lock()
	ch, exists := c.pending[id]
	c.pendingMu.Unlock()

	if exists {
		ch <- msg
	}
}
