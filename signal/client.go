// Package signal talks to a signal-cli daemon over its JSON-RPC TCP
// socket. Outbound calls are correlated by request id; inbound receive
// notifications are decoded into Messages and handed to the listener.
package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Common errors
var (
	// ErrNotConnected indicates no live daemon connection
	ErrNotConnected = errors.New("signal daemon not connected")
)

const (
	dialTimeout      = 10 * time.Second
	callTimeout      = 30 * time.Second
	reconnectBackoff = 5 * time.Second
	maxBackoff       = time.Minute
)

// RPCError represents an error object returned by the daemon
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("signal rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Handler consumes inbound messages
type Handler func(Message)

// Client is a JSON-RPC client for the signal-cli daemon
type Client struct {
	addr    string
	account string
	logger  zerolog.Logger

	nextID atomic.Uint64

	mu      sync.Mutex
	conn    net.Conn
	pending map[uint64]chan *rpcMessage
}

// NewClient creates a client for the daemon listening at addr, sending
// as the given account number
func NewClient(addr, account string, logger zerolog.Logger) *Client {
	return &Client{
		addr:    addr,
		account: account,
		logger:  logger.With().Str("component", "signal").Logger(),
		pending: make(map[uint64]chan *rpcMessage),
	}
}

// Listen connects to the daemon and dispatches inbound messages to the
// handler until the context is canceled. Connection loss triggers a
// reconnect with backoff; pending calls fail on disconnect.
func (c *Client) Listen(ctx context.Context, handler Handler) error {
	backoff := reconnectBackoff

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Error().Err(err).Str("addr", c.addr).Msg("Failed to connect to signal daemon")
		} else {
			backoff = reconnectBackoff
			c.logger.Info().Str("addr", c.addr).Msg("Connected to signal daemon")
			c.readLoop(ctx, conn, handler)
			c.dropConn(conn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// dropConn clears the active connection and fails every pending call.
func (c *Client) dropConn(conn net.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn, handler Handler) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg rpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse daemon message")
			continue
		}

		switch {
		case msg.ID != nil:
			c.resolve(*msg.ID, &msg)
		case msg.Method == "receive":
			c.handleReceive(msg.Params, handler)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Error().Err(err).Msg("Signal daemon connection lost")
	}
}

func (c *Client) resolve(id uint64, msg *rpcMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		ch <- msg
	}
}

func (c *Client) handleReceive(params json.RawMessage, handler Handler) {
	var payload struct {
		Envelope *Envelope `json:"envelope"`
		Account  string    `json:"account,omitempty"`
	}
	if err := json.Unmarshal(params, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse receive notification")
		return
	}

	msg, ok := messageFromEnvelope(payload.Envelope)
	if !ok {
		return
	}

	c.logger.Debug().
		Str("sender", msg.Sender).
		Bool("group", msg.IsGroup()).
		Msg("Received message")

	// Handlers reply through this client, and those rpc responses arrive
	// on the read loop. Running the handler here would deadlock every
	// in-handler Send until its call timeout, so each message gets its own
	// goroutine; ordering within a user is the router's per-user lock.
	go handler(msg)
}

// call issues one JSON-RPC request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)
	ch := make(chan *rpcMessage, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		c.abandon(id)
		return fmt.Errorf("failed to encode rpc request: %w", err)
	}

	c.mu.Lock()
	_, err = conn.Write(append(payload, '\n'))
	c.mu.Unlock()
	if err != nil {
		c.abandon(id)
		return fmt.Errorf("failed to write rpc request: %w", err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.abandon(id)
		return ctx.Err()
	case <-timer.C:
		c.abandon(id)
		return fmt.Errorf("rpc call %s timed out", method)
	case resp, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to parse rpc result: %w", err)
			}
		}
		return nil
	}
}

func (c *Client) abandon(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Send delivers a direct message to one recipient
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	params := map[string]any{
		"account":   c.account,
		"recipient": []string{recipient},
		"message":   text,
	}
	if err := c.call(ctx, "send", params, nil); err != nil {
		return fmt.Errorf("failed to send to %s: %w", recipient, err)
	}
	return nil
}

// SendGroup delivers a message to a group chat
func (c *Client) SendGroup(ctx context.Context, groupID, text string) error {
	params := map[string]any{
		"account": c.account,
		"groupId": groupID,
		"message": text,
	}
	if err := c.call(ctx, "send", params, nil); err != nil {
		return fmt.Errorf("failed to send to group: %w", err)
	}
	return nil
}

// CreateGroup creates a group with the given members and returns its id
func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (string, error) {
	params := map[string]any{
		"account": c.account,
		"name":    name,
		"members": members,
	}

	var result struct {
		GroupID string `json:"groupId"`
	}
	if err := c.call(ctx, "updateGroup", params, &result); err != nil {
		return "", fmt.Errorf("failed to create group %q: %w", name, err)
	}

	c.logger.Info().Str("name", name).Int("members", len(members)).Msg("Created group")
	return result.GroupID, nil
}
