package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by calls on a closed or disconnected client.
var ErrClientClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// RequestTimeout bounds the wait for a request acknowledgement.
	RequestTimeout time.Duration
	// NotificationBuffer is the capacity of the notification channel.
	NotificationBuffer int
	// OnDisconnect is called once when the connection drops without Close.
	// The client does not reconnect on its own.
	OnDisconnect func(err error)
	Logger       *zap.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval:       30 * time.Second,
		ReadTimeout:        90 * time.Second,
		WriteTimeout:       10 * time.Second,
		RequestTimeout:     30 * time.Second,
		NotificationBuffer: 10000,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn         *websocket.Conn
	writeMu      sync.Mutex
	closed       atomic.Bool
	disconnected atomic.Bool
	requestID    atomic.Uint64

	// pending maps request ID to channel waiting for the response
	pending   map[uint64]chan wsResult
	pendingMu sync.Mutex

	notifications chan LogNotification

	// backlog holds notifications read but not yet handed to the consumer,
	// so a slow consumer never stalls response delivery.
	backlogMu  sync.Mutex
	backlog    []LogNotification
	readerDone bool
	wake       chan struct{}

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = DefaultWSConfig().NotificationBuffer
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultWSConfig().RequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSClientImpl{
		endpoint:      endpoint,
		config:        cfg,
		logger:        logger.Named("ws"),
		conn:          conn,
		pending:       make(map[uint64]chan wsResult),
		notifications: make(chan LogNotification, cfg.NotificationBuffer),
		done:          make(chan struct{}),
		wake:          make(chan struct{}, 1),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.deliverLoop()

	if cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	return c, nil
}

// Notifications returns the ordered notification stream.
func (c *WSClientImpl) Notifications() <-chan LogNotification {
	return c.notifications
}

// SubscribeLogs subscribes to logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (string, error) {
	raw, err := c.request(ctx, "eth_subscribe", []interface{}{"logs", filter.params()})
	if err != nil {
		return "", fmt.Errorf("eth_subscribe: %w", err)
	}
	var subID string
	if err := json.Unmarshal(raw, &subID); err != nil {
		return "", fmt.Errorf("eth_subscribe: decode subscription id: %w", err)
	}
	if subID == "" {
		return "", fmt.Errorf("eth_subscribe: empty subscription id")
	}
	return subID, nil
}

// Unsubscribe cancels a subscription.
func (c *WSClientImpl) Unsubscribe(ctx context.Context, subID string) error {
	if _, err := c.request(ctx, "eth_unsubscribe", []interface{}{subID}); err != nil {
		return fmt.Errorf("eth_unsubscribe: %w", err)
	}
	return nil
}

// request sends a JSON-RPC call and waits for the response correlated by id.
func (c *WSClientImpl) request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if c.closed.Load() || c.disconnected.Load() {
		return nil, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	respCh := make(chan wsResult, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respCh
	c.pendingMu.Unlock()

	if err := c.writeJSON(req); err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("write request: %w", err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-respCh:
		if !ok {
			return nil, ErrClientClosed
		}
		return res.result, res.err
	case <-timer.C:
		c.dropPending(reqID)
		return nil, fmt.Errorf("request timeout after %v", c.config.RequestTimeout)
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (c *WSClientImpl) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *WSClientImpl) dropPending(reqID uint64) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// Close closes the WebSocket connection. Safe to call more than once.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()

	c.wg.Wait()
	return err
}

// readLoop reads frames until the connection ends. Responses are resolved
// inline; notifications go to the backlog.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()
	defer c.finishBacklog()
	defer c.failPending()

	for {
		if c.config.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("connection lost", zap.String("endpoint", c.endpoint), zap.Error(err))
			c.disconnected.Store(true)
			if c.config.OnDisconnect != nil {
				c.config.OnDisconnect(err)
			}
			return
		}

		c.handleMessage(message)
	}
}

// failPending releases every caller still waiting on a response.
func (c *WSClientImpl) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("unparseable frame", zap.Error(err))
		return
	}

	if msg.Method == "eth_subscription" {
		if msg.Params != nil {
			c.enqueue(LogNotification{
				Subscription: msg.Params.Subscription,
				Log:          msg.Params.Result,
			})
		}
		return
	}

	if msg.ID != nil {
		c.handleResponse(*msg.ID, msg)
	}
}

func (c *WSClientImpl) enqueue(n LogNotification) {
	c.backlogMu.Lock()
	c.backlog = append(c.backlog, n)
	c.backlogMu.Unlock()
	c.signal()
}

func (c *WSClientImpl) finishBacklog() {
	c.backlogMu.Lock()
	c.readerDone = true
	c.backlogMu.Unlock()
	c.signal()
}

func (c *WSClientImpl) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// deliverLoop is the only sender on the notification channel. It keeps
// read order, drains the backlog after a disconnect and closes the
// channel on exit. Close stops it without draining.
func (c *WSClientImpl) deliverLoop() {
	defer c.wg.Done()
	defer close(c.notifications)

	for {
		c.backlogMu.Lock()
		batch := c.backlog
		c.backlog = nil
		finished := c.readerDone
		c.backlogMu.Unlock()

		for _, n := range batch {
			select {
			case c.notifications <- n:
			case <-c.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if finished {
			return
		}

		select {
		case <-c.wake:
		case <-c.done:
			return
		}
	}
}

// handleResponse resolves the pending request with the same id.
func (c *WSClientImpl) handleResponse(id uint64, msg wsMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		return
	}

	res := wsResult{result: msg.Result}
	if msg.Error != nil {
		res.err = msg.Error
	}
	ch <- res
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.disconnected.Load() {
				return
			}
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
			}
			c.writeMu.Unlock()
		}
	}
}

var _ WSClient = (*WSClientImpl)(nil)

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id"`
	Result  json.RawMessage       `json:"result"`
	Error   *RPCError             `json:"error"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsResult struct {
	result json.RawMessage
	err    error
}
