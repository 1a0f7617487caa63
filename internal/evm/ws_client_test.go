package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeNode answers eth_subscribe with sequential hex ids and lets the test
// push notifications after every acknowledgement.
func fakeNode(t *testing.T, onSubscribe func(c *websocket.Conn, req wsRequest, subID string)) *httptest.Server {
	t.Helper()
	var counter atomic.Int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}
			switch req.Method {
			case "eth_subscribe":
				subID := "0x" + strings.Repeat("a", int(counter.Add(1)))
				c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID})
				if onSubscribe != nil {
					onSubscribe(c, req, subID)
				}
			case "eth_unsubscribe":
				c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
			default:
				c.WriteJSON(map[string]interface{}{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]interface{}{"code": -32601, "message": "method not found"},
				})
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	server := fakeNode(t, func(c *websocket.Conn, req wsRequest, subID string) {
		if len(req.Params) != 2 || req.Params[0] != "logs" {
			t.Errorf("unexpected params: %v", req.Params)
		}
		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": subID,
				"result":       map[string]interface{}{"address": "0x01", "data": "0x"},
			},
		})
	})
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	subID, err := client.SubscribeLogs(ctx, LogsFilter{Addresses: []string{"0xmarket"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}
	if subID != "0xa" {
		t.Errorf("expected subscription 0xa, got %s", subID)
	}

	select {
	case notif := <-client.Notifications():
		if notif.Subscription != "0xa" {
			t.Errorf("expected subscription 0xa, got %s", notif.Subscription)
		}
		if !strings.Contains(string(notif.Log), `"address"`) {
			t.Errorf("unexpected log payload %s", notif.Log)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscribeWhileNotificationsBackedUp(t *testing.T) {
	server := fakeNode(t, func(c *websocket.Conn, req wsRequest, subID string) {
		if subID != "0xa" {
			return
		}
		for i := 0; i < 5; i++ {
			c.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params": map[string]interface{}{
					"subscription": subID,
					"result":       map[string]interface{}{"logIndex": i},
				},
			})
		}
	})
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.NotificationBuffer = 1
	cfg.RequestTimeout = 2 * time.Second
	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), &cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeLogs(ctx, LogsFilter{Addresses: []string{"0xrouter"}}); err != nil {
		t.Fatalf("SubscribeLogs router: %v", err)
	}
	// nobody reads notifications yet; the second ack must still arrive
	subID, err := client.SubscribeLogs(ctx, LogsFilter{Addresses: []string{"0xmarket"}})
	if err != nil {
		t.Fatalf("SubscribeLogs market: %v", err)
	}
	if subID != "0xaa" {
		t.Errorf("expected subscription 0xaa, got %s", subID)
	}

	for i := 0; i < 5; i++ {
		select {
		case notif := <-client.Notifications():
			want := fmt.Sprintf(`{"logIndex":%d}`, i)
			if string(notif.Log) != want {
				t.Errorf("notification %d out of order: %s", i, notif.Log)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for notification %d", i)
		}
	}
}

func TestWSClient_CorrelatesConcurrentRequests(t *testing.T) {
	server := fakeNode(t, nil)
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	results := make(chan string, 3)
	for i := 0; i < 3; i++ {
		go func() {
			id, err := client.SubscribeLogs(ctx, LogsFilter{})
			if err != nil {
				t.Errorf("SubscribeLogs: %v", err)
			}
			results <- id
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		select {
		case id := <-results:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for subscriptions")
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct subscription ids, got %v", seen)
	}

	if err := client.Unsubscribe(ctx, "0xa"); err != nil {
		t.Errorf("Unsubscribe: %v", err)
	}
}

func TestWSClient_ErrorResponse(t *testing.T) {
	server := fakeNode(t, nil)
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	_, err = client.request(ctx, "eth_bogus", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("expected code -32601, got %d", rpcErr.Code)
	}
}

func TestWSClient_DisconnectHookAndNoReconnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// drop the connection right away
		c.Close()
	}))
	defer server.Close()

	disconnected := make(chan error, 1)
	cfg := DefaultWSConfig()
	cfg.OnDisconnect = func(err error) { disconnected <- err }

	client, err := NewWSClient(context.Background(), wsURL(server), &cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	select {
	case err := <-disconnected:
		if err == nil {
			t.Error("expected disconnect error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect was not called")
	}

	if _, ok := <-client.Notifications(); ok {
		t.Error("notification channel should be closed after disconnect")
	}

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{}); !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestWSClient_Close(t *testing.T) {
	server := fakeNode(t, nil)
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestLogsFilterParams(t *testing.T) {
	p := LogsFilter{
		Addresses: []string{"0xa"},
		Topics:    [][]string{{"0x1"}, nil, {"0x2", "0x3"}},
	}.params()

	if p["address"] != "0xa" {
		t.Errorf("expected single address, got %v", p["address"])
	}
	topics := p["topics"].([]interface{})
	if topics[0] != "0x1" || topics[1] != nil {
		t.Errorf("unexpected topics %v", topics)
	}
	if got := topics[2].([]string); len(got) != 2 {
		t.Errorf("expected OR topic list, got %v", got)
	}

	if _, ok := (LogsFilter{}).params()["address"]; ok {
		t.Error("empty filter should omit address")
	}
}
