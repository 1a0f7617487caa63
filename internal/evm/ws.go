package evm

import (
	"context"
	"encoding/json"
)

// WSClient defines the JSON-RPC WebSocket log subscription interface.
type WSClient interface {
	// SubscribeLogs issues eth_subscribe("logs", filter) and returns the
	// node's subscription id once acknowledged.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (string, error)

	// Unsubscribe cancels a subscription.
	Unsubscribe(ctx context.Context, subID string) error

	// Notifications delivers every eth_subscription message in socket
	// delivery order. Closed when the connection ends.
	Notifications() <-chan LogNotification

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines the eth_subscribe logs filter.
type LogsFilter struct {
	// Addresses restricts logs to these emitting contracts.
	Addresses []string
	// Topics is the positional topic filter; nil entries match anything.
	Topics [][]string
}

// params renders the filter object sent to the node.
func (f LogsFilter) params() map[string]interface{} {
	p := make(map[string]interface{})
	switch len(f.Addresses) {
	case 0:
	case 1:
		p["address"] = f.Addresses[0]
	default:
		p["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		topics := make([]interface{}, len(f.Topics))
		for i, t := range f.Topics {
			switch len(t) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = t[0]
			default:
				topics[i] = t
			}
		}
		p["topics"] = topics
	}
	return p
}

// LogNotification is one eth_subscription message.
type LogNotification struct {
	Subscription string
	Log          json.RawMessage
}
