// Package msg defines the interface for different message brokers.
//
// The balance processor consumes transaction notifications published by the block explorers and publishes one balance
// message per reconciled account. Both travel on the "events" topic exchange (or channel pattern for brokers without
// exchanges) with routing keys built from the service name.
package msg

import (
	"context"
	"errors"

	"github.com/tarancss/balproc/lib/block/types"
)

// Exchange is the topic exchange shared by the explorers and the balance processor.
const Exchange = "events"

// Broker errors.
var (
	ErrClosed = errors.New("message broker connection closed")
	ErrNoAck  = errors.New("delivery cannot be acknowledged")
)

// Notification is the inbound message announcing a transaction of interest.
type Notification struct {
	Hash string `json:"hash"`
}

// BalanceMsg is published once per reconciled account.
type BalanceMsg struct {
	Address string            `json:"address"`
	Tx      *types.Trans      `json:"tx"`
	Receipt *types.Receipt    `json:"recieptTx"` // sic, kept for existing consumers
	Balance string            `json:"balance"`
	Tokens  map[string]string `json:"erc20token"`
}

// Delivery is a consumed notification. Ack must be called exactly once when the notification has been dealt with.
type Delivery struct {
	Key  string // routing key or channel
	Body []byte
	Ack  func() error
}

// MsgBroker is implemented by each supported broker.
type MsgBroker interface {
	// Setup declares the exchanges, queues and bindings the service requires.
	Setup() error
	Close() error

	// GetNotifications starts consuming transaction notifications. The error channel receives ErrClosed, or the
	// broker's own error, when the connection is lost and is then closed.
	GetNotifications(ctx context.Context) (<-chan Delivery, <-chan error, error)
	// SendBalance publishes a balance message routed by its address.
	SendBalance(m BalanceMsg) error
}

// QueueName returns the durable queue the balance processor consumes from.
func QueueName(service string) string {
	return "app_" + service + ".balance_processor"
}

// NotificationKey returns the routing pattern matching transaction notifications.
func NotificationKey(service string) string {
	return service + "_transaction.*"
}

// BalanceKey returns the routing key of the balance message for address.
func BalanceKey(service, address string) string {
	return service + "_balance." + address
}
