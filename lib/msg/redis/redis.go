// Package redis implements the message broker interface over Redis pub/sub. Channels are named after the AMQP routing
// keys so explorers can publish to <service>_transaction.<hash> and consumers subscribe to <service>_balance.*.
//
// Redis pub/sub has no acknowledgements or queues: a notification published while the processor is down is lost.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tarancss/balproc/lib/msg"
)

// Redis implements the message broker interface with a go-redis client.
type Redis struct {
	client  *redis.Client
	service string
	log     logrus.FieldLogger
}

// New connects to the redis server at url (ie. redis://localhost:6379/0).
func New(url, service string, log logrus.FieldLogger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.WithField("service", service).Info("Connected to redis broker")

	return &Redis{client: client, service: service, log: log}, nil
}

// Setup checks the server is reachable; channels need no declaration.
func (r *Redis) Setup() error {
	return r.client.Ping(context.Background()).Err()
}

// Close closes the client and any subscription made with it.
func (r *Redis) Close() error {
	return r.client.Close()
}

// SendBalance publishes a balance message to the <service>_balance.<address> channel.
func (r *Redis) SendBalance(m msg.BalanceMsg) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return r.client.Publish(context.Background(), msg.BalanceKey(r.service, m.Address), body).Err()
}

// GetNotifications subscribes to the <service>_transaction.* pattern. Deliveries need no acknowledgement.
func (r *Redis) GetNotifications(ctx context.Context) (<-chan msg.Delivery, <-chan error, error) {
	ps := r.client.PSubscribe(ctx, msg.NotificationKey(r.service))

	// wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()

		return nil, nil, fmt.Errorf("psubscribe %s: %w", msg.NotificationKey(r.service), err)
	}

	in := ps.Channel()
	deliveries := make(chan msg.Delivery)
	errs := make(chan error, 1)

	go func() {
		defer close(deliveries)
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					errs <- msg.ErrClosed
					close(errs)

					return
				}

				select {
				case deliveries <- msg.Delivery{Key: m.Channel, Body: []byte(m.Payload), Ack: noAck}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return deliveries, errs, nil
}

func noAck() error { return nil }
