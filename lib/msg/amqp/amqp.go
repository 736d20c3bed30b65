// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/tarancss/balproc/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse when publishing.
type Amqp struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel // publishing channel, obtained on first use
	service  string
	prefetch int
	log      logrus.FieldLogger
}

// New instantiates a new amqp broker for the given service. prefetch limits the unacknowledged notifications
// delivered at any time.
func New(uri, service string, prefetch int, log logrus.FieldLogger) (*Amqp, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to amqp broker: %w", err)
	}

	log.WithField("service", service).Info("Connected to amqp broker")

	return &Amqp{conn: conn, service: service, prefetch: prefetch, log: log}, nil
}

// Setup obtains a one-use amqp channel and declares:
//
// - the "events" topic exchange, where explorers publish transactions and the processor publishes balances
//
// - the app_<service>.balance_processor queue bound to <service>_transaction.*
func (r *Amqp) Setup() error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	if err = channel.ExchangeDeclare(msg.Exchange, amqp.ExchangeTopic, false, false, false, false, nil); err != nil {
		return err
	}

	q := msg.QueueName(r.service)
	if _, err = channel.QueueDeclare(q, true, false, false, false, nil); err != nil {
		return err
	}

	return channel.QueueBind(q, msg.NotificationKey(r.service), msg.Exchange, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker.
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.WithError(err).Error("Error closing amqp.Channel")
		}

		r.ch = nil
	}
	r.mu.Unlock()

	return r.conn.Close()
}

// SendBalance publishes a balance message to the "events" exchange.
func (r *Amqp) SendBalance(m msg.BalanceMsg) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return err
		}
	}

	p := amqp.Publishing{
		MessageId:   uuid.NewString(),
		ContentType: "application/json",
		Body:        body,
	}

	if err = r.ch.Publish(msg.Exchange, msg.BalanceKey(r.service, m.Address), false, false, p); err != nil {
		// the channel is unusable after a failed publish
		r.ch = nil

		return err
	}

	return nil
}

// GetNotifications consumes transaction notifications from the service queue on a dedicated channel limited to
// prefetch unacknowledged deliveries. Consuming stops when ctx is done or the connection is lost; the latter is
// reported on the error channel.
func (r *Amqp) GetNotifications(ctx context.Context) (<-chan msg.Delivery, <-chan error, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, nil, err
	}

	if err = ch.Qos(r.prefetch, 0, false); err != nil {
		ch.Close()

		return nil, nil, err
	}

	msgs, err := ch.Consume(msg.QueueName(r.service), "balance_processor-"+uuid.NewString(), false, false, false, false, nil)
	if err != nil {
		ch.Close()

		return nil, nil, err
	}

	closed := r.conn.NotifyClose(make(chan *amqp.Error, 1))
	deliveries := make(chan msg.Delivery)
	errs := make(chan error, 1)

	go func() {
		defer close(deliveries)

		for {
			select {
			case <-ctx.Done():
				ch.Close()

				return
			case e, ok := <-closed:
				if ok && e != nil {
					errs <- fmt.Errorf("%w: %v", msg.ErrClosed, e)
				} else {
					errs <- msg.ErrClosed
				}

				close(errs)

				return
			case m, ok := <-msgs:
				if !ok {
					// consumer channel closed by the broker
					errs <- msg.ErrClosed
					close(errs)

					return
				}

				d := m
				select {
				case deliveries <- msg.Delivery{Key: d.RoutingKey, Body: d.Body, Ack: func() error { return d.Ack(false) }}:
				case <-ctx.Done():
					ch.Close()

					return
				}
			}
		}
	}()

	return deliveries, errs, nil
}
