package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go"
	amqp "github.com/rabbitmq/amqp091-go"

	"waste-portal/pkg/logging"
)

const (
	ExchangeName = "wasteportal.events"

	connectAttempts = 5
	connectDelay    = 1 * time.Second
	connectMaxDelay = 30 * time.Second
	reconnectPause  = 5 * time.Second
	publishTimeout  = 5 * time.Second
)

var ErrChannelUnavailable = errors.New("channel not available")

// RabbitMQ publishes portal events to a durable topic exchange and
// reconnects when the broker drops the connection.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	mu      sync.RWMutex
	done    chan struct{}
	log     *slog.Logger
}

func NewRabbitMQ(host, port, user, password string) (*RabbitMQ, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, password, host, port)

	rmq := &RabbitMQ{
		url:  url,
		done: make(chan struct{}),
		log:  logging.Component("rabbitmq"),
	}

	if err := rmq.connectWithRetry(); err != nil {
		return nil, err
	}

	go rmq.handleReconnect()

	return rmq, nil
}

func (r *RabbitMQ) connectWithRetry() error {
	return retry.Do(
		r.connect,
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.MaxDelay(connectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warn("connect retry", "attempt", n+1, "error", err)
		}),
	)
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.conn = conn
	r.channel = channel
	r.log.Info("connected", "exchange", ExchangeName)
	return nil
}

func (r *RabbitMQ) handleReconnect() {
	for {
		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()

		select {
		case <-r.done:
			return
		case err := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			select {
			case <-r.done:
				return
			default:
			}
			if err != nil {
				r.log.Warn("connection lost, reconnecting", "error", err)
			}

			r.mu.Lock()
			r.channel = nil
			for {
				if err := r.connectWithRetry(); err != nil {
					r.log.Error("reconnect failed", "error", err, "pause", reconnectPause)
					select {
					case <-r.done:
						r.mu.Unlock()
						return
					case <-time.After(reconnectPause):
					}
					continue
				}
				break
			}
			r.mu.Unlock()
		}
	}
}

// Publish sends one persistent JSON message. messageID lets consumers drop
// duplicates when the outbox republishes after a partial failure.
func (r *RabbitMQ) Publish(ctx context.Context, messageID, routingKey string, body []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return ErrChannelUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := r.channel.PublishWithContext(
		ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() {
	close(r.done)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}

	r.log.Info("connection closed")
}
