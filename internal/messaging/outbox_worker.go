package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"waste-portal/internal/metrics"
	"waste-portal/internal/repository"
	"waste-portal/pkg/logging"
)

const (
	workerInterval     = 1 * time.Second
	batchSize          = 50
	cleanupInterval    = 1 * time.Hour
	publishedRetention = 24 * time.Hour
)

// Publisher delivers one outbox message to the broker.
type Publisher interface {
	Publish(ctx context.Context, messageID, routingKey string, body []byte) error
}

type outboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]repository.OutboxMessage, error)
	MarkAsPublished(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, errMsg string) error
	DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OutboxWorker publishes messages from the outbox table to RabbitMQ.
type OutboxWorker struct {
	outbox    outboxStore
	publisher Publisher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *slog.Logger
}

func NewOutboxWorker(outbox outboxStore, publisher Publisher) *OutboxWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
		log:       logging.Component("outbox"),
	}
}

func (w *OutboxWorker) Start() {
	w.wg.Add(2)
	go w.processLoop()
	go w.cleanupLoop()
	w.log.Info("started")
}

func (w *OutboxWorker) processLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processPendingMessages(w.ctx)
		}
	}
}

// processPendingMessages publishes one batch and returns how many messages
// reached the broker.
func (w *OutboxWorker) processPendingMessages(ctx context.Context) int {
	messages, err := w.outbox.GetPendingMessages(ctx, batchSize)
	if err != nil {
		w.log.Error("get pending", "error", err)
		return 0
	}

	published := 0
	for _, msg := range messages {
		if err := w.publisher.Publish(ctx, msg.ID, msg.RoutingKey, msg.Payload); err != nil {
			metrics.ObserveOutbox("failed")
			w.log.Warn("publish", "id", msg.ID, "routing_key", msg.RoutingKey, "error", err)
			if err := w.outbox.MarkAsFailed(ctx, msg.ID, err.Error()); err != nil {
				w.log.Error("mark failed", "id", msg.ID, "error", err)
			}
			continue
		}

		metrics.ObserveOutbox("published")
		published++
		if err := w.outbox.MarkAsPublished(ctx, msg.ID); err != nil {
			w.log.Error("mark published", "id", msg.ID, "error", err)
		}
	}
	return published
}

func (w *OutboxWorker) cleanupLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			deleted, err := w.outbox.DeletePublished(w.ctx, publishedRetention)
			if err != nil {
				w.log.Error("cleanup", "error", err)
			} else if deleted > 0 {
				w.log.Info("cleaned old messages", "count", deleted)
			}
		}
	}
}

func (w *OutboxWorker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.log.Info("stopped")
}
