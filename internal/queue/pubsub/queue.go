// Package pubsub backs the task queue with Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
)

// Config identifies the topic and subscription used for scrape tasks.
type Config struct {
	ProjectID    string
	TopicID      string
	Subscription string
}

// Queue publishes tasks to a topic and receives them from a subscription.
type Queue struct {
	client *gpubsub.Client
	topic  *gpubsub.Topic
	sub    *gpubsub.Subscription
	logger *zap.Logger

	recvOnce   sync.Once
	recvCancel context.CancelFunc
	tasks      chan catalog.Task
	recvErr    chan error
}

// New connects to Pub/Sub using Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" || cfg.Subscription == "" {
		return nil, fmt.Errorf("pubsub project, topic and subscription are required")
	}
	client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Queue{
		client:  client,
		topic:   client.Topic(cfg.TopicID),
		sub:     client.Subscription(cfg.Subscription),
		logger:  logger,
		tasks:   make(chan catalog.Task),
		recvErr: make(chan error, 1),
	}, nil
}

// Enqueue publishes a task and waits for the server acknowledgment.
func (q *Queue) Enqueue(ctx context.Context, task catalog.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	res := q.topic.Publish(ctx, &gpubsub.Message{Data: data})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue pops the next task. The subscription receiver starts lazily on
// the first call and feeds an unbuffered channel, so Pub/Sub ack deadlines
// keep redelivering tasks no worker has picked up.
func (q *Queue) Dequeue(ctx context.Context) (catalog.Task, error) {
	q.recvOnce.Do(q.startReceiver)

	select {
	case <-ctx.Done():
		return catalog.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case err := <-q.recvErr:
		return catalog.Task{}, fmt.Errorf("pubsub receive: %w", err)
	case task := <-q.tasks:
		return task, nil
	}
}

func (q *Queue) startReceiver() {
	recvCtx, cancel := context.WithCancel(context.Background())
	q.recvCancel = cancel

	go func() {
		err := q.sub.Receive(recvCtx, func(ctx context.Context, msg *gpubsub.Message) {
			var task catalog.Task
			if err := json.Unmarshal(msg.Data, &task); err != nil {
				// Poison messages are acked so they stop redelivering.
				q.logger.Warn("dropping malformed task message", zap.Error(err))
				msg.Ack()
				return
			}
			select {
			case q.tasks <- task:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
			}
		})
		if err != nil && recvCtx.Err() == nil {
			select {
			case q.recvErr <- err:
			default:
			}
		}
	}()
}

// Close stops the receiver and the publisher.
func (q *Queue) Close() error {
	if q.recvCancel != nil {
		q.recvCancel()
	}
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
