package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TaskTypeSendEmail names the asynq task that delivers a Message.
	TaskTypeSendEmail = "email:send"
	// QueueName is the asynq queue mail tasks are enqueued on.
	QueueName = "mail"

	defaultMaxRetry = 5
)

// NewSendEmailTask encodes message as an asynq task.
func NewSendEmailTask(message Message) (*asynq.Task, error) {
	if err := message.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("mailer.task.encode: %w", err)
	}
	return asynq.NewTask(TaskTypeSendEmail, payload, asynq.MaxRetry(defaultMaxRetry), asynq.Queue(QueueName)), nil
}

// QueueDispatcher enqueues messages onto Redis for a worker process to deliver.
type QueueDispatcher struct {
	client *asynq.Client
}

// NewQueueDispatcher connects to the broker described by redisURL.
func NewQueueDispatcher(redisURL string) (*QueueDispatcher, error) {
	connection, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("mailer.queue.parse_url: %w", err)
	}
	return &QueueDispatcher{client: asynq.NewClient(connection)}, nil
}

// Dispatch enqueues message.
func (dispatcher *QueueDispatcher) Dispatch(ctx context.Context, message Message) error {
	task, err := NewSendEmailTask(message)
	if err != nil {
		return err
	}
	if _, enqueueErr := dispatcher.client.EnqueueContext(ctx, task); enqueueErr != nil {
		return fmt.Errorf("mailer.queue.enqueue: %w", enqueueErr)
	}
	return nil
}

// Close releases the broker connection.
func (dispatcher *QueueDispatcher) Close() error {
	return dispatcher.client.Close()
}

// HandleSendEmailTask returns the worker handler delivering tasks through sender.
func HandleSendEmailTask(sender Sender, logger *zap.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		var message Message
		if err := json.Unmarshal(task.Payload(), &message); err != nil {
			return fmt.Errorf("mailer.task.decode: %v: %w", err, asynq.SkipRetry)
		}
		if err := message.Validate(); err != nil {
			return fmt.Errorf("mailer.task.validate: %v: %w", err, asynq.SkipRetry)
		}
		logger.Info("email task started", zap.String("subject", message.Subject))
		if err := sender.Send(ctx, message); err != nil {
			return err
		}
		logger.Info("email task complete", zap.String("subject", message.Subject))
		return nil
	}
}

// Worker consumes mail tasks from the broker.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds a worker for redisURL that delivers through sender.
func NewWorker(redisURL string, sender Sender, logger *zap.Logger, concurrency int) (*Worker, error) {
	connection, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("mailer.worker.parse_url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	server := asynq.NewServer(connection, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		Logger:      logger.Sugar(),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeSendEmail, HandleSendEmailTask(sender, logger))
	return &Worker{server: server, mux: mux}, nil
}

// Run blocks until the process receives a termination signal.
func (worker *Worker) Run() error {
	return worker.server.Run(worker.mux)
}
