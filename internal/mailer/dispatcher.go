package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultDeliveryTimeout = 30 * time.Second

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("mailer.dispatcher_closed")

// Dispatcher hands a message off for background delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, message Message) error
}

// InlineDispatcher delivers each message on its own goroutine.
type InlineDispatcher struct {
	sender  Sender
	logger  *zap.Logger
	timeout time.Duration

	mutex   sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewInlineDispatcher constructs an InlineDispatcher around sender.
func NewInlineDispatcher(sender Sender, logger *zap.Logger) *InlineDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineDispatcher{sender: sender, logger: logger, timeout: defaultDeliveryTimeout}
}

// Dispatch validates message and returns before delivery completes.
// Delivery is detached from ctx so it outlives the request.
func (dispatcher *InlineDispatcher) Dispatch(ctx context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	dispatcher.mutex.Lock()
	if dispatcher.closed {
		dispatcher.mutex.Unlock()
		return ErrDispatcherClosed
	}
	dispatcher.pending.Add(1)
	dispatcher.mutex.Unlock()
	go func() {
		defer dispatcher.pending.Done()
		deliveryCtx, cancel := context.WithTimeout(context.Background(), dispatcher.timeout)
		defer cancel()
		dispatcher.logger.Info("email task started", zap.String("subject", message.Subject))
		if err := dispatcher.sender.Send(deliveryCtx, message); err != nil {
			dispatcher.logger.Error("email delivery failed",
				zap.String("code", "mailer.deliver_failed"),
				zap.Error(err))
			return
		}
		dispatcher.logger.Info("email task complete", zap.String("subject", message.Subject))
	}()
	return nil
}

// Close refuses new messages and waits for in-flight deliveries.
func (dispatcher *InlineDispatcher) Close() error {
	dispatcher.mutex.Lock()
	dispatcher.closed = true
	dispatcher.mutex.Unlock()
	dispatcher.pending.Wait()
	return nil
}
