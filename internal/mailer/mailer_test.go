package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSender struct {
	mutex    sync.Mutex
	messages []Message
	err      error
}

func (sender *recordingSender) Send(ctx context.Context, message Message) error {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	if sender.err != nil {
		return sender.err
	}
	sender.messages = append(sender.messages, message)
	return nil
}

func (sender *recordingSender) sent() []Message {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	return append([]Message(nil), sender.messages...)
}

func TestVerificationMessageEmbedsLink(t *testing.T) {
	message, err := VerificationMessage("reader@example.com", "https://books.example/api/v1/auth/verify/abc")
	require.NoError(t, err)

	assert.Equal(t, []string{"reader@example.com"}, message.Recipients)
	assert.Equal(t, "Verify Your email", message.Subject)
	assert.Contains(t, message.HTMLBody, `href="https://books.example/api/v1/auth/verify/abc"`)
}

func TestPasswordResetMessageEscapesLink(t *testing.T) {
	message, err := PasswordResetMessage("reader@example.com", `https://books.example/reset/"><script>`)
	require.NoError(t, err)

	assert.Equal(t, "Reset Your Password", message.Subject)
	assert.NotContains(t, message.HTMLBody, "<script>")
}

func TestMessageValidateRequiresRecipient(t *testing.T) {
	assert.ErrorIs(t, Message{}.Validate(), ErrNoRecipients)
	assert.ErrorIs(t, Message{Recipients: []string{"  "}}.Validate(), ErrNoRecipients)
	assert.NoError(t, Message{Recipients: []string{"a@b.com"}}.Validate())
}

func TestInlineDispatcherDeliversInBackground(t *testing.T) {
	sender := &recordingSender{}
	dispatcher := NewInlineDispatcher(sender, zaptest.NewLogger(t))

	message := Message{Recipients: []string{"a@b.com"}, Subject: "Welcome to our app", HTMLBody: "<h1>Welcome to the app</h1>"}
	require.NoError(t, dispatcher.Dispatch(context.Background(), message))
	require.NoError(t, dispatcher.Close())

	assert.Equal(t, []Message{message}, sender.sent())
}

func TestInlineDispatcherSurvivesCancelledRequestContext(t *testing.T) {
	sender := &recordingSender{}
	dispatcher := NewInlineDispatcher(sender, zaptest.NewLogger(t))

	requestCtx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, dispatcher.Dispatch(requestCtx, Message{Recipients: []string{"a@b.com"}, Subject: "s"}))
	require.NoError(t, dispatcher.Close())

	assert.Len(t, sender.sent(), 1)
}

func TestInlineDispatcherRejectsInvalidMessage(t *testing.T) {
	dispatcher := NewInlineDispatcher(&recordingSender{}, nil)
	assert.ErrorIs(t, dispatcher.Dispatch(context.Background(), Message{}), ErrNoRecipients)
}

func TestInlineDispatcherRefusesMessagesAfterClose(t *testing.T) {
	sender := &recordingSender{}
	dispatcher := NewInlineDispatcher(sender, zaptest.NewLogger(t))
	require.NoError(t, dispatcher.Close())

	err := dispatcher.Dispatch(context.Background(), Message{Recipients: []string{"a@b.com"}, Subject: "late"})
	assert.ErrorIs(t, err, ErrDispatcherClosed)
	assert.Empty(t, sender.sent())
	assert.NoError(t, dispatcher.Close())
}

func TestSendEmailTaskRoundTrip(t *testing.T) {
	message := Message{Recipients: []string{"a@b.com"}, Subject: "Verify Your email", HTMLBody: "<p>hi</p>"}
	task, err := NewSendEmailTask(message)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())

	sender := &recordingSender{}
	handler := HandleSendEmailTask(sender, zaptest.NewLogger(t))
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	assert.Equal(t, []Message{message}, sender.sent())
}

func TestSendEmailTaskHandlerSkipsRetryOnBadPayload(t *testing.T) {
	handler := HandleSendEmailTask(&recordingSender{}, nil)

	err := handler.ProcessTask(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	emptyPayload, marshalErr := json.Marshal(Message{})
	require.NoError(t, marshalErr)
	err = handler.ProcessTask(context.Background(), asynq.NewTask(TaskTypeSendEmail, emptyPayload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSendEmailTaskHandlerPropagatesDeliveryFailure(t *testing.T) {
	deliveryErr := errors.New("smtp down")
	task, err := NewSendEmailTask(Message{Recipients: []string{"a@b.com"}, Subject: "s"})
	require.NoError(t, err)

	handler := HandleSendEmailTask(&recordingSender{err: deliveryErr}, nil)
	assert.ErrorIs(t, handler.ProcessTask(context.Background(), task), deliveryErr)
}

func TestBuildMessageSetsEnvelope(t *testing.T) {
	outbound, err := buildMessage(SMTPConfig{From: "noreply@bookly.dev", FromName: "Bookly"}, Message{
		Recipients: []string{"a@b.com", "c@d.com"},
		Subject:    "Verify Your email",
		HTMLBody:   "<p>hi</p>",
	})
	require.NoError(t, err)

	recipients, recipientsErr := outbound.GetRecipients()
	require.NoError(t, recipientsErr)
	assert.ElementsMatch(t, []string{"a@b.com", "c@d.com"}, recipients)
}

func TestNewSMTPSenderRequiresHost(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{})
	assert.ErrorIs(t, err, errMissingSMTPHost)
}

func TestLogSenderAcceptsValidMessage(t *testing.T) {
	sender := NewLogSender(zaptest.NewLogger(t))
	assert.NoError(t, sender.Send(context.Background(), Message{Recipients: []string{"a@b.com"}}))
	assert.ErrorIs(t, sender.Send(context.Background(), Message{}), ErrNoRecipients)
}
