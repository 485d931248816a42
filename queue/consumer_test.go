package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// mockReceiver serves a fixed set of messages once, then empty batches.
type mockReceiver struct {
	sqsiface.SQSAPI

	mu      sync.Mutex
	pending []*sqs.Message
	deleted []string
}

func (m *mockReceiver) ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	out := &sqs.ReceiveMessageOutput{Messages: m.pending[:1]}
	m.pending = m.pending[1:]
	return out, nil
}

func (m *mockReceiver) DeleteMessageWithContext(ctx aws.Context, input *sqs.DeleteMessageInput, opts ...request.Option) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, *input.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (m *mockReceiver) deletedHandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func message(handle, body string) *sqs.Message {
	return &sqs.Message{ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

func testConsumer(client sqsiface.SQSAPI, handler Handler) *Consumer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_messages_total"})
	return NewConsumer(logger, client, "https://sqs.example.com/alerts", handler, counter)
}

func TestConsumerDeliversAndDeletes(t *testing.T) {
	mock := &mockReceiver{pending: []*sqs.Message{
		message("h1", `{"id": "alert-1"}`),
	}}

	handled := make(chan Ref, 1)
	c := testConsumer(mock, func(ctx context.Context, ref Ref) error {
		handled <- ref
		return nil
	})
	go c.Run()
	defer c.Stop()

	select {
	case ref := <-handled:
		require.Equal(t, "alert-1", ref.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was never invoked")
	}

	require.Eventually(t, func() bool {
		return len(mock.deletedHandles()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"h1"}, mock.deletedHandles())
}

func TestConsumerKeepsMessageOnHandlerError(t *testing.T) {
	mock := &mockReceiver{pending: []*sqs.Message{
		message("h1", `{"id": "alert-1"}`),
	}}

	handled := make(chan struct{}, 1)
	c := testConsumer(mock, func(ctx context.Context, ref Ref) error {
		handled <- struct{}{}
		return context.DeadlineExceeded
	})
	go c.Run()
	defer c.Stop()

	<-handled
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, mock.deletedHandles(), "a failed message must stay on the queue")
}

func TestConsumerDropsUndecodableMessage(t *testing.T) {
	mock := &mockReceiver{pending: []*sqs.Message{
		message("h1", `not json`),
		message("h2", `{"id": ""}`),
		message("h3", `{"id": "alert-1"}`),
	}}

	handled := make(chan Ref, 3)
	c := testConsumer(mock, func(ctx context.Context, ref Ref) error {
		handled <- ref
		return nil
	})
	go c.Run()
	defer c.Stop()

	select {
	case ref := <-handled:
		require.Equal(t, "alert-1", ref.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("valid message was never handled")
	}

	// The two bad messages are deleted outright, the good one after handling.
	require.Eventually(t, func() bool {
		return len(mock.deletedHandles()) == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConsumerRecoversFromHandlerPanic(t *testing.T) {
	mock := &mockReceiver{pending: []*sqs.Message{
		message("h1", `{"id": "alert-1"}`),
	}}

	handled := make(chan struct{}, 1)
	c := testConsumer(mock, func(ctx context.Context, ref Ref) error {
		handled <- struct{}{}
		panic("boom")
	})
	go c.Run()
	defer c.Stop()

	<-handled
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, mock.deletedHandles(), "a panicked message must stay on the queue")
}

func TestConsumerStop(t *testing.T) {
	mock := &mockReceiver{}
	c := testConsumer(mock, func(ctx context.Context, ref Ref) error { return nil })

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	c.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
