package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// maxNumberOfMessages is the number of messages that we want to receive
	// from SQS incoming batches.
	maxNumberOfMessages = 1

	// waitTimeSeconds is the longest we're waiting on each SQS receive poll.
	waitTimeSeconds = 1
)

// Handler processes one reference message. A non-nil error leaves the
// message on the queue so SQS redelivers it after the visibility timeout:
// redelivery is owned by the queue, not by this consumer.
type Handler func(ctx context.Context, ref Ref) error

// Consumer reads reference messages from one SQS queue and hands them to a
// handler.
//
// Messages are received from queueURL and sent to an internal channel. The
// channel is unbuffered so the receiver controls how often we are going to
// receive from SQS. Handlers run on a new goroutine per message with panic
// recovery. Messages are deleted only after the handler completes without
// error.
type Consumer struct {
	logger   logrus.FieldLogger
	client   sqsiface.SQSAPI
	queueURL string
	handler  Handler
	received prometheus.Counter

	ctx      context.Context
	cancel   context.CancelFunc
	messages chan *sqs.Message
	stop     chan chan struct{}
}

// NewConsumer returns a usable Consumer.
func NewConsumer(logger logrus.FieldLogger, client sqsiface.SQSAPI, queueURL string, handler Handler, received prometheus.Counter) *Consumer {
	c := &Consumer{
		logger:   logger,
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		received: received,
		messages: make(chan *sqs.Message),
		stop:     make(chan chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.processor()

	return c
}

// Run starts the receive loop and blocks until Stop is called.
func (c *Consumer) Run() {
	c.loop()
}

// loop sends messages received from the queue to the internal messages
// channel which is unbuffered so the receiver has control over how often we
// receive.
func (c *Consumer) loop() {
	for {
		select {
		case ch := <-c.stop:
			c.cancel()
			close(c.messages)
			close(ch)
			return
		default:
			out, err := c.client.ReceiveMessageWithContext(c.ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(c.queueURL),
				MaxNumberOfMessages: aws.Int64(maxNumberOfMessages),
				WaitTimeSeconds:     aws.Int64(waitTimeSeconds),
			})
			if err != nil {
				c.logger.Errorf("Error receiving a message from SQS: %s", err)
				time.Sleep(1 * time.Second)
			} else {
				for _, m := range out.Messages {
					c.messages <- m
				}
			}
		}
	}
}

func (c *Consumer) processor() {
	for m := range c.messages {
		ref, err := c.openMessage(m)
		if err != nil {
			c.deleteMessage(m.ReceiptHandle)
			continue
		}
		go c.processMessage(m.ReceiptHandle, ref)
	}
}

// openMessage extracts the reference carried by the message. Bodies that do
// not decode or carry no id are dropped.
func (c *Consumer) openMessage(m *sqs.Message) (Ref, error) {
	c.received.Inc()

	var ref Ref
	if err := json.Unmarshal([]byte(*m.Body), &ref); err != nil {
		c.logger.Warning("Message body could not be decoded: ", err)
		return Ref{}, err
	}
	if ref.ID == "" {
		c.logger.Warning("Message carries no id")
		return Ref{}, fmt.Errorf("message carries no id")
	}
	return ref, nil
}

// processMessage hands the reference to the handler. The message is deleted
// from the queue only when the handler completes without errors, leaving
// redelivery to SQS otherwise.
func (c *Consumer) processMessage(receiptHandle *string, ref Ref) {
	logger := c.logger.WithField("id", ref.ID)

	var (
		err error
		wg  sync.WaitGroup
	)

	// Run the handler in panic recovery mode.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler goroutine panic! %s %s", r, debug.Stack())
			}
		}()
		err = c.handler(c.ctx, ref)
	}()
	wg.Wait()

	if err != nil {
		logger.Error("Handler failure: ", err)
		return
	}

	c.deleteMessage(receiptHandle)
}

// deleteMessage does best effort to delete a message from SQS.
func (c *Consumer) deleteMessage(receiptHandle *string) {
	_, err := c.client.DeleteMessageWithContext(c.ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.logger.Error("Message could not be removed from SQS: ", err)
	}
}

// Stop blocks until the consumer terminates.
func (c *Consumer) Stop() {
	ch := make(chan struct{})
	c.stop <- ch
	<-ch
}
