// Package queue delivers and consumes the per-alert and per-zone reference
// messages that trigger the engine.
package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"
)

// Ref is the body of every queue message: a bare reference to an alert or
// zone to be processed by a consumer.
type Ref struct {
	ID string `json:"id"`
}

// Publisher sends reference messages to named SQS queues.
type Publisher struct {
	client sqsiface.SQSAPI

	mu   sync.Mutex
	urls map[string]string
}

func NewPublisher(client sqsiface.SQSAPI) *Publisher {
	return &Publisher{client: client, urls: make(map[string]string)}
}

// Send publishes a reference to the named queue.
func (p *Publisher) Send(ctx context.Context, queueName string, ref Ref) error {
	url, err := p.URL(ctx, queueName)
	if err != nil {
		return err
	}
	body, err := json.Marshal(ref)
	if err != nil {
		return errors.Wrap(err, "marshaling queue message")
	}
	_, err = p.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return errors.Wrapf(err, "sending message to %s", queueName)
	}
	return nil
}

// URL resolves and caches the URL of a named queue.
func (p *Publisher) URL(ctx context.Context, queueName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if url, ok := p.urls[queueName]; ok {
		return url, nil
	}
	output, err := p.client.GetQueueUrlWithContext(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		return "", errors.Wrapf(err, "resolving queue %s", queueName)
	}
	p.urls[queueName] = *output.QueueUrl
	return *output.QueueUrl, nil
}
