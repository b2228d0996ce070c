package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// sqsAPI is the part of *sqs.Client used by SQSBackend.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSBackend maps each queue name onto an SQS queue URL under a common
// prefix. Unacknowledged messages reappear after the visibility timeout.
type SQSBackend struct {
	client    sqsAPI
	urlPrefix string
	waitTime  int32
}

func NewSQSBackend(client sqsAPI, urlPrefix string) *SQSBackend {
	return &SQSBackend{
		client:    client,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		waitTime:  20,
	}
}

func (b *SQSBackend) Name() string { return "sqs" }

func (b *SQSBackend) queueURL(queue string) string {
	return b.urlPrefix + "/" + queue
}

func (b *SQSBackend) Push(ctx context.Context, queue string, body []byte) error {
	_, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(b.queueURL(queue)),
		MessageBody: aws.String(string(body)),
	})
	return err
}

func (b *SQSBackend) Pop(ctx context.Context, queue string) (*Delivery, error) {
	url := b.queueURL(queue)
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     b.waitTime,
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", url, err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]
	receipt := msg.ReceiptHandle
	return NewDelivery([]byte(aws.ToString(msg.Body)), func(ctx context.Context) error {
		_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(url),
			ReceiptHandle: receipt,
		})
		return err
	}), nil
}

func (b *SQSBackend) Close() error { return nil }
