package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker"
)

// sqsAPI is the subset of *sqs.Client SQSQueue needs, narrowed for tests.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// sqsMaxDelaySeconds is SQS's hard cap on DelaySeconds; longer redelivery
// backoffs are handled by the caller re-sending later instead.
const sqsMaxDelaySeconds = 900

// SQSQueue is the production Queue backend, one instance per logical
// queue URL. Every call is routed through a gobreaker.CircuitBreaker so a
// degraded SQS endpoint trips to open rather than stalling every worker
// goroutine on the same slow dependency, consistent with the health
// endpoint's {healthy, degraded, unhealthy} contract.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
	breaker  *gobreaker.CircuitBreaker
}

// NewSQSQueue constructs an SQSQueue over an existing *sqs.Client and
// queue URL, named for metrics/logging via name.
func NewSQSQueue(client *sqs.Client, queueURL, name string) *SQSQueue {
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sqs-" + name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (q *SQSQueue) Send(ctx context.Context, body []byte, delay time.Duration) error {
	delaySeconds := int32(delay / time.Second)
	if delaySeconds > sqsMaxDelaySeconds {
		delaySeconds = sqsMaxDelaySeconds
	}
	_, err := q.breaker.Execute(func() (interface{}, error) {
		bodyStr := string(body)
		return q.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:     &q.queueURL,
			MessageBody:  &bodyStr,
			DelaySeconds: delaySeconds,
		})
	})
	return err
}

func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitTime time.Duration) ([]Envelope, error) {
	if maxMessages > 10 {
		maxMessages = 10 // SQS hard cap per ReceiveMessage call
	}
	waitSeconds := int32(waitTime / time.Second)
	if waitSeconds > 20 {
		waitSeconds = 20 // SQS hard cap on long-poll wait
	}
	result, err := q.breaker.Execute(func() (interface{}, error) {
		return q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    &q.queueURL,
			MaxNumberOfMessages:         int32(maxMessages),
			WaitTimeSeconds:             waitSeconds,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
		})
	})
	if err != nil {
		return nil, err
	}
	out := result.(*sqs.ReceiveMessageOutput)

	envelopes := make([]Envelope, 0, len(out.Messages))
	for _, m := range out.Messages {
		receiveCount := 1
		if v, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			fmt.Sscanf(v, "%d", &receiveCount)
		}
		var body string
		if m.Body != nil {
			body = *m.Body
		}
		envelopes = append(envelopes, Envelope{
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          []byte(body),
			ReceiveCount:  receiveCount,
		})
	}
	return envelopes, nil
}

func (q *SQSQueue) Ack(ctx context.Context, receiptHandle string) error {
	_, err := q.breaker.Execute(func() (interface{}, error) {
		return q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &q.queueURL,
			ReceiptHandle: &receiptHandle,
		})
	})
	return err
}

func (q *SQSQueue) Release(ctx context.Context, receiptHandle string) error {
	var zero int32
	_, err := q.breaker.Execute(func() (interface{}, error) {
		return q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          &q.queueURL,
			ReceiptHandle:     &receiptHandle,
			VisibilityTimeout: zero,
		})
	})
	return err
}
