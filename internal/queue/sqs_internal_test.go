package queue

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSQSAPI struct {
	sent       []*sqs.SendMessageInput
	messages   []types.Message
	deleted    []string
	visChanged []string
}

func (s *stubSQSAPI) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.sent = append(s.sent, params)
	return &sqs.SendMessageOutput{}, nil
}

func (s *stubSQSAPI) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	out := &sqs.ReceiveMessageOutput{Messages: s.messages}
	s.messages = nil
	return out, nil
}

func (s *stubSQSAPI) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	s.deleted = append(s.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (s *stubSQSAPI) ChangeMessageVisibility(_ context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	s.visChanged = append(s.visChanged, aws.ToString(params.ReceiptHandle))
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func newTestSQSQueue(api sqsAPI) *SQSQueue {
	return &SQSQueue{
		client:   api,
		queueURL: "https://sqs.example/queue",
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "test",
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
		}),
	}
}

func TestSQSQueue_SendCapsDelayAtNineHundredSeconds(t *testing.T) {
	stub := &stubSQSAPI{}
	q := newTestSQSQueue(stub)

	require.NoError(t, q.Send(context.Background(), []byte("body"), 2*time.Hour))
	require.Len(t, stub.sent, 1)
	assert.Equal(t, int32(900), stub.sent[0].DelaySeconds)
}

func TestSQSQueue_ReceiveParsesReceiveCountAttribute(t *testing.T) {
	body := "hello"
	stub := &stubSQSAPI{messages: []types.Message{
		{
			Body:          &body,
			ReceiptHandle: aws.String("rh-1"),
			Attributes:    map[string]string{string(types.MessageSystemAttributeNameApproximateReceiveCount): "3"},
		},
	}}
	q := newTestSQSQueue(stub)

	envelopes, err := q.Receive(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, 3, envelopes[0].ReceiveCount)
	assert.Equal(t, "rh-1", envelopes[0].ReceiptHandle)
}

func TestSQSQueue_AckDeletesByReceiptHandle(t *testing.T) {
	stub := &stubSQSAPI{}
	q := newTestSQSQueue(stub)

	require.NoError(t, q.Ack(context.Background(), "rh-2"))
	assert.Equal(t, []string{"rh-2"}, stub.deleted)
}

func TestSQSQueue_ReleaseSetsVisibilityToZero(t *testing.T) {
	stub := &stubSQSAPI{}
	q := newTestSQSQueue(stub)

	require.NoError(t, q.Release(context.Background(), "rh-3"))
	assert.Equal(t, []string{"rh-3"}, stub.visChanged)
}
