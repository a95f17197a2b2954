package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQS struct {
	sent     []string
	queueURL string
	err      error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queueURL = aws.ToString(params.QueueUrl)
	f.sent = append(f.sent, aws.ToString(params.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m1")}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, params *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queueURL = aws.ToString(params.QueueUrl)
	return &sqs.GetQueueAttributesOutput{}, nil
}

func TestSQSClientSend(t *testing.T) {
	api := &fakeSQS{}
	client := NewSQSClientWithAPI(api, "https://sqs.local/queue")

	if err := client.Send(context.Background(), Message{OwnerID: "u1", UnitID: "Q1", Version: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(api.sent) != 1 || api.queueURL != "https://sqs.local/queue" {
		t.Fatalf("unexpected send: %+v", api)
	}
	msg, err := DecodeMessage([]byte(api.sent[0]))
	if err != nil || msg.OwnerID != "u1" {
		t.Fatalf("sent body not decodable: %v %+v", err, msg)
	}
}

func TestSQSClientWrapsErrors(t *testing.T) {
	boom := errors.New("throttled")
	client := NewSQSClientWithAPI(&fakeSQS{err: boom}, "q")

	if err := client.Send(context.Background(), Message{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
	if err := client.Ping(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped ping error, got %v", err)
	}
}

func TestNewSQSClientRequiresURL(t *testing.T) {
	if _, err := NewSQSClient(context.Background(), "ap-northeast-2", " "); err == nil {
		t.Fatalf("expected error for empty queue url")
	}
}
