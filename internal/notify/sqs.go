package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"wager/internal/models"
)

// SQSSender is the subset of the SQS client the publisher needs.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher forwards events to a queue for out-of-process consumers
// such as push notification workers.
type SQSPublisher struct {
	Client   SQSSender
	QueueURL string
}

func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{Client: client, QueueURL: queueURL}
}

var _ Publisher = (*SQSPublisher)(nil)

func (p *SQSPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s for SQS: %w", event.ID, err)
	}

	_, err = p.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(event.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send event %s to SQS: %w", event.ID, err)
	}
	return nil
}
