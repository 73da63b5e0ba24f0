package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cassiomorais/orders/internal/messaging"
)

// SQSAPI is the subset of the SQS client the subscriber uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type SQSSubscriberConfig struct {
	QueueURL          string
	MaxMessages       int32
	WaitTimeSeconds   int32
	VisibilityTimeout int32
}

// SQSSubscriber receives from a queue subscribed to the SNS topic. Both SNS
// notification envelopes and raw deliveries are accepted.
type SQSSubscriber struct {
	client SQSAPI
	cfg    SQSSubscriberConfig
}

func NewSQSSubscriber(client SQSAPI, cfg SQSSubscriberConfig) *SQSSubscriber {
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > 10 {
		cfg.MaxMessages = 10
	}
	return &SQSSubscriber{client: client, cfg: cfg}
}

func (s *SQSSubscriber) Receive(ctx context.Context) ([]messaging.Delivery, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(s.cfg.QueueURL),
		MaxNumberOfMessages:         s.cfg.MaxMessages,
		WaitTimeSeconds:             s.cfg.WaitTimeSeconds,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if s.cfg.VisibilityTimeout > 0 {
		in.VisibilityTimeout = s.cfg.VisibilityTimeout
	}

	out, err := s.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	deliveries := make([]messaging.Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		deliveries = append(deliveries, toSQSDelivery(m))
	}
	return deliveries, nil
}

func (s *SQSSubscriber) Ack(ctx context.Context, d messaging.Delivery) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.cfg.QueueURL),
		ReceiptHandle: aws.String(d.Handle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

// Nack makes the message visible again immediately.
func (s *SQSSubscriber) Nack(ctx context.Context, d messaging.Delivery) error {
	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.cfg.QueueURL),
		ReceiptHandle:     aws.String(d.Handle),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("sqs change visibility: %w", err)
	}
	return nil
}

// snsNotification is the JSON envelope SNS wraps around messages delivered
// to SQS without raw message delivery.
type snsNotification struct {
	Type              string                  `json:"Type"`
	MessageID         string                  `json:"MessageId"`
	TopicArn          string                  `json:"TopicArn"`
	Message           string                  `json:"Message"`
	Timestamp         string                  `json:"Timestamp"`
	MessageAttributes map[string]snsAttribute `json:"MessageAttributes"`
}

type snsAttribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

func toSQSDelivery(m sqstypes.Message) messaging.Delivery {
	d := messaging.Delivery{
		ID:           aws.ToString(m.MessageId),
		Handle:       aws.ToString(m.ReceiptHandle),
		Body:         []byte(aws.ToString(m.Body)),
		Attributes:   make(map[string]string),
		ReceiveCount: 1,
	}
	if n, err := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
		d.ReceiveCount = n
	}
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			d.Attributes[k] = *v.StringValue
		}
	}

	if body, attrs, ok := unwrapNotification(d.Body); ok {
		d.Body = body
		for k, v := range attrs {
			d.Attributes[k] = v
		}
	}
	return d
}

func unwrapNotification(body []byte) ([]byte, map[string]string, bool) {
	var n snsNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, nil, false
	}
	if n.Type != "Notification" || n.Message == "" {
		return nil, nil, false
	}

	attrs := make(map[string]string, len(n.MessageAttributes))
	for k, a := range n.MessageAttributes {
		attrs[k] = a.Value
	}
	return []byte(n.Message), attrs, true
}
