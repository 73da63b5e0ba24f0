package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/cassiomorais/orders/internal/messaging"
)

// SNSAPI is the subset of the SNS client the publisher uses.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes messages to the topic ARN in Message.Topic.
type SNSPublisher struct {
	client SNSAPI
}

func NewSNSPublisher(client SNSAPI) *SNSPublisher {
	return &SNSPublisher{client: client}
}

func (p *SNSPublisher) Publish(ctx context.Context, msg messaging.Message) error {
	in := &sns.PublishInput{
		TopicArn:          aws.String(msg.Topic),
		Message:           aws.String(string(msg.Body)),
		MessageAttributes: make(map[string]snstypes.MessageAttributeValue, len(msg.Attributes)),
	}
	for k, v := range msg.Attributes {
		if v == "" {
			continue
		}
		in.MessageAttributes[k] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	// FIFO topics dedupe on the event id and order within one event type.
	if strings.HasSuffix(msg.Topic, ".fifo") {
		group := msg.Attributes[messaging.AttrEventType]
		if group == "" {
			group = "events"
		}
		in.MessageGroupId = aws.String(group)
		in.MessageDeduplicationId = aws.String(msg.Key)
	}

	if _, err := p.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("sns publish to %s: %w", msg.Topic, err)
	}
	return nil
}
