package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cassiomorais/orders/internal/messaging"
)

// S3API is the subset of the S3 client the dead-letter sink uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3DeadLetterSink archives each dead letter as one JSON object.
type S3DeadLetterSink struct {
	client S3API
	bucket string
	prefix string
}

func NewS3DeadLetterSink(client S3API, bucket, prefix string) *S3DeadLetterSink {
	return &S3DeadLetterSink{client: client, bucket: bucket, prefix: prefix}
}

type deadLetterObject struct {
	MessageID  string            `json:"message_id"`
	DeliveryID string            `json:"delivery_id"`
	EventType  string            `json:"event_type,omitempty"`
	Reason     string            `json:"reason"`
	FailedAt   time.Time         `json:"failed_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Body       []byte            `json:"body"`
}

func (s *S3DeadLetterSink) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	data, err := json.Marshal(deadLetterObject{
		MessageID:  dl.MessageID,
		DeliveryID: dl.DeliveryID,
		EventType:  dl.EventType,
		Reason:     dl.Reason,
		FailedAt:   dl.FailedAt.UTC(),
		Attributes: dl.Attributes,
		Body:       dl.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	key := s.objectKey(dl)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-type": dl.EventType,
			"message-id": dl.MessageID,
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// objectKey groups objects by failure day. The delivery id keeps two dead
// letters for the same message apart.
func (s *S3DeadLetterSink) objectKey(dl messaging.DeadLetter) string {
	day := dl.FailedAt.UTC().Format("2006/01/02")
	name := dl.MessageID
	if dl.DeliveryID != "" && dl.DeliveryID != dl.MessageID {
		name += "_" + dl.DeliveryID
	}
	return s.prefix + path.Join(day, name+".json")
}
