// Package aws adapts SNS, SQS and S3 to the messaging boundary.
package aws

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cassiomorais/orders/internal/infrastructure/config"
)

// Clients bundles the service clients built from one AWS configuration.
type Clients struct {
	SNS *sns.Client
	SQS *sqs.Client
	S3  *s3.Client
}

// NewClients loads the default AWS configuration, applying static credentials
// and a custom endpoint (LocalStack) when configured.
func NewClients(ctx context.Context, cfg *config.AWSConfig) (*Clients, error) {
	if cfg.Region == "" {
		return nil, errors.New("aws region is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var endpoint *string
	if cfg.Endpoint != "" {
		endpoint = aws.String(cfg.Endpoint)
	}

	return &Clients{
		SNS: sns.NewFromConfig(awsCfg, func(o *sns.Options) { o.BaseEndpoint = endpoint }),
		SQS: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.BaseEndpoint = endpoint }),
		S3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = endpoint
			if endpoint != nil {
				o.UsePathStyle = true
			}
		}),
	}, nil
}
