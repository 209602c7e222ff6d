// internal/common/aws/sns.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used for direct SMS publishing.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NewSNSClient returns an SNS client scoped to the given credentials.
func NewSNSClient(ctx context.Context, creds StaticCredentials, defaultRegion string) (*sns.Client, error) {
	cfg, err := LoadConfig(ctx, creds, defaultRegion)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(cfg), nil
}
