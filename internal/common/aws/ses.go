// internal/common/aws/ses.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// SESAPI is the subset of the SES client used for outbound mail.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// StaticCredentials are the per-tenant keys stored in the credential vault.
// Empty keys fall back to the default AWS provider chain.
type StaticCredentials struct {
	AccessKeyID     string `mapstructure:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	SessionToken    string `mapstructure:"sessionToken"`
	Region          string `mapstructure:"region"`
}

// LoadConfig builds an aws.Config for one tenant. defaultRegion applies when
// the credential does not carry its own region.
func LoadConfig(ctx context.Context, creds StaticCredentials, defaultRegion string) (aws.Config, error) {
	region := creds.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// NewSESClient returns an SES client scoped to the given credentials.
func NewSESClient(ctx context.Context, creds StaticCredentials, defaultRegion string) (*ses.Client, error) {
	cfg, err := LoadConfig(ctx, creds, defaultRegion)
	if err != nil {
		return nil, err
	}
	return ses.NewFromConfig(cfg), nil
}
