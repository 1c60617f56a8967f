package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig resolves the shared AWS configuration once per process. Every service client
// is built from it, so clients are reused across Lambda invocations.
func LoadAWSConfig(ctx context.Context, cfg *Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg != nil && cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return awsCfg, nil
}
