package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/types"
)

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver reads OpenSearch master credentials from Secrets Manager.
type Resolver struct {
	client secretsManagerAPI
	logger *zap.Logger
}

func NewResolver(awsConfig aws.Config, logger *zap.Logger) *Resolver {
	return newResolver(secretsmanager.NewFromConfig(awsConfig), logger)
}

func newResolver(client secretsManagerAPI, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, logger: logger}
}

type masterCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResolveOpenSearchCredentials fills the master password (and the username, when the secret
// carries one and none is configured) from MASTER_PASSWORD_SECRET_ID. The secret may be a
// plain string or a JSON object with username/password keys.
func (r *Resolver) ResolveOpenSearchCredentials(ctx context.Context, cfg *types.Config) error {
	if cfg == nil || cfg.OpenSearchPasswordSecret == "" {
		return nil
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.OpenSearchPasswordSecret),
	})
	if err != nil {
		return fmt.Errorf("failed to read secret %s: %w", cfg.OpenSearchPasswordSecret, err)
	}

	value := strings.TrimSpace(aws.ToString(out.SecretString))
	if value == "" {
		return fmt.Errorf("secret %s has no string value", cfg.OpenSearchPasswordSecret)
	}

	if strings.HasPrefix(value, "{") {
		var creds masterCredentials
		if err := json.Unmarshal([]byte(value), &creds); err != nil {
			return fmt.Errorf("secret %s is not valid JSON: %w", cfg.OpenSearchPasswordSecret, err)
		}
		if creds.Password == "" {
			return fmt.Errorf("secret %s has no password field", cfg.OpenSearchPasswordSecret)
		}
		if cfg.OpenSearchUsername == "" {
			cfg.OpenSearchUsername = creds.Username
		}
		cfg.OpenSearchPassword = creds.Password
	} else {
		cfg.OpenSearchPassword = value
	}

	r.logger.Debug("resolved OpenSearch credentials from Secrets Manager",
		zap.String("secret_id", cfg.OpenSearchPasswordSecret))
	return nil
}
