package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/photosearch/internal/types"
)

type mockSecretsManager struct {
	mock.Mock
}

func (m *mockSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, aws.ToString(params.SecretId))
	if out := args.Get(0); out != nil {
		return out.(*secretsmanager.GetSecretValueOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestResolveOpenSearchCredentials(t *testing.T) {
	t.Run("no secret configured", func(t *testing.T) {
		client := &mockSecretsManager{}
		cfg := &types.Config{OpenSearchPassword: "env"}

		require.NoError(t, newResolver(client, nil).ResolveOpenSearchCredentials(context.Background(), cfg))
		assert.Equal(t, "env", cfg.OpenSearchPassword)
		client.AssertNotCalled(t, "GetSecretValue", mock.Anything, mock.Anything)
	})

	t.Run("plain string secret", func(t *testing.T) {
		client := &mockSecretsManager{}
		client.On("GetSecretValue", mock.Anything, "photosearch/master").
			Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String("hunter2\n")}, nil).Once()
		cfg := &types.Config{OpenSearchUsername: "admin", OpenSearchPasswordSecret: "photosearch/master"}

		require.NoError(t, newResolver(client, nil).ResolveOpenSearchCredentials(context.Background(), cfg))
		assert.Equal(t, "admin", cfg.OpenSearchUsername)
		assert.Equal(t, "hunter2", cfg.OpenSearchPassword)
		client.AssertExpectations(t)
	})

	t.Run("json secret fills missing username", func(t *testing.T) {
		client := &mockSecretsManager{}
		client.On("GetSecretValue", mock.Anything, "photosearch/master").
			Return(&secretsmanager.GetSecretValueOutput{
				SecretString: aws.String(`{"username":"master","password":"p@ss"}`),
			}, nil).Once()
		cfg := &types.Config{OpenSearchPasswordSecret: "photosearch/master"}

		require.NoError(t, newResolver(client, nil).ResolveOpenSearchCredentials(context.Background(), cfg))
		assert.Equal(t, "master", cfg.OpenSearchUsername)
		assert.Equal(t, "p@ss", cfg.OpenSearchPassword)
	})

	t.Run("json secret without password", func(t *testing.T) {
		client := &mockSecretsManager{}
		client.On("GetSecretValue", mock.Anything, "s").
			Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"username":"master"}`)}, nil).Once()

		err := newResolver(client, nil).ResolveOpenSearchCredentials(context.Background(),
			&types.Config{OpenSearchPasswordSecret: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no password")
	})

	t.Run("service error", func(t *testing.T) {
		client := &mockSecretsManager{}
		client.On("GetSecretValue", mock.Anything, "s").Return(nil, errors.New("AccessDenied")).Once()

		err := newResolver(client, nil).ResolveOpenSearchCredentials(context.Background(),
			&types.Config{OpenSearchPasswordSecret: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AccessDenied")
	})
}
