package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeIndexManager struct {
	healthErr error
	exists    bool
	createErr error
	calls     []string
}

func (f *fakeIndexManager) HealthCheck(ctx context.Context) error {
	f.calls = append(f.calls, "health")
	return f.healthErr
}

func (f *fakeIndexManager) IndexExists(ctx context.Context, indexName string) (bool, error) {
	f.calls = append(f.calls, "exists")
	return f.exists, nil
}

func (f *fakeIndexManager) DeleteIndex(ctx context.Context, indexName string) error {
	f.calls = append(f.calls, "delete")
	f.exists = false
	return nil
}

func (f *fakeIndexManager) CreateIndex(ctx context.Context, indexName string) error {
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return f.createErr
	}
	f.exists = true
	return nil
}

func TestRecreateIndex(t *testing.T) {
	original := deletionSettleDelay
	deletionSettleDelay = 0
	t.Cleanup(func() { deletionSettleDelay = original })

	t.Run("existing index is replaced", func(t *testing.T) {
		f := &fakeIndexManager{exists: true}
		require.NoError(t, recreateIndex(context.Background(), f, "data", zap.NewNop()))
		assert.Equal(t, []string{"health", "exists", "delete", "create", "exists"}, f.calls)
	})

	t.Run("missing index is created", func(t *testing.T) {
		f := &fakeIndexManager{}
		require.NoError(t, recreateIndex(context.Background(), f, "data", zap.NewNop()))
		assert.Equal(t, []string{"health", "exists", "create", "exists"}, f.calls)
	})

	t.Run("unreachable cluster leaves the index alone", func(t *testing.T) {
		f := &fakeIndexManager{exists: true, healthErr: errors.New("no such host")}
		err := recreateIndex(context.Background(), f, "data", zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such host")
		assert.Equal(t, []string{"health"}, f.calls)
	})

	t.Run("create failure", func(t *testing.T) {
		f := &fakeIndexManager{createErr: errors.New("mapper_parsing_exception")}
		err := recreateIndex(context.Background(), f, "data", zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mapper_parsing_exception")
	})
}
