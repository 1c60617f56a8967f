package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/config"
)

var recreateIndexCmd = &cobra.Command{
	Use:   "recreate-index",
	Short: "Recreate the OpenSearch index with the search document mapping",
	Long: `Delete the configured index if it exists and create it again with the mapping for
search documents (objectKey, bucket, createdTimestamp, labels). Run reindex afterwards
to repopulate it.`,
	RunE: runRecreateIndex,
}

func init() {
	rootCmd.AddCommand(recreateIndexCmd)
}

// indexManager is the subset of the OpenSearch client recreate-index uses.
type indexManager interface {
	HealthCheck(ctx context.Context) error
	IndexExists(ctx context.Context, indexName string) (bool, error)
	DeleteIndex(ctx context.Context, indexName string) error
	CreateIndex(ctx context.Context, indexName string) error
}

// deletionSettleDelay is the pause between delete and create; tests shorten it.
var deletionSettleDelay = 2 * time.Second

func runRecreateIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), config.HandlerIngest)
	if err != nil {
		return err
	}
	defer a.close()

	return recreateIndex(cmd.Context(), a.opensearch, a.cfg.OpenSearchIndex, a.logger)
}

func recreateIndex(ctx context.Context, indexer indexManager, indexName string, log *zap.Logger) error {
	if err := indexer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("OpenSearch is not reachable, index left untouched: %w", err)
	}

	exists, err := indexer.IndexExists(ctx, indexName)
	if err != nil {
		log.Warn("could not check if index exists", zap.String("index", indexName), zap.Error(err))
	}

	if exists {
		log.Info("deleting existing index", zap.String("index", indexName))
		if err := indexer.DeleteIndex(ctx, indexName); err != nil {
			log.Warn("could not delete index", zap.String("index", indexName), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(deletionSettleDelay):
		}
	}

	log.Info("creating index", zap.String("index", indexName))
	if err := indexer.CreateIndex(ctx, indexName); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	exists, err = indexer.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("failed to verify index creation: %w", err)
	}
	if !exists {
		return fmt.Errorf("index was not created successfully")
	}

	log.Info("index recreated; run 'photosearch reindex' to repopulate it", zap.String("index", indexName))
	return nil
}
