package cmd

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ca-srg/photosearch/internal/config"
	"github.com/ca-srg/photosearch/internal/ingest"
	"github.com/ca-srg/photosearch/internal/storage"
)

const defaultReindexConcurrency = 4

var (
	reindexBucket      string
	reindexPrefix      string
	reindexConcurrency int
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild search documents for every image in a bucket",
	Long: `
List every .jpg, .jpeg and .png object under a bucket prefix and run each one through
the ingestion pipeline, as if it had just been uploaded. The object's LastModified
time becomes createdTimestamp. Useful after recreate-index.

Example:
  photosearch reindex --bucket photos --prefix 2024/ --concurrency 8
`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().StringVarP(&reindexBucket, "bucket", "b", "", "S3 bucket to scan (required)")
	reindexCmd.Flags().StringVarP(&reindexPrefix, "prefix", "p", "", "Only reindex keys under this prefix")
	reindexCmd.Flags().IntVarP(&reindexConcurrency, "concurrency", "c", defaultReindexConcurrency, "Number of objects processed in parallel")
	_ = reindexCmd.MarkFlagRequired("bucket")
}

type objectProcessor interface {
	ProcessObject(ctx context.Context, bucket, key string, eventTime time.Time) ingest.RecordResult
}

type reindexSummary struct {
	Objects       int `json:"objects"`
	Indexed       int `json:"indexed"`
	IndexFailures int `json:"indexFailures"`
}

func runReindex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), config.HandlerIngest)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.newStore()
	if err != nil {
		return err
	}
	h, err := a.newIngestHandler()
	if err != nil {
		return fmt.Errorf("failed to create ingest handler: %w", err)
	}

	ctx := a.invocationContext(cmd.Context())
	images, err := store.ListImages(ctx, reindexBucket, reindexPrefix)
	if err != nil {
		return err
	}

	summary, err := reindexObjects(ctx, h, images, reindexConcurrency)
	if err != nil {
		return err
	}
	a.logger.Info("reindex finished",
		zap.Int("objects", summary.Objects),
		zap.Int("indexed", summary.Indexed),
		zap.Int("index_failures", summary.IndexFailures))
	return printJSON(cmd.OutOrStdout(), summary)
}

// reindexObjects processes images with at most concurrency in flight. Per-object
// failures are counted, only cancellation stops the run.
func reindexObjects(ctx context.Context, p objectProcessor, images []storage.ImageObject, concurrency int) (reindexSummary, error) {
	if concurrency <= 0 {
		concurrency = defaultReindexConcurrency
	}

	var indexed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, img := range images {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if p.ProcessObject(gctx, img.Bucket, img.Key, img.LastModified).Indexed() {
				indexed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return reindexSummary{}, fmt.Errorf("reindex interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return reindexSummary{}, fmt.Errorf("reindex interrupted: %w", err)
	}

	return reindexSummary{
		Objects:       len(images),
		Indexed:       int(indexed.Load()),
		IndexFailures: int(failed.Load()),
	}, nil
}
