package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/types"
)

const maxSearchSize = 10000

type objectKeySource struct {
	ObjectKey string `json:"objectKey"`
}

// SearchObjectKeys runs a multi_match query for text across all fields and returns the
// objectKey of every hit in hit order. Hits whose source has no objectKey are skipped.
func (c *Client) SearchObjectKeys(ctx context.Context, indexName, text string, size int) ([]string, error) {
	if text == "" {
		return nil, NewSearchError(types.ErrorTypeValidation, "query text cannot be empty")
	}
	if size <= 0 {
		size = 100
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}

	bodyJSON, err := json.Marshal(buildMultiMatchBody(text, size))
	if err != nil {
		return nil, NewSearchError(types.ErrorTypeValidation, fmt.Sprintf("failed to marshal search body: %v", err))
	}

	var keys []string
	operation := func() error {
		if err := c.WaitForRateLimit(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}

		req := &opensearchapi.SearchReq{
			Indices: []string{indexName},
			Body:    bytes.NewReader(bodyJSON),
		}

		resp, err := c.client.Search(ctx, req)
		if err != nil {
			return ClassifyError(err, "search")
		}
		if resp == nil {
			return NewSearchError(types.ErrorTypeResponse, "received nil response from OpenSearch")
		}

		keys = extractObjectKeys(resp.Hits.Hits, c.logger)
		return nil
	}

	if err := c.ExecuteWithRetry(ctx, operation, "SearchObjectKeys"); err != nil {
		return nil, err
	}

	c.logger.Debug("search completed",
		zap.String("index", indexName),
		zap.String("query", text),
		zap.Int("hits", len(keys)))
	return keys, nil
}

func buildMultiMatchBody(text string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query": text,
			},
		},
	}
}

func extractObjectKeys(hits []opensearchapi.SearchHit, logger *zap.Logger) []string {
	keys := make([]string, 0, len(hits))
	for _, hit := range hits {
		var source objectKeySource
		if err := json.Unmarshal(hit.Source, &source); err != nil {
			logger.Warn("skipping hit with unreadable source", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		if source.ObjectKey == "" {
			logger.Warn("skipping hit without objectKey", zap.String("id", hit.ID))
			continue
		}
		keys = append(keys, source.ObjectKey)
	}
	return keys
}
