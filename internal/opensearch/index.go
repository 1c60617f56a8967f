package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/types"
)

// IndexDocument writes doc under its objectKey, replacing any existing document.
// opensearch-go puts the document ID into the request path as is, so the key is
// path-escaped here; otherwise "/" splits the path and "#" or "?" truncate the ID.
func (c *Client) IndexDocument(ctx context.Context, indexName string, doc *types.SearchDocument) error {
	if doc == nil {
		return NewSearchError(types.ErrorTypeValidation, "document cannot be nil")
	}
	if err := doc.Validate(); err != nil {
		return NewSearchError(types.ErrorTypeValidation, err.Error())
	}

	bodyJSON, err := json.Marshal(doc)
	if err != nil {
		return NewSearchError(types.ErrorTypeValidation, fmt.Sprintf("failed to marshal document: %v", err))
	}

	operation := func() error {
		if err := c.WaitForRateLimit(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}

		req := opensearchapi.IndexReq{
			Index:      indexName,
			DocumentID: url.PathEscape(doc.ObjectKey),
			Body:       bytes.NewReader(bodyJSON),
		}

		if _, err := c.client.Index(ctx, req); err != nil {
			return ClassifyError(err, "index")
		}
		return nil
	}

	startTime := time.Now()
	err = c.ExecuteWithRetry(ctx, operation, "IndexDocument")
	if err != nil {
		return err
	}

	c.logger.Debug("indexed document",
		zap.String("index", indexName),
		zap.String("object_key", doc.ObjectKey),
		zap.Int("labels", len(doc.Labels)),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

// DocumentMapping is the index mapping for SearchDocument. labels is analysed text with a
// keyword sub-field so multi_match hits it and exact aggregations stay possible.
func DocumentMapping() map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"objectKey": map[string]interface{}{
					"type": "keyword",
				},
				"bucket": map[string]interface{}{
					"type": "keyword",
				},
				"createdTimestamp": map[string]interface{}{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
				"labels": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{
							"type":         "keyword",
							"ignore_above": 256,
						},
					},
				},
			},
		},
	}
}

// CreateIndex creates indexName with DocumentMapping.
func (c *Client) CreateIndex(ctx context.Context, indexName string) error {
	bodyJSON, err := json.Marshal(DocumentMapping())
	if err != nil {
		return NewSearchError(types.ErrorTypeValidation, fmt.Sprintf("failed to marshal mapping: %v", err))
	}

	operation := func() error {
		if err := c.WaitForRateLimit(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}

		req := opensearchapi.IndicesCreateReq{
			Index: indexName,
			Body:  bytes.NewReader(bodyJSON),
		}
		if _, err := c.client.Indices.Create(ctx, req); err != nil {
			return ClassifyError(err, "create_index")
		}
		return nil
	}

	if err := c.ExecuteWithRetry(ctx, operation, "CreateIndex"); err != nil {
		return err
	}

	c.logger.Info("created index", zap.String("index", indexName))
	return nil
}

// DeleteIndex removes an existing index.
func (c *Client) DeleteIndex(ctx context.Context, indexName string) error {
	operation := func() error {
		if err := c.WaitForRateLimit(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}

		req := opensearchapi.IndicesDeleteReq{
			Indices: []string{indexName},
		}
		if _, err := c.client.Indices.Delete(ctx, req); err != nil {
			return ClassifyError(err, "delete_index")
		}
		return nil
	}

	if err := c.ExecuteWithRetry(ctx, operation, "DeleteIndex"); err != nil {
		return err
	}

	c.logger.Info("deleted index", zap.String("index", indexName))
	return nil
}

// IndexExists reports whether indexName exists.
func (c *Client) IndexExists(ctx context.Context, indexName string) (bool, error) {
	var exists bool

	operation := func() error {
		if err := c.WaitForRateLimit(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}

		req := opensearchapi.IndicesExistsReq{
			Indices: []string{indexName},
		}
		resp, err := c.client.Indices.Exists(ctx, req)
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			exists = false
			return nil
		}
		if err != nil {
			return ClassifyError(err, "index_exists")
		}

		exists = resp != nil && resp.StatusCode == http.StatusOK
		return nil
	}

	if err := c.ExecuteWithRetry(ctx, operation, "IndexExists"); err != nil {
		return false, err
	}
	return exists, nil
}
