package ingest

import (
	"context"

	"github.com/ca-srg/photosearch/internal/types"
)

// LabelDetector detects labels in a stored image
type LabelDetector interface {
	// DetectLabels returns the detected label names for bucket/key in detection order
	DetectLabels(ctx context.Context, bucket, key string) ([]string, error)
}

// MetadataReader reads operator supplied labels from object metadata
type MetadataReader interface {
	// CustomLabels returns the custom labels stored on bucket/key, empty when none are set
	CustomLabels(ctx context.Context, bucket, key string) ([]string, error)
}

// DocumentIndexer writes search documents
type DocumentIndexer interface {
	// IndexDocument upserts doc into indexName under doc.ObjectKey
	IndexDocument(ctx context.Context, indexName string, doc *types.SearchDocument) error
}
