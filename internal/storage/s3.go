package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/awserr"
)

const metadataHeaderPrefix = "x-amz-meta-"

// ImageObject is a stored image discovered by ListImages.
type ImageObject struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
}

// Store reads user metadata from and writes images to S3.
type Store struct {
	client      *s3.Client
	metadataKey string
	logger      *zap.Logger
}

// NewStore builds a Store. metadataKey names the user-metadata entry holding the
// comma-separated custom labels.
func NewStore(client *s3.Client, metadataKey string, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	metadataKey = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.ToLower(metadataKey), metadataHeaderPrefix)))
	if metadataKey == "" {
		return nil, fmt.Errorf("custom labels metadata key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, metadataKey: metadataKey, logger: logger}, nil
}

// CustomLabels returns the user-supplied labels stored on bucket/key, in stored order.
// An object without the metadata entry yields an empty slice.
func (s *Store) CustomLabels(ctx context.Context, bucket, key string) ([]string, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, awserr.Wrap("s3", "HeadObject", err))
	}

	raw, ok := lookupMetadata(out.Metadata, s.metadataKey)
	if !ok {
		s.logger.Debug("object has no custom labels",
			zap.String("bucket", bucket),
			zap.String("key", key))
		return []string{}, nil
	}
	return ParseCustomLabels(raw), nil
}

// lookupMetadata matches name case-insensitively, with or without the x-amz-meta- prefix.
func lookupMetadata(metadata map[string]string, name string) (string, bool) {
	for k, v := range metadata {
		k = strings.ToLower(k)
		if k == name || strings.TrimPrefix(k, metadataHeaderPrefix) == name {
			return v, true
		}
	}
	return "", false
}

// ParseCustomLabels splits a comma-separated metadata value into trimmed, non-empty labels.
func ParseCustomLabels(raw string) []string {
	labels := []string{}
	for _, part := range strings.Split(raw, ",") {
		if label := strings.TrimSpace(part); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

// FormatCustomLabels is the inverse of ParseCustomLabels.
func FormatCustomLabels(labels []string) string {
	cleaned := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			cleaned = append(cleaned, l)
		}
	}
	return strings.Join(cleaned, ", ")
}

// ListImages pages through bucket/prefix and returns every .jpg, .jpeg and .png object.
func (s *Store) ListImages(ctx context.Context, bucket, prefix string) ([]ImageObject, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var images []ImageObject
	pageCount := 0
	for paginator.HasMorePages() {
		pageCount++
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, prefix, awserr.Wrap("s3", "ListObjectsV2", err))
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") || !IsImageKey(key) {
				continue
			}
			images = append(images, ImageObject{
				Bucket:       bucket,
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	s.logger.Info("listed images",
		zap.String("bucket", bucket),
		zap.String("prefix", prefix),
		zap.Int("pages", pageCount),
		zap.Int("images", len(images)))
	return images, nil
}

// IsImageKey reports whether key has an image extension the label detector accepts.
func IsImageKey(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// Upload stores body at bucket/key with labels in the custom labels metadata entry.
func (s *Store) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string, labels []string) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("bucket and key are required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if value := FormatCustomLabels(labels); value != "" {
		input.Metadata = map[string]string{s.metadataKey: value}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, awserr.Wrap("s3", "PutObject", err))
	}

	s.logger.Info("uploaded image",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("custom_labels", len(labels)))
	return nil
}
