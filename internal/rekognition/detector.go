package rekognition

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/awserr"
)

type detectLabelsAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// Options tune DetectLabels. Zero values leave the service defaults in place.
type Options struct {
	MaxLabels     int
	MinConfidence float64
}

// Detector detects object and scene labels in images stored in S3.
type Detector struct {
	client  detectLabelsAPI
	options Options
	logger  *zap.Logger
}

func NewDetector(awsConfig aws.Config, options Options, logger *zap.Logger) *Detector {
	return newDetector(rekognition.NewFromConfig(awsConfig), options, logger)
}

func newDetector(client detectLabelsAPI, options Options, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{client: client, options: options, logger: logger}
}

// DetectLabels returns the label names the service reports for bucket/key, in response order.
func (d *Detector) DetectLabels(ctx context.Context, bucket, key string) ([]string, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket and key are required")
	}

	input := &rekognition.DetectLabelsInput{
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
	}
	if d.options.MaxLabels > 0 {
		input.MaxLabels = aws.Int32(int32(d.options.MaxLabels))
	}
	if d.options.MinConfidence > 0 {
		input.MinConfidence = aws.Float32(float32(d.options.MinConfidence))
	}

	out, err := d.client.DetectLabels(ctx, input)
	if err != nil {
		return nil, awserr.Wrap("rekognition", "DetectLabels", err)
	}

	labels := make([]string, 0, len(out.Labels))
	for _, label := range out.Labels {
		if name := aws.ToString(label.Name); name != "" {
			labels = append(labels, name)
		}
	}

	d.logger.Debug("detected labels",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Strings("labels", labels))
	return labels, nil
}
