package rekognition

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/photosearch/internal/awserr"
)

type mockRekognition struct {
	mock.Mock
}

func (m *mockRekognition) DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*rekognition.DetectLabelsOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func labelsOutput(names ...string) *rekognition.DetectLabelsOutput {
	out := &rekognition.DetectLabelsOutput{}
	for _, n := range names {
		out.Labels = append(out.Labels, rektypes.Label{Name: aws.String(n)})
	}
	return out
}

func TestDetectLabels(t *testing.T) {
	client := &mockRekognition{}
	client.On("DetectLabels", mock.Anything, mock.MatchedBy(func(in *rekognition.DetectLabelsInput) bool {
		return aws.ToString(in.Image.S3Object.Bucket) == "photos" &&
			aws.ToString(in.Image.S3Object.Name) == "img1.jpg" &&
			in.MaxLabels == nil && in.MinConfidence == nil
	})).Return(labelsOutput("Dog", "Pet", ""), nil).Once()

	labels, err := newDetector(client, Options{}, nil).DetectLabels(context.Background(), "photos", "img1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog", "Pet"}, labels)
	client.AssertExpectations(t)
}

func TestDetectLabelsPassesOptions(t *testing.T) {
	client := &mockRekognition{}
	client.On("DetectLabels", mock.Anything, mock.MatchedBy(func(in *rekognition.DetectLabelsInput) bool {
		return aws.ToInt32(in.MaxLabels) == 10 && aws.ToFloat32(in.MinConfidence) == 75
	})).Return(labelsOutput(), nil).Once()

	labels, err := newDetector(client, Options{MaxLabels: 10, MinConfidence: 75}, nil).
		DetectLabels(context.Background(), "photos", "img1.jpg")
	require.NoError(t, err)
	assert.Empty(t, labels)
	client.AssertExpectations(t)
}

func TestDetectLabelsError(t *testing.T) {
	client := &mockRekognition{}
	client.On("DetectLabels", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "InvalidImageFormatException", Message: "bad image"}).Once()

	_, err := newDetector(client, Options{}, nil).DetectLabels(context.Background(), "photos", "doc.pdf")
	require.Error(t, err)
	assert.Equal(t, "InvalidImageFormatException", awserr.Code(err))
}

func TestDetectLabelsRequiresLocation(t *testing.T) {
	_, err := newDetector(&mockRekognition{}, Options{}, nil).DetectLabels(context.Background(), "", "k")
	require.Error(t, err)
}
