package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/photosearch/internal/ingest"
)

const samplePutEvent = `{
  "Records": [
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "awsRegion": "us-east-1",
      "eventTime": "2024-03-01T12:30:00.250Z",
      "eventName": "ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "photos", "arn": "arn:aws:s3:::photos"},
        "object": {"key": "holiday/beach+day.jpg", "size": 1024}
      }
    }
  ]
}`

func TestReadS3Event(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "event.json")
		require.NoError(t, os.WriteFile(path, []byte(samplePutEvent), 0o600))

		event, err := readS3Event(path, nil)
		require.NoError(t, err)
		require.Len(t, event.Records, 1)
		assert.Equal(t, "photos", event.Records[0].S3.Bucket.Name)
		assert.Equal(t, "holiday/beach day.jpg", event.Records[0].S3.Object.URLDecodedKey)
	})

	t.Run("stdin", func(t *testing.T) {
		event, err := readS3Event("-", strings.NewReader(samplePutEvent))
		require.NoError(t, err)
		assert.Len(t, event.Records, 1)
	})

	t.Run("no records", func(t *testing.T) {
		_, err := readS3Event("-", strings.NewReader(`{"Records":[]}`))
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := readS3Event("-", strings.NewReader(`{`))
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readS3Event(filepath.Join(t.TempDir(), "nope.json"), nil)
		require.Error(t, err)
	})
}

func TestSummarizeIngest(t *testing.T) {
	result := &ingest.Result{
		Records: []ingest.RecordResult{
			{Bucket: "photos", Key: "a.jpg", Labels: []string{"Dog"}},
			{Bucket: "photos", Key: "b.jpg", Labels: []string{}, DetectionFailed: true, IndexError: errors.New("index down")},
		},
		Indexed:           1,
		IndexFailures:     1,
		DetectionFailures: 1,
	}

	summary := summarizeIngest(result)
	require.Len(t, summary.Records, 2)
	assert.True(t, summary.Records[0].Indexed)
	assert.False(t, summary.Records[1].Indexed)
	assert.Equal(t, "index down", summary.Records[1].Error)

	out := captureOutput(t, func() {
		require.NoError(t, printJSON(os.Stdout, summary))
	})
	assert.Contains(t, out, `"indexFailures": 1`)
	assert.Contains(t, out, `"error": "index down"`)
}
