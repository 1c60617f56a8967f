package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spf13/cobra"

	"github.com/ca-srg/photosearch/internal/config"
	"github.com/ca-srg/photosearch/internal/ingest"
)

var ingestEventFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replay an S3 event through the ingestion pipeline",
	Long: `
Read an S3 notification (the JSON Lambda receives) from a file, or stdin with "-",
run every record through label detection and indexing, and print a summary.

Example:
  photosearch ingest --event testdata/put.json
  aws s3api ... | photosearch ingest --event -
`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestEventFile, "event", "e", "", "Path to an S3 event JSON file, or - for stdin (required)")
	_ = ingestCmd.MarkFlagRequired("event")
}

func runIngest(cmd *cobra.Command, args []string) error {
	event, err := readS3Event(ingestEventFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), config.HandlerIngest)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.newIngestHandler()
	if err != nil {
		return fmt.Errorf("failed to create ingest handler: %w", err)
	}

	result := h.Process(a.invocationContext(cmd.Context()), event)
	return printJSON(cmd.OutOrStdout(), summarizeIngest(result))
}

func readS3Event(path string, stdin io.Reader) (events.S3Event, error) {
	var event events.S3Event

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return event, fmt.Errorf("failed to read event: %w", err)
	}

	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("failed to parse S3 event: %w", err)
	}
	if len(event.Records) == 0 {
		return event, fmt.Errorf("S3 event has no records")
	}
	return event, nil
}

type recordSummary struct {
	Bucket          string   `json:"bucket"`
	Key             string   `json:"key"`
	Labels          []string `json:"labels"`
	Indexed         bool     `json:"indexed"`
	DetectionFailed bool     `json:"detectionFailed,omitempty"`
	MetadataFailed  bool     `json:"metadataFailed,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type ingestSummary struct {
	Records           []recordSummary `json:"records"`
	Indexed           int             `json:"indexed"`
	IndexFailures     int             `json:"indexFailures"`
	DetectionFailures int             `json:"detectionFailures"`
	MetadataFailures  int             `json:"metadataFailures"`
}

func summarizeIngest(result *ingest.Result) ingestSummary {
	summary := ingestSummary{
		Records:           make([]recordSummary, 0, len(result.Records)),
		Indexed:           result.Indexed,
		IndexFailures:     result.IndexFailures,
		DetectionFailures: result.DetectionFailures,
		MetadataFailures:  result.MetadataFailures,
	}
	for _, rec := range result.Records {
		rs := recordSummary{
			Bucket:          rec.Bucket,
			Key:             rec.Key,
			Labels:          rec.Labels,
			Indexed:         rec.Indexed(),
			DetectionFailed: rec.DetectionFailed,
			MetadataFailed:  rec.MetadataFailed,
		}
		if rec.IndexError != nil {
			rs.Error = rec.IndexError.Error()
		}
		summary.Records = append(summary.Records, rs)
	}
	return summary
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
