package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ca-srg/photosearch/internal/config"
)

const (
	lambdaRuntimeAPIEnv = "AWS_LAMBDA_RUNTIME_API"
	handlerSelectorEnv  = "PHOTOSEARCH_HANDLER"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "photosearch",
	Short: "photosearch - label-based image search on S3, Rekognition, Lex and OpenSearch",
	Long: `photosearch indexes images uploaded to S3 with labels detected by Amazon Rekognition
and labels supplied in object metadata, and answers free-text searches by resolving
keywords through an Amazon Lex V2 bot and querying OpenSearch.

The same binary runs both Lambda functions (see "photosearch lambda") and a set of
local tools for replaying events, searching, backfilling and serving a development API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFile)
	},
}

func Execute() error {
	args, err := lambdaDefaultArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if args != nil {
		rootCmd.SetArgs(args)
	}
	return rootCmd.Execute()
}

// lambdaDefaultArgs selects "lambda <handler>" when the binary is started by the Lambda
// runtime without arguments, so a single bootstrap serves both functions.
func lambdaDefaultArgs(args []string) ([]string, error) {
	if len(args) > 0 || os.Getenv(lambdaRuntimeAPIEnv) == "" {
		return nil, nil
	}
	handler := os.Getenv(handlerSelectorEnv)
	switch handler {
	case config.HandlerIngest, config.HandlerQuery:
		return []string{"lambda", handler}, nil
	default:
		return nil, fmt.Errorf("%s must be %q or %q, got %q", handlerSelectorEnv, config.HandlerIngest, config.HandlerQuery, handler)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before reading configuration")

	rootCmd.AddCommand(lambdaCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(serveCmd)
}
