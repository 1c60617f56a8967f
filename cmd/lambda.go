package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/ca-srg/photosearch/internal/config"
	"github.com/ca-srg/photosearch/internal/ingest"
	"github.com/ca-srg/photosearch/internal/query"
)

// startLambda is replaced in tests.
var startLambda = lambda.Start

var lambdaCmd = &cobra.Command{
	Use:       "lambda <ingest|query>",
	Short:     "Run one of the functions under the AWS Lambda runtime",
	ValidArgs: []string{config.HandlerIngest, config.HandlerQuery},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `
Start the Lambda runtime loop for one handler:
- ingest: S3 ObjectCreated notifications -> Rekognition + metadata labels -> OpenSearch
- query:  API Gateway GET /search?q=... -> Lex V2 keywords -> OpenSearch multi_match

Clients are created once per execution environment and reused across invocations.
Inside Lambda the binary can also be started without arguments; PHOTOSEARCH_HANDLER
then selects the handler.
`,
	RunE: runLambda,
}

func runLambda(cmd *cobra.Command, args []string) error {
	handlerName := args[0]

	a, err := newApp(cmd.Context(), handlerName)
	if err != nil {
		return err
	}
	defer a.close()

	switch handlerName {
	case config.HandlerIngest:
		h, err := a.newIngestHandler()
		if err != nil {
			return fmt.Errorf("failed to create ingest handler: %w", err)
		}
		startLambda(ingestInvocation(a, h))
	case config.HandlerQuery:
		h, err := a.newQueryHandler()
		if err != nil {
			return fmt.Errorf("failed to create query handler: %w", err)
		}
		startLambda(queryInvocation(a, h))
	}
	return nil
}

func ingestInvocation(a *app, h *ingest.Handler) func(context.Context, events.S3Event) error {
	return func(ctx context.Context, event events.S3Event) error {
		ctx, done := a.telemetry.StartInvocation(a.invocationContext(ctx))
		defer done()
		return h.Handle(ctx, event)
	}
}

func queryInvocation(a *app, h *query.Handler) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		ctx, done := a.telemetry.StartInvocation(a.invocationContext(ctx))
		defer done()
		return h.Handle(ctx, req)
	}
}
