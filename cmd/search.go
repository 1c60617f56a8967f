package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spf13/cobra"

	"github.com/ca-srg/photosearch/internal/config"
	"github.com/ca-srg/photosearch/internal/query"
)

var searchText string

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run the query handler locally",
	Long: `
Send free text through the same pipeline the query function runs (Lex V2 keyword
resolution, one OpenSearch multi_match per keyword) and print the response body.

Example:
  photosearch search -q "cats and dogs"
`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchText, "q", "q", "", "Free-text search query (required)")
	_ = searchCmd.MarkFlagRequired("q")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), config.HandlerQuery)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.newQueryHandler()
	if err != nil {
		return fmt.Errorf("failed to create query handler: %w", err)
	}

	resp, err := h.Handle(a.invocationContext(cmd.Context()), searchRequest(searchText))
	if err != nil {
		return err
	}
	return writeSearchResponse(cmd.OutOrStdout(), resp)
}

func searchRequest(text string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		Path:                  "/search",
		QueryStringParameters: map[string]string{query.QueryParam: text},
	}
}

func writeSearchResponse(w io.Writer, resp events.APIGatewayProxyResponse) error {
	if _, err := fmt.Fprintln(w, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}
	return nil
}
