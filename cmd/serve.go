package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/config"
	"github.com/ca-srg/photosearch/internal/server"
)

var (
	serveHost     string
	servePort     int
	serveNoUpload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local development API",
	Long: `
The serve command starts a local HTTP server that stands in for API Gateway:
- GET  /search?q=...            runs the query handler
- PUT  /upload/{bucket}/{key}   stores an image in S3 with X-Amz-Meta-Customlabels
                                (bodies sent as "image/png;base64" are decoded)
- GET  /metrics                 Prometheus metrics
- GET  /healthz                 204 when the OpenSearch cluster answers, 503 otherwise

Uploaded images are indexed by the ingest function once S3 notifies it.

Example:
  photosearch serve                # localhost:8080
  photosearch serve --port 9090
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind the server")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to bind the server")
	serveCmd.Flags().BoolVar(&serveNoUpload, "no-upload", false, "Disable the upload route")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), config.HandlerQuery)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.newQueryHandler()
	if err != nil {
		return fmt.Errorf("failed to create query handler: %w", err)
	}

	var uploader server.Uploader
	if !serveNoUpload {
		store, err := a.newStore()
		if err != nil {
			return err
		}
		uploader = store
	}

	serverConfig := server.DefaultServerConfig()
	serverConfig.Host = serveHost
	serverConfig.Port = servePort
	serverConfig.Health = a.opensearch

	srv, err := server.NewServer(serverConfig, h, uploader, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return srv.Run(ctx)
}
