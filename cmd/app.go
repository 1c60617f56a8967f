package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/config"
	"github.com/ca-srg/photosearch/internal/ingest"
	"github.com/ca-srg/photosearch/internal/lex"
	"github.com/ca-srg/photosearch/internal/logger"
	"github.com/ca-srg/photosearch/internal/metrics"
	"github.com/ca-srg/photosearch/internal/observability"
	"github.com/ca-srg/photosearch/internal/opensearch"
	"github.com/ca-srg/photosearch/internal/query"
	"github.com/ca-srg/photosearch/internal/rekognition"
	"github.com/ca-srg/photosearch/internal/secrets"
	"github.com/ca-srg/photosearch/internal/storage"
	"github.com/ca-srg/photosearch/internal/types"
)

// app holds the process-wide configuration and clients. It is built once per process and
// shared by every invocation.
type app struct {
	cfg        *types.Config
	logger     *zap.Logger
	telemetry  *observability.Telemetry
	awsConfig  aws.Config
	opensearch *opensearch.Client
}

// newApp loads configuration for handler and builds the shared clients.
func newApp(ctx context.Context, handler string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if err := config.Validate(cfg, handler); err != nil {
		return nil, err
	}

	telemetry, err := observability.Init(ctx, observability.OptionsFromConfig(cfg, handler), log)
	if err != nil {
		log.Warn("observability disabled", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		log.Warn("metric instruments unavailable", zap.Error(err))
	}

	awsCfg, err := config.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := secrets.NewResolver(awsCfg, log).ResolveOpenSearchCredentials(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve OpenSearch credentials: %w", err)
	}

	osConfig, err := opensearch.NewConfigFromTypes(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid OpenSearch configuration: %w", err)
	}
	osClient, err := opensearch.NewClient(osConfig, awsCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}

	log.Debug("application initialized",
		zap.String("handler", handler),
		zap.String("index", cfg.OpenSearchIndex))

	return &app{
		cfg:        cfg,
		logger:     log,
		telemetry:  telemetry,
		awsConfig:  awsCfg,
		opensearch: osClient,
	}, nil
}

func (a *app) newStore() (*storage.Store, error) {
	return storage.NewStore(s3.NewFromConfig(a.awsConfig), a.cfg.CustomLabelsMetadataKey, a.logger)
}

func (a *app) newIngestHandler() (*ingest.Handler, error) {
	store, err := a.newStore()
	if err != nil {
		return nil, err
	}
	detector := rekognition.NewDetector(a.awsConfig, rekognition.Options{
		MaxLabels:     a.cfg.RekognitionMaxLabels,
		MinConfidence: a.cfg.RekognitionMinConfidence,
	}, a.logger)

	return ingest.NewHandler(ingest.ServiceConfig{
		Detector:  detector,
		Metadata:  store,
		Indexer:   a.opensearch,
		IndexName: a.cfg.OpenSearchIndex,
		Logger:    a.logger,
	})
}

func (a *app) newQueryHandler() (*query.Handler, error) {
	resolver, err := lex.NewResolver(a.awsConfig, lex.BotConfig{
		BotID:      a.cfg.LexBotID,
		BotAliasID: a.cfg.LexBotAliasID,
		LocaleID:   a.cfg.LexLocaleID,
		SlotName:   a.cfg.LexSlotName,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	return query.NewHandler(query.Config{
		Resolver:  resolver,
		Searcher:  a.opensearch,
		IndexName: a.cfg.OpenSearchIndex,
		MaxHits:   a.cfg.SearchMaxHits,
		Logger:    a.logger,
	})
}

// invocationContext attaches a logger carrying the Lambda request id, when there is one.
func (a *app) invocationContext(ctx context.Context) context.Context {
	log := a.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.With(zap.String("aws_request_id", lc.AwsRequestID))
	}
	return logger.ContextWithLogger(ctx, log)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), observability.FlushTimeout)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
