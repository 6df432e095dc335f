package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/acquire"
	"github.com/fyrsmithlabs/codematrix/internal/config"
	"github.com/fyrsmithlabs/codematrix/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/codematrix/internal/http"
	"github.com/fyrsmithlabs/codematrix/internal/index"
	"github.com/fyrsmithlabs/codematrix/internal/llm"
	"github.com/fyrsmithlabs/codematrix/internal/pipeline"
	"github.com/fyrsmithlabs/codematrix/internal/query"
	"github.com/fyrsmithlabs/codematrix/internal/remote"
	"github.com/fyrsmithlabs/codematrix/internal/repository"
	"github.com/fyrsmithlabs/codematrix/internal/secrets"
	"github.com/fyrsmithlabs/codematrix/internal/state"
	"github.com/fyrsmithlabs/codematrix/internal/vectorstore"
)

// services holds the wired service graph.
type services struct {
	tracker  *state.Tracker
	registry *index.Registry
	pipeline *pipeline.Pipeline
	engine   *query.Engine
	server   *httpserver.Server
	provider embeddings.Provider
	logger   *zap.Logger
}

// initServices builds every component from cfg. Missing AI credentials do
// not prevent startup; the affected operations fail with a descriptive
// error instead, and /health reports what is configured.
func initServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
	trackerOpts := []state.Option{state.WithLogger(logger.Named("state"))}
	if cfg.State.Persist {
		trackerOpts = append(trackerOpts, state.WithStore(state.NewFileStore(cfg.State.Path)))
	}
	tracker := state.NewTracker(trackerOpts...)
	registry := index.NewRegistry(logger.Named("index"))

	var embedder embeddings.Embedder
	provider, err := embeddings.NewProvider(embeddings.FromSettings(cfg.Embeddings), logger.Named("embeddings"))
	if err != nil {
		if !errors.Is(err, embeddings.ErrInvalidConfig) {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
		logger.Warn("embeddings unavailable; indexing will fail until configured", zap.Error(err))
		embedder = unavailable{err: err}
	} else {
		embedder = provider
	}

	var completer llm.Completer
	client, err := llm.New(llm.FromSettings(cfg.LLM), logger.Named("llm"))
	if err != nil {
		if !errors.Is(err, llm.ErrInvalidConfig) {
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
		logger.Warn("llm unavailable; questions will return an error until configured", zap.Error(err))
		completer = unavailable{err: err}
	} else {
		completer = client
	}

	scrubber, err := secrets.FromSettings(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("creating secret scrubber: %w", err)
	}

	loader, err := repository.NewLangchainLoader(repository.LoaderConfigFromSettings(cfg.Indexing), logger.Named("loader"))
	if err != nil {
		return nil, fmt.Errorf("creating loader: %w", err)
	}
	builder := vectorstore.NewChromemBuilder(vectorstore.ChromemConfig{Concurrency: cfg.Indexing.EmbedConcurrency}, logger.Named("vectorstore"))
	indexer := repository.NewIndexer(repository.FromSettings(cfg.Indexing), loader, embedder, builder, scrubber, logger.Named("indexer"))

	fetcher := acquire.NewGitFetcher(cfg.Repository.AuthUsername, cfg.Repository.AuthToken)
	acquirer := acquire.New(acquire.FromSettings(cfg.Repository), fetcher, logger.Named("acquire"))

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(logger.Named("pipeline"))}
	if cfg.GitHub.Enabled {
		describer, err := remote.NewGitHubDescriber(ctx, cfg.GitHub, logger.Named("github"))
		if err != nil {
			return nil, fmt.Errorf("creating github describer: %w", err)
		}
		pipelineOpts = append(pipelineOpts, pipeline.WithDescriber(describer))
	}
	pl := pipeline.New(tracker, registry, acquirer, indexer, pipelineOpts...)

	engine, err := query.New(query.FromSettings(cfg.Query), tracker, registry, embedder, completer, logger.Named("query"))
	if err != nil {
		pl.Close()
		return nil, fmt.Errorf("creating query engine: %w", err)
	}

	server, err := httpserver.NewServer(httpserver.Deps{
		Pipeline:  pl,
		Tracker:   tracker,
		Registry:  registry,
		Engine:    engine,
		Providers: cfg.ConfiguredProviders,
	}, logger.Named("http"), httpserver.FromSettings(cfg.Server))
	if err != nil {
		pl.Close()
		return nil, fmt.Errorf("creating http server: %w", err)
	}

	return &services{
		tracker:  tracker,
		registry: registry,
		pipeline: pl,
		engine:   engine,
		server:   server,
		provider: provider,
		logger:   logger,
	}, nil
}

// Close releases indexes and the embedding provider. Call after the
// pipeline has shut down.
func (s *services) Close() {
	s.pipeline.Close()
	s.registry.Clear()
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Warn("closing embedding provider", zap.Error(err))
		}
	}
}

// unavailable stands in for an AI backend whose configuration is missing.
type unavailable struct {
	err error
}

func (u unavailable) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, u.err
}

func (u unavailable) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, u.err
}

func (u unavailable) Complete(context.Context, string, string) (string, error) {
	return "", u.err
}
