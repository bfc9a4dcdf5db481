package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/server"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragd HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

// run wires the services and blocks until the context is cancelled:
// config, logger, local index, Qdrant client, selector, embedder,
// pipeline, retriever, optional generator, HTTP server.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logging.Sync(logger) //nolint:errcheck

	local, err := vectorstore.NewLocalIndex(vectorstore.LocalConfig{
		Path:       cfg.Local.Path,
		Collection: cfg.Retrieval.Collection,
		Dimension:  cfg.Embeddings.Dimension,
	}, logger)
	if err != nil {
		return fmt.Errorf("open local index: %w", err)
	}

	var remote vectorstore.Store
	if cfg.Qdrant.Enabled {
		remote, err = vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			Collection: cfg.Retrieval.Collection,
			Dimension:  cfg.Embeddings.Dimension,
			UseTLS:     cfg.Qdrant.UseTLS,
			Timeout:    cfg.Qdrant.Timeout.Duration(),
		}, logger)
		if err != nil {
			// A bad remote endpoint is not fatal; the selector settles
			// on the local index at Init.
			logger.Warn("qdrant client unavailable", zap.Error(err))
			remote = nil
		}
	}

	selector, err := vectorstore.NewSelector(remote, local, vectorstore.SelectorConfig{
		UseRemote:    cfg.Qdrant.Enabled,
		Collection:   cfg.Retrieval.Collection,
		Dimension:    cfg.Embeddings.Dimension,
		ProbeTimeout: cfg.Qdrant.ProbeTimeout.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("create store selector: %w", err)
	}
	defer selector.Close() //nolint:errcheck

	if err := selector.Init(ctx); err != nil {
		return fmt.Errorf("initialize store selector: %w", err)
	}
	if err := selector.CreateCollection(ctx, cfg.Retrieval.Collection, cfg.Embeddings.Dimension); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Embeddings.Dimension,
		BatchSize: cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}

	pipeline, err := ingest.NewPipeline(selector, embedder, ingest.Config{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		BatchSize:    cfg.Embeddings.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("create ingest pipeline: %w", err)
	}

	retriever, err := retrieval.NewService(selector, embedder, retrieval.Config{
		TopK: cfg.Retrieval.TopK,
	}, logger)
	if err != nil {
		return fmt.Errorf("create retrieval service: %w", err)
	}

	var generator *generation.Service
	if cfg.LLM.Enabled {
		generator, err = generation.NewService(generation.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey.Value(),
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("create generation service: %w", err)
		}
	}

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}, selector, pipeline, retriever, generator, logger)

	logger.Info("ragd starting",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("collection", cfg.Retrieval.Collection),
		zap.String("backend", string(selector.Backend())))

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	logger.Info("ragd shutdown complete")
	return nil
}
