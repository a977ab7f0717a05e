package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/config"
	"github.com/fabfab/codemind/database"
	"github.com/fabfab/codemind/embeddings"
	"github.com/fabfab/codemind/events"
	"github.com/fabfab/codemind/ingestion"
	"github.com/fabfab/codemind/llm"
	"github.com/fabfab/codemind/retrieval"
)

// backends holds the external connections a command opened. Optional
// backends that failed to connect are left nil and logged.
type backends struct {
	pool      *pgxpool.Pool
	driver    neo4j.DriverWithContext
	rdb       *redis.Client
	publisher *events.NATSPublisher
	embedder  embeddings.Embedder
}

type connectOptions struct {
	requireCorpus bool
	redis         bool
	nats          bool
}

func connect(ctx context.Context, cfg config.Config, logger *zap.Logger, opts connectOptions) (*backends, error) {
	b := &backends{}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}
	b.embedder = embedder

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		if opts.requireCorpus {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		logger.Warn("postgres unavailable, document corpus disabled", zap.Error(err))
	} else {
		b.pool = pool
	}

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Warn("neo4j unavailable, knowledge graph disabled", zap.Error(err))
	} else {
		b.driver = driver
	}

	if opts.redis && cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, sessions will not be persisted", zap.Error(err))
		} else {
			b.rdb = rdb
		}
	}

	if opts.nats && cfg.NatsURL != "" {
		publisher, err := events.NewNATSPublisher(cfg.NatsURL, cfg.NatsSubject, logger)
		if err != nil {
			logger.Warn("nats unavailable, edit events disabled", zap.Error(err))
		} else {
			b.publisher = publisher
		}
	}

	return b, nil
}

func (b *backends) Close(ctx context.Context) {
	if b.publisher != nil {
		b.publisher.Close()
	}
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.driver != nil {
		_ = b.driver.Close(ctx)
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// sources builds the shared fan-out over the primary corpus and the graph.
func (b *backends) sources(cfg config.Config, logger *zap.Logger) (*retrieval.FanOut, *retrieval.GraphSource) {
	var list []retrieval.Source
	if b.pool != nil {
		list = append(list, retrieval.NewPostgresSource(b.pool, b.embedder, cfg.Chat.SearchLimit))
	}
	var graph *retrieval.GraphSource
	if b.driver != nil {
		graph = retrieval.NewGraphSource(b.driver, cfg.Chat.SearchLimit)
		list = append(list, graph)
	}
	return retrieval.NewFanOut(retrieval.Options{
		K:          cfg.Chat.FusionK,
		MaxResults: cfg.Chat.MaxResults,
		Logger:     logger,
	}, list...), graph
}

func (b *backends) ingestion(cfg config.Config, logger *zap.Logger) *ingestion.Service {
	return ingestion.NewService(b.pool, b.driver, b.embedder, logger, cfg.Embeddings.Dimension)
}

// chatService wires the model, classifier and sources into a chat service.
func (b *backends) chatService(cfg config.Config, logger *zap.Logger) (*chat.Service, *retrieval.FanOut, llm.Catalog, error) {
	model, err := llm.NewClient(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("llm setup: %w", err)
	}
	catalog := llm.NewCatalog(cfg)
	fanOut, graph := b.sources(cfg, logger)

	opts := chat.Options{
		Model:      model,
		Classifier: llm.NewPromptClassifier(model),
		Sources:    fanOut,
		Catalog:    catalog,
		Logger:     logger,
	}
	if graph != nil {
		opts.Insights = graph
	}
	if b.publisher != nil {
		opts.Publisher = b.publisher
	}
	return chat.NewService(opts), fanOut, catalog, nil
}
