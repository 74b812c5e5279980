package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/noteseek/noteseek/internal/cache"
	"github.com/noteseek/noteseek/internal/chunker"
	"github.com/noteseek/noteseek/internal/config"
	"github.com/noteseek/noteseek/internal/embedder"
	"github.com/noteseek/noteseek/internal/engine"
	"github.com/noteseek/noteseek/internal/llm"
	"github.com/noteseek/noteseek/internal/searcher"
	"github.com/noteseek/noteseek/pkg/types"
)

var (
	flagConfig  string
	flagDocs    string
	flagVerbose bool
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "noteseek",
		Short:   "Local-first semantic search over your notes",
		Long:    "noteseek indexes markdown notes into a local embedding cache and searches them lexically, semantically, or both.",
		Version: fmt.Sprintf("%s (built %s)", version, buildTime),
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to TOML config file")
	root.PersistentFlags().StringVarP(&flagDocs, "docs", "d", "notes.json", "path to the JSON document file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newIndexCommand())
	root.AddCommand(newSearchCommand())
	root.AddCommand(newAskCommand())

	return root
}

// app owns the component graph for one command invocation. Construction
// order is cache, embedder, engine, searcher; teardown runs in reverse.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	cache    cache.EmbeddingCache
	embedder embedder.Embedder
	engine   *engine.Engine
	searcher *searcher.Searcher
	docs     []*types.Document
}

func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var c cache.EmbeddingCache
	if cfg.Cache.Enabled {
		sqliteCache, err := cache.NewSQLiteCache(cfg.Cache.Path, cache.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		c = sqliteCache
	} else {
		c = cache.NewNullCache()
	}

	emb, err := embedder.New(embedder.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.EmbeddingAPIKey(),
		MemoSize: 10000,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	eng, err := engine.New(emb, c, cfg.Embedding.PoolSize,
		engine.WithLogger(logger),
		engine.WithBatchSize(cfg.Embedding.BatchSize),
		engine.WithQueryTTL(cfg.QueryTTL()),
		engine.WithChunker(chunker.New(chunker.Config{
			MaxChunkLength: cfg.Chunking.MaxChunkLength,
			Overlap:        cfg.Chunking.Overlap,
		})),
	)
	if err != nil {
		_ = emb.Close()
		_ = c.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	docs, err := loadDocuments(flagDocs)
	if err != nil {
		_ = eng.Close()
		_ = emb.Close()
		_ = c.Close()
		return nil, err
	}

	s, err := searcher.New(searcher.StaticSource(docs), eng, c,
		searcher.WithLogger(logger),
		searcher.WithConfig(searcher.Config{
			LexicalThreshold: cfg.Search.LexicalThreshold,
			SemanticFloor:    cfg.Search.SemanticFloor,
			SemanticCap:      cfg.Search.SemanticCap,
			DebounceInterval: cfg.DebounceInterval(),
		}),
	)
	if err != nil {
		_ = eng.Close()
		_ = emb.Close()
		_ = c.Close()
		return nil, fmt.Errorf("create searcher: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		cache:    c,
		embedder: emb,
		engine:   eng,
		searcher: s,
		docs:     docs,
	}, nil
}

func (a *app) close() {
	_ = a.searcher.Close()
	_ = a.engine.Close()
	_ = a.embedder.Close()
	_ = a.cache.Close()
}

// newProvider builds the configured LLM provider, or nil when generation is
// not configured
func (a *app) newProvider() llm.Provider {
	opts := llm.Options{
		Temperature: a.cfg.LLM.Temperature,
		MaxTokens:   a.cfg.LLM.MaxTokens,
	}
	switch a.cfg.LLM.Provider {
	case llm.ProviderOpenAI:
		return llm.NewOpenAIProvider(a.cfg.LLM.BaseURL, a.cfg.LLMAPIKey(), a.cfg.LLM.Model, opts, a.logger)
	case llm.ProviderOllama:
		return llm.NewOllamaProvider(a.cfg.LLM.BaseURL, a.cfg.LLM.Model, opts, a.logger)
	default:
		return nil
	}
}

// loadDocuments reads the document set from a JSON file: an array of
// objects with id, version, title, content, tags, and notebook fields.
func loadDocuments(path string) ([]*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	var docs []*types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}

	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}
	return docs, nil
}
