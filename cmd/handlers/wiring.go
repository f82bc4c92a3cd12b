package handlers

import (
	"clarity/internal/config"
	"clarity/internal/llm"
	"clarity/internal/matcher"
	"clarity/internal/persistence"
	"clarity/internal/sources"
	"clarity/internal/topics"
	"clarity/internal/vectorstore"
	"fmt"
)

// engine bundles the wired application components behind one constructor so
// every command handler opens the stack the same way.
type engine struct {
	cfg      *config.Config
	db       persistence.Database
	index    vectorstore.VectorStore
	embedder llm.Embedder
	matcher  *matcher.Matcher
	topics   *topics.Manager
	sources  *sources.Manager
}

// newEngine opens the configured database backend and wires the managers.
// Postgres gets pgvector similarity; SQLite gets the brute-force scan.
func newEngine() (*engine, error) {
	cfg := config.Get()

	var (
		db    persistence.Database
		index vectorstore.VectorStore
	)
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := persistence.NewPostgresDB(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		db = pg
		index = vectorstore.NewPgVectorAdapter(pg.DB())
	default:
		sq, err := persistence.NewSQLiteDB(cfg.App.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		db = sq
		index = vectorstore.NewScanAdapter(sq.Sources())
	}

	embedder, err := llm.NewClient(
		llm.WithModel(cfg.AI.Gemini.EmbeddingModel),
		llm.WithDimensions(cfg.AI.Gemini.EmbeddingDimensions),
		llm.WithTimeout(cfg.GeminiTimeout()),
		llm.WithRateLimit(cfg.AI.Gemini.RequestsPerSecond),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	m := matcher.New(index, db.Associations())
	matchOpts := matcher.Options{
		InitialThreshold: cfg.Matcher.InitialThreshold,
		MaxResults:       cfg.Matcher.MaxResults,
	}

	return &engine{
		cfg:      cfg,
		db:       db,
		index:    index,
		embedder: embedder,
		matcher:  m,
		topics: topics.NewManager(db, embedder, m, topics.Options{
			Match:           matchOpts,
			BackfillWorkers: cfg.Matcher.BackfillWorkers,
		}),
		sources: sources.NewManager(db, embedder),
	}, nil
}

func (e *engine) matchOptions() matcher.Options {
	return matcher.Options{
		InitialThreshold: e.cfg.Matcher.InitialThreshold,
		MaxResults:       e.cfg.Matcher.MaxResults,
	}
}

func (e *engine) Close() {
	_ = e.db.Close()
}
