package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/config"
	"github.com/lazypower/hebbian/internal/embed"
	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/logging"
	"github.com/lazypower/hebbian/internal/secrets"
	"github.com/lazypower/hebbian/internal/store"
)

// app holds what every command needs: configuration, a logger and the
// opened store.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *store.DB
	scrubber *secrets.Scrubber
	engOpts  []engine.Option
}

// openApp loads configuration, builds the logger and opens the store.
// dbPath and configPath override the defaults when non-empty.
func openApp(configPath, dbPath string) (*app, error) {
	a, err := loadApp(configPath, dbPath)
	if err != nil {
		return nil, err
	}
	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// loadApp loads configuration and builds the logger without touching the
// store.
func loadApp(configPath, dbPath string) (*app, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.engOpts = []engine.Option{
		engine.WithParams(engine.ParamsFromConfig(*cfg)),
		engine.WithLogger(logger),
	}
	return a, nil
}

// openStore opens the database and, when privacy.scrub_secrets is set,
// the secret scrubber every engine uses.
func (a *app) openStore() error {
	if err := a.loadScrubber(); err != nil {
		return err
	}
	if a.scrubber != nil {
		a.engOpts = append(a.engOpts, engine.WithScrubber(a.scrubber))
	}

	path := a.cfg.Store.Path
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(path, storeOptions(a.cfg, a.logger)...)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return nil
}

// loadScrubber compiles the gitleaks rule set once, if scrubbing is on.
func (a *app) loadScrubber() error {
	if !a.cfg.Privacy.ScrubSecrets || a.scrubber != nil {
		return nil
	}
	s, err := secrets.New()
	if err != nil {
		return fmt.Errorf("init secret scrubber: %w", err)
	}
	a.scrubber = s
	return nil
}

// loadDotenv reads ~/.hebbian/.env into the environment so HEBBIAN_*
// overrides can live next to the database. Variables already set win.
func loadDotenv() error {
	dir, err := config.DefaultDir()
	if err != nil {
		return nil
	}
	err = godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func storeOptions(cfg *config.Config, logger *zap.Logger) []store.Option {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return []store.Option{
		store.WithBusyTimeout(ms(cfg.Store.BusyTimeoutMs)),
		store.WithRetry(store.RetryPolicy{
			MaxTries: cfg.Store.MaxRetries,
			Initial:  ms(cfg.Store.RetryInitialMs),
			Max:      ms(cfg.Store.RetryMaxMs),
		}),
		store.WithLogger(logger),
	}
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Sync()
}

// engine returns an engine for session, or for a fresh session id when
// session is empty.
func (a *app) engine(session string) *engine.Engine {
	if session == "" {
		session = uuid.NewString()
	}
	return engine.New(a.db, session, a.engOpts...)
}

// embedder builds the configured embedder. An unreachable Ollama falls
// back to TF-IDF over the current graph.
func (a *app) embedder(ctx context.Context, eng *engine.Engine) (embed.Embedder, error) {
	ec := a.cfg.Embedding
	provider := ec.Provider
	if provider == "ollama" {
		o := embed.NewOllama(ec.OllamaURL, ec.Model, ec.RequestsPerSecond)
		if o.Probe(ctx) {
			return o, nil
		}
		a.logger.Warn("ollama unreachable, using tfidf", zap.String("url", ec.OllamaURL))
		provider = "tfidf"
	}

	var corpus []string
	if provider == "tfidf" {
		var err error
		if corpus, err = eng.Corpus(ctx); err != nil {
			return nil, err
		}
	}
	return embed.New(provider, ec.OllamaURL, ec.Model, ec.RequestsPerSecond, corpus)
}

// withApp opens the app from the global flags, runs fn and closes it.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(flagConfig, flagDB)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
