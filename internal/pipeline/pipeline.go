package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/clipscout/internal/httpapi"
	"github.com/forPelevin/clipscout/internal/ingest"
	"github.com/forPelevin/clipscout/internal/ports"
	"github.com/forPelevin/clipscout/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipscout/internal/ports/adapters/memory"
	"github.com/forPelevin/clipscout/internal/ports/adapters/openai"
	"github.com/forPelevin/clipscout/internal/ports/adapters/openrouter"
	"github.com/forPelevin/clipscout/internal/ports/adapters/postgres"
	"github.com/forPelevin/clipscout/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/clipscout/internal/quota"
	"github.com/forPelevin/clipscout/internal/review"
	"github.com/forPelevin/clipscout/internal/usecase"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

type Config struct {
	StoreDriver string
	DatabaseURL string
	PGMaxConns  int32

	LLMProvider string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string

	// QuotaPlansFile optionally overrides the per-plan monthly limits.
	QuotaPlansFile string

	// CacheDir is the base directory for local artifacts (audio, transcripts, etc.).
	// If empty, defaults to ".cache".
	CacheDir string

	FFmpegPath  string
	FFprobePath string

	WhisperBin   string
	WhisperModel string

	HTTPAddr string

	Log zerolog.Logger
}

// Validate checks what every command needs: a usable store.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.StoreDriver, DriverPostgres, DriverMemory)
	}
	if c.PGMaxConns < 0 {
		return errors.New("PG_MAX_CONNS must be >= 0")
	}
	return nil
}

// ValidateLLM checks the language model settings for commands that call it.
func (c Config) ValidateLLM() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required (set it in .env)")
		}
		return nil
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return errors.New("OPENROUTER_API_KEY is required (set it in .env)")
		}
		return openrouter.ValidateBaseURL(
			c.OpenRouterBaseURL,
			c.OpenRouterAllowedHosts,
		)
	default:
		return fmt.Errorf("unknown LLM provider %q (want %s or %s)", c.LLMProvider, ProviderOpenAI, ProviderOpenRouter)
	}
}

// ValidateIngest checks the speech-to-text tooling for transcription.
func (c Config) ValidateIngest() error {
	if c.WhisperModel == "" {
		return errors.New("whisper model path is required")
	}
	if c.WhisperBin == "" {
		return errors.New("whisper binary path is required")
	}
	return nil
}

// Store is everything the commands need from persistence.
type Store interface {
	ports.Store
	ports.ClipStore
	ports.TranscriptProvider
	ports.IngestStore
}

// App is the wired application.
type App struct {
	Store  Store
	Clips  usecase.Usecase
	Ingest ingest.Service
	Review review.Service

	cfg   Config
	close func()
}

// Open connects the store and wires the use cases from cfg.
func Open(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	limits := quota.DefaultLimits()
	if cfg.QuotaPlansFile != "" {
		l, err := quota.LoadLimits(cfg.QuotaPlansFile)
		if err != nil {
			return nil, err
		}
		limits = l
	}

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver == DriverMemory {
		cfg.Log.Warn().Msg("memory store: data lives only as long as this process")
	}

	app := &App{
		Store: store,
		Clips: usecase.New(usecase.Deps{
			Store:       store,
			Transcripts: store,
			LLM:         newLLM(cfg),
			Quota:       quota.NewChecker(store, limits, time.Now),
			Log:         cfg.Log.With().Str("component", "clips").Logger(),
		}),
		Ingest: ingest.New(ingest.Deps{
			Store:    store,
			Video:    ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath),
			ASR:      whispercpp.New(cfg.WhisperBin, cfg.WhisperModel),
			Log:      cfg.Log.With().Str("component", "ingest").Logger(),
			CacheDir: cfg.CacheDir,
		}),
		Review: review.New(review.Deps{
			Store: store,
			Log:   cfg.Log.With().Str("component", "review").Logger(),
		}),
		cfg:   cfg,
		close: closeFn,
	}
	return app, nil
}

func (a *App) Log() zerolog.Logger { return a.cfg.Log }

func (a *App) Close() {
	if a != nil && a.close != nil {
		a.close()
	}
}

// Migrate applies the schema when the store has one.
func (a *App) Migrate(ctx context.Context) error {
	m, ok := a.Store.(interface {
		Migrate(ctx context.Context) error
	})
	if !ok {
		return nil
	}
	return m.Migrate(ctx)
}

// Reconcile releases sources stuck in analyzing or transcribing for longer
// than stale.
func (a *App) Reconcile(ctx context.Context, stale time.Duration) (int, error) {
	if stale <= 0 {
		return 0, errors.New("stale threshold must be > 0")
	}
	n, err := a.Store.ResetStuckSources(ctx, time.Now().Add(-stale))
	if err != nil {
		return 0, err
	}
	a.cfg.Log.Info().Int("sources", n).Dur("stale", stale).Msg("reconciled stuck sources")
	return n, nil
}

// Server builds the HTTP entry point over the clip use cases.
func (a *App) Server() *httpapi.Server {
	return httpapi.NewServer(a.cfg.HTTPAddr, a.Clips, a.Review, a.cfg.Log.With().Str("component", "http").Logger())
}

func openStore(ctx context.Context, cfg Config) (Store, func(), error) {
	if cfg.StoreDriver == DriverMemory {
		return memory.NewStore(), func() {}, nil
	}
	s, err := postgres.Open(ctx, postgres.Config{URL: cfg.DatabaseURL, MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func newLLM(cfg Config) ports.LLM {
	if strings.EqualFold(cfg.LLMProvider, ProviderOpenRouter) {
		return openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL)
	}
	return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.LLM = (*openrouter.Adapter)(nil)
var _ ports.LLM = (*openai.Adapter)(nil)
var _ ports.QuotaChecker = (*quota.Checker)(nil)
var _ Store = (*memory.Store)(nil)
var _ Store = (*postgres.Store)(nil)
var _ httpapi.Generator = usecase.Usecase{}
var _ httpapi.Reviewer = review.Service{}
