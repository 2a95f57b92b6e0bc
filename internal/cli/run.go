package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/forPelevin/clipscout/internal/logger"
	"github.com/forPelevin/clipscout/internal/pipeline"
	"github.com/forPelevin/clipscout/internal/types"
	"github.com/forPelevin/clipscout/internal/usecase"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate clip candidates for a source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sourceID, userID, err := sourceAndUser(cmd)
			if err != nil {
				return err
			}
			cfg := configFromEnv()
			if err := cfg.ValidateLLM(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return withApp(cmd, cfg, 30*time.Minute, func(ctx context.Context, app *pipeline.App) error {
				res, err := app.Clips.GenerateClips(ctx, usecase.Input{SourceID: sourceID, UserID: userID})
				if err != nil {
					return err
				}
				return printJSON(cmd, generateOutput(res))
			})
		},
	}
	cmd.Flags().String("source", "", "Source id")
	cmd.Flags().String("user", "", "Owner user id")
	return cmd
}

func newTranscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <media>",
		Short: "Transcribe a local media file into a source's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("source")
			sourceID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("--source: %w", err)
			}
			absIn, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			cfg := configFromEnv()
			if err := cfg.ValidateIngest(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return withApp(cmd, cfg, 3*time.Hour, func(ctx context.Context, app *pipeline.App) error {
				res, err := app.Ingest.Transcribe(ctx, sourceID, absIn)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"source_id":        sourceID,
					"segments":         res.Segments,
					"duration_seconds": res.Duration.Seconds(),
				})
			})
		},
	}
	cmd.Flags().String("source", "", "Source id")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	sources := &cobra.Command{Use: "sources", Short: "Manage sources"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a source, optionally with an existing transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rawUser, _ := cmd.Flags().GetString("user")
			userID, err := uuid.Parse(rawUser)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			title, _ := cmd.Flags().GetString("title")
			typ, _ := cmd.Flags().GetString("type")
			url, _ := cmd.Flags().GetString("url")
			trPath, _ := cmd.Flags().GetString("transcript-file")

			src := types.Source{UserID: userID, Title: title, Type: types.SourceType(typ), URL: url}
			if !validSourceType(src.Type) {
				return fmt.Errorf("--type must be one of youtube, podcast, upload, twitch")
			}
			var tr types.Transcript
			if trPath != "" {
				if tr, err = readTranscript(trPath); err != nil {
					return err
				}
			}
			return withApp(cmd, configFromEnv(), time.Minute, func(ctx context.Context, app *pipeline.App) error {
				created, err := app.Store.CreateSource(ctx, src, tr)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"id": created.ID, "status": created.Status})
			})
		},
	}
	create.Flags().String("user", "", "Owner user id")
	create.Flags().String("title", "", "Source title")
	create.Flags().String("type", string(types.SourceUpload), "youtube, podcast, upload or twitch")
	create.Flags().String("url", "", "Original URL")
	create.Flags().String("transcript-file", "", "Transcript as plain text or JSON segments")

	sources.AddCommand(create)
	return sources
}

func newProfilesCmd() *cobra.Command {
	profiles := &cobra.Command{Use: "profiles", Short: "Manage user profiles"}

	set := &cobra.Command{
		Use:   "set",
		Short: "Create or update a user's plan and brand voice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rawUser, _ := cmd.Flags().GetString("user")
			userID, err := uuid.Parse(rawUser)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			plan, _ := cmd.Flags().GetString("plan")
			voice, _ := cmd.Flags().GetString("brand-voice")
			return withApp(cmd, configFromEnv(), time.Minute, func(ctx context.Context, app *pipeline.App) error {
				return app.Store.UpsertProfile(ctx, types.Profile{ID: userID, Plan: types.Plan(plan), BrandVoice: voice})
			})
		},
	}
	set.Flags().String("user", "", "User id")
	set.Flags().String("plan", string(types.PlanFree), "Plan name")
	set.Flags().String("brand-voice", "", "Brand voice appended to the prompt")

	profiles.AddCommand(set)
	return profiles
}

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Release sources stuck in analyzing or transcribing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stale, _ := cmd.Flags().GetDuration("stale")
			return withApp(cmd, configFromEnv(), time.Minute, func(ctx context.Context, app *pipeline.App) error {
				n, err := app.Reconcile(ctx, stale)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"reset": n})
			})
		},
	}
	cmd.Flags().Duration("stale", 15*time.Minute, "Age after which an in-progress source counts as stuck")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, configFromEnv(), 2*time.Minute, func(ctx context.Context, app *pipeline.App) error {
				return app.Migrate(ctx)
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve clip generation and review over HTTP",
		Long: `Serve clip generation and review over HTTP.

With STORE_DRIVER=memory the store lives only as long as this process, so
sources created by other commands are not visible. Use --seed-user with one
or more --seed-transcript files to create ready sources at startup; their
ids are logged and printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromEnv()
			if err := cfg.ValidateLLM(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			seedUser, _ := cmd.Flags().GetString("seed-user")
			seedFiles, _ := cmd.Flags().GetStringSlice("seed-transcript")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := pipeline.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(seedFiles) > 0 {
				seeded, err := seedSources(ctx, app, seedUser, seedFiles)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, map[string]any{"seeded": seeded}); err != nil {
					return err
				}
			}
			return app.Server().Run(ctx)
		},
	}
	cmd.Flags().String("seed-user", "", "Owner of the seeded sources")
	cmd.Flags().StringSlice("seed-transcript", nil, "Transcript file to create a ready source from (repeatable)")
	return cmd
}

type seededSource struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// seedSources creates one ready source per transcript file, titled after the
// file name.
func seedSources(ctx context.Context, app *pipeline.App, rawUser string, paths []string) ([]seededSource, error) {
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return nil, fmt.Errorf("--seed-user: %w", err)
	}
	out := make([]seededSource, 0, len(paths))
	for _, p := range paths {
		tr, err := readTranscript(p)
		if err != nil {
			return nil, err
		}
		if tr.Empty() {
			return nil, fmt.Errorf("seed transcript %s is empty", p)
		}
		title := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		src, err := app.Store.CreateSource(ctx, types.Source{UserID: userID, Title: title, Type: types.SourceUpload}, tr)
		if err != nil {
			return nil, err
		}
		log := app.Log()
		log.Info().Str("source_id", src.ID.String()).Str("file", p).Msg("seeded source")
		out = append(out, seededSource{ID: src.ID, Title: title})
	}
	return out, nil
}

func withApp(cmd *cobra.Command, cfg pipeline.Config, timeout time.Duration, fn func(context.Context, *pipeline.App) error) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	app, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func configFromEnv() pipeline.Config {
	return pipeline.Config{
		StoreDriver: getenvDefault("STORE_DRIVER", pipeline.DriverPostgres),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		PGMaxConns:  int32(getenvInt("PG_MAX_CONNS", 0)),

		LLMProvider: strings.ToLower(getenvDefault("LLM_PROVIDER", pipeline.ProviderOpenAI)),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getenvDefault("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		OpenRouterAPIKey:       os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:        getenvDefault("OPENROUTER_MODEL", "openai/gpt-4o"),
		OpenRouterBaseURL:      getenvDefault("OPENROUTER_BASE_URL", "https://openrouter.ai"),
		OpenRouterAllowedHosts: splitList(os.Getenv("OPENROUTER_ALLOWED_HOSTS")),

		QuotaPlansFile: os.Getenv("QUOTA_PLANS_FILE"),

		CacheDir:    getenvDefault("CACHE_DIR", ".cache"),
		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		WhisperBin:   getenvDefault("WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel: getenvDefault("WHISPER_MODEL", ".cache/models/ggml-base.bin"),

		HTTPAddr: getenvDefault("HTTP_ADDR", ":8080"),

		Log: logger.New(logger.FromEnv()),
	}
}

func sourceAndUser(cmd *cobra.Command) (uuid.UUID, uuid.UUID, error) {
	rawSource, _ := cmd.Flags().GetString("source")
	rawUser, _ := cmd.Flags().GetString("user")
	sourceID, err := uuid.Parse(rawSource)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--source: %w", err)
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--user: %w", err)
	}
	return sourceID, userID, nil
}

type clipOutput struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Hook        string    `json:"hook"`
	StartTime   float64   `json:"start_time"`
	EndTime     float64   `json:"end_time"`
	Duration    float64   `json:"duration_seconds"`
	ViralScore  int       `json:"viral_score"`
	ScoreBucket string    `json:"score_bucket"`
	Status      string    `json:"status"`
	Hashtags    []string  `json:"hashtags"`
}

func toClipOutput(c types.Clip) clipOutput {
	return clipOutput{
		ID:          c.ID,
		Title:       c.Title,
		Hook:        c.Hook,
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		Duration:    c.DurationSeconds,
		ViralScore:  c.ViralScore,
		ScoreBucket: string(c.ScoreBucket),
		Status:      string(c.Status),
		Hashtags:    c.Hashtags,
	}
}

func generateOutput(res usecase.Result) map[string]any {
	clips := make([]clipOutput, 0, len(res.Clips))
	for _, c := range res.Clips {
		clips = append(clips, toClipOutput(c))
	}
	out := map[string]any{
		"clips_generated": res.ClipsGenerated,
		"clips_inserted":  res.ClipsInserted,
		"dropped":         res.Dropped,
		"clips":           clips,
	}
	if res.InsertErr != nil {
		out["insert_error"] = res.InsertErr.Error()
	}
	if res.StatusErr != nil {
		out["status_error"] = res.StatusErr.Error()
	}
	return out
}

// readTranscript accepts a whisper style JSON document, a bare JSON array of
// segments, or plain text.
func readTranscript(path string) (types.Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	trimmed := strings.TrimSpace(string(b))

	var tr types.Transcript
	switch {
	case strings.HasPrefix(trimmed, "{"):
		if err := json.Unmarshal([]byte(trimmed), &tr); err != nil {
			return types.Transcript{}, fmt.Errorf("parse transcript: %w", err)
		}
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal([]byte(trimmed), &tr.Segments); err != nil {
			return types.Transcript{}, fmt.Errorf("parse transcript segments: %w", err)
		}
	default:
		tr.Text = trimmed
	}
	return tr, nil
}

func validSourceType(t types.SourceType) bool {
	switch t {
	case types.SourceYouTube, types.SourcePodcast, types.SourceUpload, types.SourceTwitch:
		return true
	default:
		return false
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
