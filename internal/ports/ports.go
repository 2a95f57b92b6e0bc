package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/clipscout/internal/domain/prompt"
	"github.com/forPelevin/clipscout/internal/types"
)

// LLM returns the raw completion text for a composed prompt. Failures are
// provider errors.
type LLM interface {
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}

type TranscriptProvider interface {
	Transcript(ctx context.Context, sourceID uuid.UUID) (types.Transcript, error)
}

type QuotaChecker interface {
	Check(ctx context.Context, userID uuid.UUID) error
}

// Store is the persistence the clip generation flow needs. Status writes
// must be rejected when the lifecycle does not allow the transition.
type Store interface {
	GetSource(ctx context.Context, id uuid.UUID) (types.Source, error)
	UpdateSourceStatus(ctx context.Context, id uuid.UUID, to types.SourceStatus) error
	InsertClips(ctx context.Context, clips []types.Clip) (int, error)
	IncrementUsage(ctx context.Context, userID uuid.UUID, period string, delta int) error
	Usage(ctx context.Context, userID uuid.UUID, period string) (int, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (types.Profile, error)
}

// ClipStore backs clip review. Listings are ordered best score first.
type ClipStore interface {
	ListClips(ctx context.Context, f types.ClipFilter) ([]types.Clip, error)
	GetClip(ctx context.Context, id uuid.UUID) (types.Clip, error)
	UpdateClipStatus(ctx context.Context, id uuid.UUID, to types.ClipStatus) error
	DeleteClip(ctx context.Context, id uuid.UUID) error
}

// IngestStore covers source creation, transcript storage and maintenance.
type IngestStore interface {
	CreateSource(ctx context.Context, src types.Source, tr types.Transcript) (types.Source, error)
	SaveTranscript(ctx context.Context, sourceID uuid.UUID, tr types.Transcript, duration time.Duration) error
	UpsertProfile(ctx context.Context, p types.Profile) error
	ResetStuckSources(ctx context.Context, olderThan time.Time) (int, error)
}

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMedia, outWav string) error
	ProbeDuration(ctx context.Context, inMedia string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}
