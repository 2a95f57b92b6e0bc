// Package ingest acquires a transcript for a source from a local media file.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/ports"
	"github.com/forPelevin/clipscout/internal/types"
)

// Store is the slice of persistence ingest needs.
type Store interface {
	GetSource(ctx context.Context, id uuid.UUID) (types.Source, error)
	UpdateSourceStatus(ctx context.Context, id uuid.UUID, to types.SourceStatus) error
	SaveTranscript(ctx context.Context, sourceID uuid.UUID, tr types.Transcript, duration time.Duration) error
}

type Deps struct {
	Store Store
	Video ports.VideoTool
	ASR   ports.ASR
	Log   zerolog.Logger

	// CacheDir holds per-source work files. Defaults to ".cache".
	CacheDir string
}

type Service struct{ d Deps }

func New(d Deps) Service {
	if d.CacheDir == "" {
		d.CacheDir = ".cache"
	}
	return Service{d: d}
}

type Result struct {
	Segments int
	Duration time.Duration
}

// Transcribe moves the source through transcribing and leaves it ready with
// a stored transcript, or in error when any step fails.
func (s Service) Transcribe(ctx context.Context, sourceID uuid.UUID, mediaPath string) (Result, error) {
	log := s.d.Log.With().Str("source_id", sourceID.String()).Logger()

	if _, err := os.Stat(mediaPath); err != nil {
		return Result{}, apperr.Wrapf(err, apperr.CodeInput, "media file %s", mediaPath)
	}
	if _, err := s.d.Store.GetSource(ctx, sourceID); err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodePersistence, "load source")
	}
	if err := s.d.Store.UpdateSourceStatus(ctx, sourceID, types.SourceTranscribing); err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodePersistence, "mark source transcribing")
	}
	log.Info().Str("media", mediaPath).Msg("transcribing source")

	res, err := s.transcribe(ctx, sourceID, mediaPath)
	if err != nil {
		if serr := s.setStatus(ctx, sourceID, types.SourceError); serr != nil {
			log.Error().Err(serr).Msg("failed to mark source errored")
		}
		return Result{}, err
	}
	if err := s.setStatus(ctx, sourceID, types.SourceReady); err != nil {
		return res, apperr.Ensure(err, apperr.CodePersistence, "mark source ready")
	}
	log.Info().Int("segments", res.Segments).Dur("duration", res.Duration).Msg("transcript stored")
	return res, nil
}

func (s Service) transcribe(ctx context.Context, sourceID uuid.UUID, mediaPath string) (Result, error) {
	workDir := filepath.Join(s.d.CacheDir, "runs", sourceID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, apperr.Wrap(err, apperr.CodeUnknown, "prepare work dir")
	}

	wav := filepath.Join(workDir, "audio.wav")
	if err := s.d.Video.ExtractAudioMono16k(ctx, mediaPath, wav); err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodeProvider, "extract audio")
	}
	dur, err := s.d.Video.ProbeDuration(ctx, mediaPath)
	if err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodeProvider, "probe duration")
	}

	tr, err := s.d.ASR.Transcribe(ctx, wav, workDir)
	if err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodeProvider, "speech-to-text failed")
	}
	if tr.Empty() {
		return Result{}, apperr.New(apperr.CodeInput, "no speech detected")
	}

	if err := s.d.Store.SaveTranscript(ctx, sourceID, tr, dur); err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodePersistence, "save transcript")
	}
	return Result{Segments: len(tr.Segments), Duration: dur}, nil
}

func (s Service) setStatus(ctx context.Context, id uuid.UUID, to types.SourceStatus) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return s.d.Store.UpdateSourceStatus(ctx, id, to)
}
