package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/domain/highlights"
	"github.com/forPelevin/clipscout/internal/domain/prompt"
	"github.com/forPelevin/clipscout/internal/domain/transcript"
	"github.com/forPelevin/clipscout/internal/ports"
	"github.com/forPelevin/clipscout/internal/quota"
	"github.com/forPelevin/clipscout/internal/types"
)

type Deps struct {
	Store       ports.Store
	Transcripts ports.TranscriptProvider
	LLM         ports.LLM
	Quota       ports.QuotaChecker
	Log         zerolog.Logger

	// Now and NewID default to time.Now and uuid.New.
	Now   func() time.Time
	NewID func() uuid.UUID
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.New
	}
	return Usecase{d: d}
}

type Input struct {
	SourceID uuid.UUID
	UserID   uuid.UUID
}

type Result struct {
	Clips          []types.Clip
	ClipsGenerated int
	ClipsInserted  int
	// Dropped counts candidates rejected by validation or ranking.
	Dropped int
	// InsertFailed is set when the ranked clips could not be stored. The
	// call still succeeds and InsertErr carries the cause.
	InsertFailed bool
	InsertErr    error
	// StatusErr is set when the source could not be returned to ready after
	// the clips were handled. The call still succeeds; the reconcile sweep
	// releases the source later.
	StatusErr error
}

// GenerateClips runs one clip generation for a source. The source is held in
// analyzing for the duration of the model call and is always returned to
// ready afterwards, whatever happens in between.
func (u Usecase) GenerateClips(ctx context.Context, in Input) (Result, error) {
	log := u.d.Log.With().
		Str("source_id", in.SourceID.String()).
		Str("user_id", in.UserID.String()).
		Logger()

	if err := u.d.Quota.Check(ctx, in.UserID); err != nil {
		return Result{}, err
	}

	src, err := u.d.Store.GetSource(ctx, in.SourceID)
	if err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodePersistence, "load source")
	}
	if src.UserID != in.UserID {
		return Result{}, apperr.Newf(apperr.CodeNotFound, "source %s not found", in.SourceID)
	}
	tr, err := u.d.Transcripts.Transcript(ctx, in.SourceID)
	if err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodePersistence, "load transcript")
	}
	text, err := transcript.Canonical(tr)
	if err != nil {
		return Result{}, err
	}
	brandVoice, err := u.brandVoice(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}

	if err := u.d.Store.UpdateSourceStatus(ctx, in.SourceID, types.SourceAnalyzing); err != nil {
		return Result{}, apperr.Ensure(err, apperr.CodePersistence, "mark source analyzing")
	}
	log.Info().Msg("analyzing source")

	ranked, dropped, err := u.selectCandidates(ctx, text, brandVoice)
	if err != nil {
		if rerr := u.markReady(ctx, in.SourceID); rerr != nil {
			log.Error().Err(rerr).Msg("failed to restore source status")
		}
		return Result{}, err
	}

	res := Result{
		ClipsGenerated: len(ranked),
		Dropped:        dropped,
		Clips:          u.buildClips(src, ranked),
	}

	if len(res.Clips) > 0 {
		n, err := u.d.Store.InsertClips(ctx, res.Clips)
		if err != nil {
			res.InsertFailed = true
			res.InsertErr = apperr.Ensure(err, apperr.CodePersistence, "insert clips")
			log.Error().Err(err).Int("clips", len(res.Clips)).Msg("failed to insert clips")
		}
		res.ClipsInserted = n
	}

	if res.ClipsInserted > 0 {
		period := quota.Period(u.d.Now())
		if err := u.d.Store.IncrementUsage(ctx, in.UserID, period, res.ClipsInserted); err != nil {
			log.Error().Err(err).Str("period", period).Msg("failed to increment usage")
		}
	}

	if err := u.markReady(ctx, in.SourceID); err != nil {
		res.StatusErr = apperr.Ensure(err, apperr.CodePersistence, "mark source ready")
		log.Error().Err(err).Msg("failed to mark source ready")
	}

	log.Info().
		Int("clips", res.ClipsGenerated).
		Int("inserted", res.ClipsInserted).
		Int("dropped", res.Dropped).
		Msg("clips generated")
	return res, nil
}

// selectCandidates asks the model for candidates and reduces its answer to
// the ranked set.
func (u Usecase) selectCandidates(ctx context.Context, text, brandVoice string) ([]types.Candidate, int, error) {
	raw, err := u.d.LLM.Complete(ctx, prompt.Compose(text, brandVoice))
	if err != nil {
		return nil, 0, apperr.Ensure(err, apperr.CodeProvider, "language model call failed")
	}

	v, err := highlights.Validate(raw)
	if err != nil {
		return nil, 0, err
	}
	r := highlights.Rank(v.Candidates)
	return r.Candidates, v.Dropped + r.Dropped, nil
}

func (u Usecase) brandVoice(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := u.d.Store.GetProfile(ctx, userID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return "", nil
		}
		return "", apperr.Ensure(err, apperr.CodePersistence, "load profile")
	}
	return p.BrandVoice, nil
}

func (u Usecase) buildClips(src types.Source, ranked []types.Candidate) []types.Clip {
	now := u.d.Now().UTC()
	out := make([]types.Clip, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, types.Clip{
			ID:          u.d.NewID(),
			SourceID:    src.ID,
			UserID:      src.UserID,
			Candidate:   c,
			ScoreBucket: highlights.Bucket(c.ViralScore),
			Status:      types.ClipSuggested,
			CreatedAt:   now,
		})
	}
	return out
}

// markReady returns an analyzing source to ready. It runs even when ctx is
// already cancelled.
func (u Usecase) markReady(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return u.d.Store.UpdateSourceStatus(ctx, id, types.SourceReady)
}
