// Package review lets a user work through generated clips: list, approve,
// dismiss, export and mark as posted.
package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/domain/lifecycle"
	"github.com/forPelevin/clipscout/internal/ports"
	"github.com/forPelevin/clipscout/internal/types"
)

type Deps struct {
	Store ports.ClipStore
	Log   zerolog.Logger
}

type Service struct{ d Deps }

func New(d Deps) Service { return Service{d: d} }

// ExportItem is the portable form of an approved clip.
type ExportItem struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Hook            string    `json:"hook"`
	StartTime       float64   `json:"start_time"`
	EndTime         float64   `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	ViralScore      int       `json:"viral_score"`
	Captions        Captions  `json:"captions"`
	Hashtags        []string  `json:"hashtags"`
}

type Captions struct {
	TikTok    string `json:"tiktok"`
	Instagram string `json:"instagram"`
	YouTube   string `json:"youtube"`
}

// List returns the user's clips, optionally narrowed to one source and one
// status, best first.
func (s Service) List(ctx context.Context, userID, sourceID uuid.UUID, status types.ClipStatus) ([]types.Clip, error) {
	if status != "" && !lifecycle.ValidClip(status) {
		return nil, apperr.Newf(apperr.CodeInput, "unknown clip status %q", status)
	}
	clips, err := s.d.Store.ListClips(ctx, types.ClipFilter{UserID: userID, SourceID: sourceID, Status: status})
	if err != nil {
		return nil, apperr.Ensure(err, apperr.CodePersistence, "list clips")
	}
	return clips, nil
}

func (s Service) Approve(ctx context.Context, userID, clipID uuid.UUID) error {
	return s.advance(ctx, userID, clipID, types.ClipApproved)
}

func (s Service) MarkPosted(ctx context.Context, userID, clipID uuid.UUID) error {
	return s.advance(ctx, userID, clipID, types.ClipPosted)
}

// Dismiss deletes a clip the user does not want.
func (s Service) Dismiss(ctx context.Context, userID, clipID uuid.UUID) error {
	if _, err := s.owned(ctx, userID, clipID); err != nil {
		return err
	}
	if err := s.d.Store.DeleteClip(ctx, clipID); err != nil {
		return apperr.Ensure(err, apperr.CodePersistence, "delete clip")
	}
	s.d.Log.Info().Str("clip_id", clipID.String()).Msg("clip dismissed")
	return nil
}

// Export returns every approved or already exported clip of the user (of
// one source when sourceID is set) and marks the approved ones exported.
// A clip that fails to move is still exported; the failure is logged.
func (s Service) Export(ctx context.Context, userID, sourceID uuid.UUID) ([]ExportItem, error) {
	clips, err := s.List(ctx, userID, sourceID, "")
	if err != nil {
		return nil, err
	}

	out := make([]ExportItem, 0, len(clips))
	for _, c := range clips {
		if c.Status != types.ClipApproved && c.Status != types.ClipExported {
			continue
		}
		out = append(out, toExport(c))
		if c.Status != types.ClipApproved {
			continue
		}
		if err := s.d.Store.UpdateClipStatus(ctx, c.ID, types.ClipExported); err != nil {
			s.d.Log.Error().Err(err).Str("clip_id", c.ID.String()).Msg("failed to mark clip exported")
		}
	}
	return out, nil
}

func (s Service) advance(ctx context.Context, userID, clipID uuid.UUID, to types.ClipStatus) error {
	if _, err := s.owned(ctx, userID, clipID); err != nil {
		return err
	}
	if err := s.d.Store.UpdateClipStatus(ctx, clipID, to); err != nil {
		return apperr.Ensure(err, apperr.CodePersistence, "update clip status")
	}
	s.d.Log.Info().Str("clip_id", clipID.String()).Str("status", string(to)).Msg("clip status updated")
	return nil
}

// owned loads a clip and hides clips of other users behind NotFound.
func (s Service) owned(ctx context.Context, userID, clipID uuid.UUID) (types.Clip, error) {
	c, err := s.d.Store.GetClip(ctx, clipID)
	if err != nil {
		return types.Clip{}, apperr.Ensure(err, apperr.CodePersistence, "load clip")
	}
	if c.UserID != userID {
		return types.Clip{}, apperr.Newf(apperr.CodeNotFound, "clip %s not found", clipID)
	}
	return c, nil
}

func toExport(c types.Clip) ExportItem {
	tags := c.Hashtags
	if tags == nil {
		tags = []string{}
	}
	return ExportItem{
		ID:              c.ID,
		Title:           c.Title,
		Hook:            c.Hook,
		StartTime:       c.StartTime,
		EndTime:         c.EndTime,
		DurationSeconds: c.DurationSeconds,
		ViralScore:      c.ViralScore,
		Captions: Captions{
			TikTok:    c.CaptionTikTok,
			Instagram: c.CaptionInstagram,
			YouTube:   c.CaptionYouTube,
		},
		Hashtags: tags,
	}
}
