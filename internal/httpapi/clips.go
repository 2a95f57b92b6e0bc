package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/review"
	"github.com/forPelevin/clipscout/internal/types"
)

// Reviewer is the clip review use case.
type Reviewer interface {
	List(ctx context.Context, userID, sourceID uuid.UUID, status types.ClipStatus) ([]types.Clip, error)
	Approve(ctx context.Context, userID, clipID uuid.UUID) error
	MarkPosted(ctx context.Context, userID, clipID uuid.UUID) error
	Dismiss(ctx context.Context, userID, clipID uuid.UUID) error
	Export(ctx context.Context, userID, sourceID uuid.UUID) ([]review.ExportItem, error)
}

// GET /v1/clips?source=<uuid>&status=<status>
func (h handler) listClips(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sourceID, err := optionalID(r.URL.Query().Get("source"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	clips, err := h.rev.List(r.Context(), userID, sourceID, types.ClipStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]clipView, 0, len(clips))
	for _, c := range clips {
		views = append(views, toView(c))
	}
	h.ok(w, r, map[string]any{"clips": views})
}

// POST /v1/clips/export?source=<uuid>
func (h handler) exportClips(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sourceID, err := optionalID(r.URL.Query().Get("source"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items, err := h.rev.Export(r.Context(), userID, sourceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, map[string]any{"clips": items})
}

func (h handler) approveClip(w http.ResponseWriter, r *http.Request) {
	h.clipAction(w, r, h.rev.Approve)
}

func (h handler) postedClip(w http.ResponseWriter, r *http.Request) {
	h.clipAction(w, r, h.rev.MarkPosted)
}

func (h handler) dismissClip(w http.ResponseWriter, r *http.Request) {
	h.clipAction(w, r, h.rev.Dismiss)
}

func (h handler) clipAction(w http.ResponseWriter, r *http.Request, act func(context.Context, uuid.UUID, uuid.UUID) error) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	clipID, err := uuid.Parse(chi.URLParam(r, "clipID"))
	if err != nil {
		h.fail(w, r, apperr.New(apperr.CodeInput, "invalid clip id"))
		return
	}
	if err := act(r.Context(), userID, clipID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, map[string]string{"id": clipID.String()})
}

func (h handler) ok(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, Envelope{
		Status:    http.StatusOK,
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
	})
}

func optionalID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.CodeInput, "invalid source id")
	}
	return id, nil
}
