// Package httpapi exposes clip generation and review over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
	"github.com/forPelevin/clipscout/internal/usecase"
)

// UserHeader carries the caller's user id. Authentication happens in front
// of this service.
const UserHeader = "X-User-ID"

// Generator is the clip generation use case.
type Generator interface {
	GenerateClips(ctx context.Context, in usecase.Input) (usecase.Result, error)
}

// Server is a thin wrapper over chi + stdlib http.Server
type Server struct {
	addr string
	mux  *chi.Mux
	srv  *http.Server
	log  zerolog.Logger
}

func NewServer(addr string, gen Generator, rev Reviewer, log zerolog.Logger) *Server {
	if addr == "" {
		addr = ":8080"
	}
	m := chi.NewRouter()
	m.Use(middleware.RequestID)
	m.Use(middleware.Recoverer)

	h := handler{gen: gen, rev: rev, log: log}
	m.Get("/healthz", h.health)
	m.Route("/v1", func(r chi.Router) {
		r.Post("/sources/{sourceID}/clips", h.generate)
		r.Get("/clips", h.listClips)
		r.Post("/clips/export", h.exportClips)
		r.Post("/clips/{clipID}/approve", h.approveClip)
		r.Post("/clips/{clipID}/posted", h.postedClip)
		r.Delete("/clips/{clipID}", h.dismissClip)
	})

	return &Server{
		addr: addr,
		mux:  m,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed mux
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

type handler struct {
	gen Generator
	rev Reviewer
	log zerolog.Logger
}

// Envelope is the response body for every endpoint
type Envelope struct {
	Status    int          `json:"status_code"`
	Error     *apperr.Wire `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Data      any          `json:"data,omitempty"`
}

type generateResponse struct {
	Success        bool       `json:"success"`
	ClipsGenerated int        `json:"clipsGenerated"`
	ClipsInserted  int        `json:"clipsInserted"`
	InsertFailed   bool       `json:"insertFailed"`
	StatusFailed   bool       `json:"statusUpdateFailed"`
	Dropped        int        `json:"dropped"`
	Clips          []clipView `json:"clips"`
}

type clipView struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Hook             string   `json:"hook"`
	StartTime        float64  `json:"start_time"`
	EndTime          float64  `json:"end_time"`
	DurationSeconds  float64  `json:"duration_seconds"`
	ViralScore       int      `json:"viral_score"`
	ScoreBucket      string   `json:"score_bucket"`
	WhyViral         string   `json:"why_viral"`
	CaptionTikTok    string   `json:"caption_tiktok"`
	CaptionInstagram string   `json:"caption_instagram"`
	CaptionYouTube   string   `json:"caption_youtube"`
	Hashtags         []string `json:"hashtags"`
	Status           string   `json:"status"`
}

func toView(c types.Clip) clipView {
	return clipView{
		ID:               c.ID.String(),
		Title:            c.Title,
		Hook:             c.Hook,
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
		DurationSeconds:  c.DurationSeconds,
		ViralScore:       c.ViralScore,
		ScoreBucket:      string(c.ScoreBucket),
		WhyViral:         c.WhyViral,
		CaptionTikTok:    c.CaptionTikTok,
		CaptionInstagram: c.CaptionInstagram,
		CaptionYouTube:   c.CaptionYouTube,
		Hashtags:         c.Hashtags,
		Status:           string(c.Status),
	}
}

func (h handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Status: http.StatusOK, Data: map[string]string{"status": "ok"}})
}

func (h handler) generate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		h.fail(w, r, apperr.New(apperr.CodeInput, "invalid source id"))
		return
	}

	res, err := h.gen.GenerateClips(r.Context(), usecase.Input{SourceID: sourceID, UserID: userID})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := generateResponse{
		Success:        true,
		ClipsGenerated: res.ClipsGenerated,
		ClipsInserted:  res.ClipsInserted,
		InsertFailed:   res.InsertFailed,
		StatusFailed:   res.StatusErr != nil,
		Dropped:        res.Dropped,
		Clips:          make([]clipView, 0, len(res.Clips)),
	}
	for _, c := range res.Clips {
		out.Clips = append(out.Clips, toView(c))
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status:    http.StatusOK,
		RequestID: middleware.GetReqID(r.Context()),
		Data:      out,
	})
}

func callerID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserHeader)))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.CodeInput, "missing or invalid "+UserHeader+" header")
	}
	return id, nil
}

func (h handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, wire := apperr.HTTP(err)
	ev := h.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.log.Error()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")

	writeJSON(w, status, Envelope{
		Status:    status,
		Error:     &wire,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
