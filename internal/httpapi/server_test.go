package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/logger"
	"github.com/forPelevin/clipscout/internal/types"
	"github.com/forPelevin/clipscout/internal/usecase"
)

type fakeGenerator struct {
	res usecase.Result
	err error
	got usecase.Input
}

func (f *fakeGenerator) GenerateClips(_ context.Context, in usecase.Input) (usecase.Result, error) {
	f.got = in
	return f.res, f.err
}

type body struct {
	Status int          `json:"status_code"`
	Error  *apperr.Wire `json:"error"`
	Data   struct {
		Success        bool       `json:"success"`
		ClipsGenerated int        `json:"clipsGenerated"`
		StatusFailed   bool       `json:"statusUpdateFailed"`
		Clips          []clipView `json:"clips"`
	} `json:"data"`
}

func do(t *testing.T, gen Generator, path, user string) (*httptest.ResponseRecorder, body) {
	t.Helper()
	srv := NewServer(":0", gen, nil, logger.Nop())
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var b body
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, b
}

func TestGenerate_OK(t *testing.T) {
	src, user := uuid.New(), uuid.New()
	gen := &fakeGenerator{res: usecase.Result{
		ClipsGenerated: 1,
		ClipsInserted:  1,
		Clips: []types.Clip{{
			ID:          uuid.New(),
			Candidate:   types.Candidate{Title: "t", StartTime: 10, EndTime: 65, DurationSeconds: 55, ViralScore: 100, Hashtags: []string{"ai"}},
			ScoreBucket: types.BucketHigh,
			Status:      types.ClipSuggested,
		}},
	}}

	rec, b := do(t, gen, "/v1/sources/"+src.String()+"/clips", user.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gen.got.SourceID != src || gen.got.UserID != user {
		t.Fatalf("unexpected input: %+v", gen.got)
	}
	if !b.Data.Success || b.Data.ClipsGenerated != 1 || len(b.Data.Clips) != 1 {
		t.Fatalf("unexpected body: %+v", b)
	}
	c := b.Data.Clips[0]
	if c.ViralScore != 100 || c.DurationSeconds != 55 || c.ScoreBucket != "high" || c.Status != "suggested" {
		t.Fatalf("unexpected clip: %+v", c)
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	src := uuid.New().String()
	cases := []struct {
		name   string
		err    error
		want   int
		wantCd string
	}{
		{"quota", apperr.ErrQuotaExceeded, http.StatusForbidden, "quota_exceeded"},
		{"missing transcript", apperr.ErrMissingTranscript, http.StatusBadRequest, "input"},
		{"not found", apperr.New(apperr.CodeNotFound, "source not found"), http.StatusNotFound, "not_found"},
		{"busy", apperr.New(apperr.CodeConflict, "illegal"), http.StatusConflict, "conflict"},
		{"parse", apperr.New(apperr.CodeResponseParse, "bad json"), http.StatusBadGateway, "response_parse"},
		{"provider", apperr.New(apperr.CodeProvider, "401"), http.StatusBadGateway, "provider"},
		{"persistence", apperr.New(apperr.CodePersistence, "db down"), http.StatusInternalServerError, "persistence"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, b := do(t, &fakeGenerator{err: tc.err}, "/v1/sources/"+src+"/clips", uuid.New().String())
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if b.Error == nil || b.Error.Code != tc.wantCd {
				t.Fatalf("unexpected error body: %+v", b.Error)
			}
		})
	}
}

func TestGenerate_BadInput(t *testing.T) {
	gen := &fakeGenerator{}
	rec, _ := do(t, gen, "/v1/sources/"+uuid.New().String()+"/clips", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user: expected 400, got %d", rec.Code)
	}
	rec, _ = do(t, gen, "/v1/sources/not-a-uuid/clips", uuid.New().String())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad source id: expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := NewServer("", &fakeGenerator{}, nil, logger.Nop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGenerate_StatusFailureStillReturnsClips(t *testing.T) {
	gen := &fakeGenerator{res: usecase.Result{
		ClipsGenerated: 1,
		ClipsInserted:  1,
		Clips:          []types.Clip{{ID: uuid.New(), Status: types.ClipSuggested}},
		StatusErr:      apperr.New(apperr.CodePersistence, "mark source ready"),
	}}

	rec, b := do(t, gen, "/v1/sources/"+uuid.NewString()+"/clips", uuid.NewString())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !b.Data.Success || !b.Data.StatusFailed || len(b.Data.Clips) != 1 {
		t.Fatalf("unexpected body: %+v", b)
	}
}
