package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/logger"
	"github.com/forPelevin/clipscout/internal/ports/adapters/memory"
	"github.com/forPelevin/clipscout/internal/types"
)

type fakeVideoTool struct {
	extractErr error
	extracted  []string
}

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	f.extracted = append(f.extracted, outWav)
	return f.extractErr
}

func (f *fakeVideoTool) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	return 95 * time.Second, nil
}

type fakeASR struct {
	tr  types.Transcript
	err error
}

func (f fakeASR) Transcribe(_ context.Context, _, _ string) (types.Transcript, error) {
	return f.tr, f.err
}

func setup(t *testing.T, video *fakeVideoTool, asr fakeASR) (Service, *memory.Store, types.Source, string) {
	t.Helper()
	tmp := t.TempDir()
	media := filepath.Join(tmp, "in.mp4")
	if err := os.WriteFile(media, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	store := memory.NewStore()
	src, err := store.CreateSource(context.Background(), types.Source{UserID: uuid.New(), Type: types.SourceUpload}, types.Transcript{})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	svc := New(Deps{
		Store:    store,
		Video:    video,
		ASR:      asr,
		Log:      logger.Nop(),
		CacheDir: filepath.Join(tmp, "cache"),
	})
	return svc, store, src, media
}

func TestTranscribe_StoresTranscript(t *testing.T) {
	video := &fakeVideoTool{}
	tr := types.Transcript{Text: "hi there", Segments: []types.Segment{{Start: 0, End: 2, Text: "hi there"}}}
	svc, store, src, media := setup(t, video, fakeASR{tr: tr})

	res, err := svc.Transcribe(context.Background(), src.ID, media)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Segments != 1 || res.Duration != 95*time.Second {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, _ := store.Transcript(context.Background(), src.ID)
	if got.Text != "hi there" || len(got.Segments) != 1 {
		t.Fatalf("unexpected stored transcript: %+v", got)
	}
	cur, _ := store.GetSource(context.Background(), src.ID)
	if cur.Status != types.SourceReady || cur.DurationSeconds != 95 {
		t.Fatalf("unexpected source: %+v", cur)
	}
	hist := store.History(src.ID)
	want := []types.SourceStatus{types.SourcePending, types.SourceTranscribing, types.SourceReady}
	for i := range want {
		if i >= len(hist) || hist[i] != want[i] {
			t.Fatalf("history = %v, want %v", hist, want)
		}
	}
	if len(video.extracted) != 1 || filepath.Base(video.extracted[0]) != "audio.wav" {
		t.Fatalf("unexpected wav path: %v", video.extracted)
	}
}

func TestTranscribe_FailuresMarkError(t *testing.T) {
	cases := []struct {
		name     string
		video    *fakeVideoTool
		asr      fakeASR
		wantCode apperr.Code
	}{
		{name: "ffmpeg fails", video: &fakeVideoTool{extractErr: errors.New("exit 1")}, wantCode: apperr.CodeProvider},
		{name: "whisper fails", video: &fakeVideoTool{}, asr: fakeASR{err: errors.New("model missing")}, wantCode: apperr.CodeProvider},
		{name: "silence", video: &fakeVideoTool{}, asr: fakeASR{}, wantCode: apperr.CodeInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, src, media := setup(t, tc.video, tc.asr)

			_, err := svc.Transcribe(context.Background(), src.ID, media)
			if !apperr.IsCode(err, tc.wantCode) {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
			cur, _ := store.GetSource(context.Background(), src.ID)
			if cur.Status != types.SourceError {
				t.Fatalf("expected error status, got %s", cur.Status)
			}
		})
	}
}

func TestTranscribe_RetryAfterError(t *testing.T) {
	video := &fakeVideoTool{extractErr: errors.New("exit 1")}
	svc, store, src, media := setup(t, video, fakeASR{tr: types.Transcript{Text: "ok"}})

	if _, err := svc.Transcribe(context.Background(), src.ID, media); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	video.extractErr = nil
	if _, err := svc.Transcribe(context.Background(), src.ID, media); err != nil {
		t.Fatalf("retry: %v", err)
	}
	cur, _ := store.GetSource(context.Background(), src.ID)
	if cur.Status != types.SourceReady {
		t.Fatalf("expected ready after retry, got %s", cur.Status)
	}
}

func TestTranscribe_MissingMedia(t *testing.T) {
	svc, store, src, _ := setup(t, &fakeVideoTool{}, fakeASR{})

	_, err := svc.Transcribe(context.Background(), src.ID, filepath.Join(t.TempDir(), "nope.mp4"))
	if !apperr.IsCode(err, apperr.CodeInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	if len(store.History(src.ID)) != 1 {
		t.Fatalf("status must not change for missing media")
	}
}

func TestTranscribe_BusySourceIsConflict(t *testing.T) {
	svc, store, _, media := setup(t, &fakeVideoTool{}, fakeASR{tr: types.Transcript{Text: "x"}})
	ready, _ := store.CreateSource(context.Background(), types.Source{}, types.Transcript{Text: "x"})
	_ = store.UpdateSourceStatus(context.Background(), ready.ID, types.SourceAnalyzing)

	_, err := svc.Transcribe(context.Background(), ready.ID, media)
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
