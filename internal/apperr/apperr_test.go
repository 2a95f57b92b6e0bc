package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTP_MapsCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"missing transcript", ErrMissingTranscript, http.StatusBadRequest},
		{"quota", ErrQuotaExceeded, http.StatusForbidden},
		{"not found", New(CodeNotFound, "source not found"), http.StatusNotFound},
		{"conflict", New(CodeConflict, "bad transition"), http.StatusConflict},
		{"parse", New(CodeResponseParse, "bad json"), http.StatusBadGateway},
		{"provider", Wrap(errors.New("dial tcp"), CodeProvider, "llm call"), http.StatusBadGateway},
		{"persistence", New(CodePersistence, "insert"), http.StatusInternalServerError},
		{"foreign", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := HTTP(tt.err)
			if got != tt.want {
				t.Fatalf("HTTP(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestSentinelSurvivesOpAndWrapping(t *testing.T) {
	err := fmt.Errorf("generate: %w", WithOp(ErrQuotaExceeded, "quota.Check"))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected errors.Is to match sentinel through WithOp, got %v", err)
	}
	if errors.Is(err, ErrMissingTranscript) {
		t.Fatalf("unexpected match with a different sentinel")
	}
	if CodeOf(err) != CodeQuotaExceeded {
		t.Fatalf("CodeOf = %v", CodeOf(err))
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(CodeProvider, "x")) || !Retryable(New(CodeResponseParse, "x")) {
		t.Fatalf("provider and parse errors must be retryable")
	}
	if Retryable(ErrQuotaExceeded) || Retryable(errors.New("x")) {
		t.Fatalf("quota and foreign errors must not be retryable")
	}
}

func TestEnsure_KeepsExistingCode(t *testing.T) {
	in := New(CodeNotFound, "missing")
	if got := Ensure(in, CodePersistence, "store"); CodeOf(got) != CodeNotFound {
		t.Fatalf("expected code to be kept, got %v", CodeOf(got))
	}
	if got := Ensure(errors.New("io"), CodePersistence, "store"); CodeOf(got) != CodePersistence {
		t.Fatalf("expected foreign error to be wrapped, got %v", CodeOf(got))
	}
	if Ensure(nil, CodePersistence, "store") != nil {
		t.Fatalf("expected nil passthrough")
	}
}
