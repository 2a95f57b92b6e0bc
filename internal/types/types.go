package types

import (
	"time"

	"github.com/google/uuid"
)

// Transcript is what the ingestion flow stores for a source. Either form may
// be empty; Segments win over Text when both are present.
type Transcript struct {
	Text     string    `json:"text,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

func (t Transcript) Empty() bool {
	return t.Text == "" && len(t.Segments) == 0
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Token is one timestamped line of a normalized transcript.
type Token struct {
	Text  string
	Start float64
	End   float64
}

// RawCandidate is a single untrusted clip proposal as decoded from the model.
type RawCandidate = map[string]any

// Candidate is a clip proposal that passed validation.
type Candidate struct {
	Title            string
	Hook             string
	StartTime        float64 `validate:"gte=0"`
	EndTime          float64 `validate:"gtfield=StartTime"`
	ViralScore       int     `validate:"min=1,max=100"`
	WhyViral         string
	CaptionTikTok    string   `validate:"notblank"`
	CaptionInstagram string   `validate:"notblank"`
	CaptionYouTube   string   `validate:"notblank"`
	Hashtags         []string `validate:"max=15,dive,required,alphanum,lowercase"`
	DurationSeconds  float64
}

type ScoreBucket string

const (
	BucketHigh   ScoreBucket = "high"
	BucketMedium ScoreBucket = "medium"
	BucketLow    ScoreBucket = "low"
)

type ClipStatus string

const (
	ClipSuggested ClipStatus = "suggested"
	ClipApproved  ClipStatus = "approved"
	ClipExported  ClipStatus = "exported"
	ClipPosted    ClipStatus = "posted"
)

// Clip is the persisted form of a ranked candidate.
type Clip struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	UserID   uuid.UUID
	Candidate
	ScoreBucket ScoreBucket
	Status      ClipStatus
	CreatedAt   time.Time
}

// ClipFilter narrows a clip listing. Zero fields match everything.
type ClipFilter struct {
	UserID   uuid.UUID
	SourceID uuid.UUID
	Status   ClipStatus
}

type SourceStatus string

const (
	SourcePending      SourceStatus = "pending"
	SourceTranscribing SourceStatus = "transcribing"
	SourceAnalyzing    SourceStatus = "analyzing"
	SourceReady        SourceStatus = "ready"
	SourceError        SourceStatus = "error"
)

type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourcePodcast SourceType = "podcast"
	SourceUpload  SourceType = "upload"
	SourceTwitch  SourceType = "twitch"
)

type Source struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Title           string
	Type            SourceType
	URL             string
	DurationSeconds float64
	Status          SourceStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type Profile struct {
	ID         uuid.UUID
	Plan       Plan
	BrandVoice string
}
