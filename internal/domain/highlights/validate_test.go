package highlights

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
)

func rawClip(overrides map[string]any) map[string]any {
	m := map[string]any{
		"title":             "The one habit",
		"hook":              "Nobody tells you this",
		"start_time":        10.0,
		"end_time":          55.0,
		"viral_score":       80,
		"why_viral":         "Strong contrarian take",
		"caption_tiktok":    "wait for it 🔥",
		"caption_instagram": "A habit that changed everything.",
		"caption_youtube":   "The one habit nobody talks about",
		"hashtags":          []any{"habits", "productivity"},
	}
	for k, v := range overrides {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	return m
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestValidate_TenWithThreeMalformed(t *testing.T) {
	var items []any
	for i := 0; i < 7; i++ {
		items = append(items, rawClip(map[string]any{"start_time": float64(i * 100), "end_time": float64(i*100 + 40)}))
	}
	items = append(items,
		rawClip(map[string]any{"end_time": 5.0}),             // end before start
		rawClip(map[string]any{"caption_youtube": nil}),      // missing key
		rawClip(map[string]any{"viral_score": "very viral"}), // non-numeric score
	)

	res, err := Validate(mustJSON(t, items))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 7 {
		t.Fatalf("expected 7 candidates, got %d", len(res.Candidates))
	}
	if res.Dropped != 3 {
		t.Fatalf("expected 3 dropped, got %d", res.Dropped)
	}
}

func TestValidate_DropsRules(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]any
		wantKeep bool
	}{
		{"well formed", nil, true},
		{"end equals start", map[string]any{"start_time": 20.0, "end_time": 20.0}, false},
		{"end before start", map[string]any{"start_time": 30.0, "end_time": 20.0}, false},
		{"missing title", map[string]any{"title": nil}, false},
		{"missing hashtags", map[string]any{"hashtags": nil}, false},
		{"title not a string", map[string]any{"title": 42}, false},
		{"empty caption", map[string]any{"caption_tiktok": "   "}, false},
		{"caption not a string", map[string]any{"caption_instagram": []any{"x"}}, false},
		{"non numeric start", map[string]any{"start_time": "soon"}, false},
		{"numeric strings repaired", map[string]any{"start_time": "12.5", "end_time": " 40 ", "viral_score": "77"}, true},
		{"negative start repaired", map[string]any{"start_time": -3.0, "end_time": 30.0}, true},
		{"hashtags as object", map[string]any{"hashtags": map[string]any{"a": 1}}, false},
		{"empty title allowed", map[string]any{"title": ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Validate(mustJSON(t, []any{rawClip(tt.override)}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := len(res.Candidates) == 1; got != tt.wantKeep {
				t.Fatalf("kept = %v, want %v (dropped=%d)", got, tt.wantKeep, res.Dropped)
			}
		})
	}
}

func TestValidate_Repairs(t *testing.T) {
	in := rawClip(map[string]any{
		"start_time":  -2.0,
		"end_time":    "62",
		"viral_score": 150.4,
		"hashtags":    []any{"#AI", "ai", "Deep-Work", "", 7, "naïve"},
	})
	res, err := Validate(mustJSON(t, []any{in}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.StartTime != 0 || c.EndTime != 62 || c.DurationSeconds != 62 {
		t.Fatalf("unexpected range: %+v", c)
	}
	if c.ViralScore != 100 {
		t.Fatalf("expected score clamped to 100, got %d", c.ViralScore)
	}
	want := []string{"ai", "deepwork", "nave"}
	if !reflect.DeepEqual(c.Hashtags, want) {
		t.Fatalf("hashtags = %v, want %v", c.Hashtags, want)
	}
	if c.CaptionTikTok != "wait for it 🔥" {
		t.Fatalf("caption must pass through verbatim, got %q", c.CaptionTikTok)
	}
}

func TestValidate_HashtagsCappedAndStringForm(t *testing.T) {
	var tags []any
	for i := 0; i < 20; i++ {
		tags = append(tags, fmt.Sprintf("tag%d", i))
	}
	res, err := Validate(mustJSON(t, []any{rawClip(map[string]any{"hashtags": tags})}))
	if err != nil || len(res.Candidates) != 1 {
		t.Fatalf("unexpected result: %+v err=%v", res, err)
	}
	if n := len(res.Candidates[0].Hashtags); n != MaxHashtags {
		t.Fatalf("expected %d hashtags, got %d", MaxHashtags, n)
	}

	res, err = Validate(mustJSON(t, []any{rawClip(map[string]any{"hashtags": "#Growth, #mindset money"})}))
	if err != nil || len(res.Candidates) != 1 {
		t.Fatalf("unexpected result: %+v err=%v", res, err)
	}
	if got := res.Candidates[0].Hashtags; !reflect.DeepEqual(got, []string{"growth", "mindset", "money"}) {
		t.Fatalf("unexpected hashtags: %v", got)
	}
}

func TestValidate_Envelopes(t *testing.T) {
	one := mustJSON(t, rawClip(nil))
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"array", "[" + one + "]", 1, false},
		{"clips object", `{"clips":[` + one + `]}`, 1, false},
		{"empty object", `{}`, 0, false},
		{"clips not array", `{"clips":"nope"}`, 0, false},
		{"null", `null`, 0, false},
		{"scalar", `42`, 0, false},
		{"fenced", "```json\n[" + one + "]\n```", 1, false},
		{"prose wrapped", "Sure! Here are your clips: [" + one + "] Enjoy.", 1, false},
		{"trailing prose with braces", `{"clips":[` + one + `]} (see {note} and [1])`, 1, false},
		{"leading and trailing prose", "Result: [" + one + "] [done]", 1, false},
		{"element not object", `["x", 1, ` + one + `]`, 1, false},
		{"invalid", "this is not json", 0, true},
		{"truncated", "[" + one[:len(one)/2], 0, true},
		{"empty", "   ", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Validate(tt.in)
			if tt.wantErr {
				if !apperr.IsCode(err, apperr.CodeResponseParse) {
					t.Fatalf("expected response parse error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Candidates) != tt.want {
				t.Fatalf("expected %d candidates, got %d", tt.want, len(res.Candidates))
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	got := stripFences("```\n{\"clips\":[]}\n```")
	if !strings.HasPrefix(got, "{") || !strings.HasSuffix(got, "}") {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestCandidateStructRules(t *testing.T) {
	base := func() types.Candidate {
		return types.Candidate{
			StartTime:        10,
			EndTime:          40,
			ViralScore:       70,
			CaptionTikTok:    "t",
			CaptionInstagram: "i",
			CaptionYouTube:   "y",
			Hashtags:         []string{"ai"},
		}
	}
	if err := validate.Struct(base()); err != nil {
		t.Fatalf("base candidate must pass: %v", err)
	}

	tests := []struct {
		name  string
		edit  func(*types.Candidate)
		field string
		tag   string
	}{
		{"empty range", func(c *types.Candidate) { c.EndTime = c.StartTime }, "EndTime", "gtfield"},
		{"blank caption", func(c *types.Candidate) { c.CaptionYouTube = " \t\n" }, "CaptionYouTube", "notblank"},
		{"too many tags", func(c *types.Candidate) { c.Hashtags = make([]string, 16) }, "Hashtags", "max"},
		{"uppercase tag", func(c *types.Candidate) { c.Hashtags = []string{"AI"} }, "Hashtags[0]", "lowercase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.edit(&c)
			err := validate.Struct(c)
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) || len(verrs) == 0 {
				t.Fatalf("expected validation errors, got %v", err)
			}
			if verrs[0].Field() != tt.field || verrs[0].Tag() != tt.tag {
				t.Fatalf("rejected by %s/%s, want %s/%s", verrs[0].Field(), verrs[0].Tag(), tt.field, tt.tag)
			}
		})
	}
}

// A caption made only of whitespace passes the type checks and is dropped by
// the notblank rule.
func TestValidate_BlankCaptionDroppedByStructRule(t *testing.T) {
	res, err := Validate(mustJSON(t, []any{
		rawClip(map[string]any{"caption_instagram": "\u2003\t"}),
		rawClip(nil),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 1 || res.Dropped != 1 {
		t.Fatalf("expected 1 kept and 1 dropped, got %d/%d", len(res.Candidates), res.Dropped)
	}
}
