package highlights

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
)

// MaxHashtags caps the hashtag set kept per candidate.
const MaxHashtags = 15

var requiredKeys = [...]string{
	"title",
	"hook",
	"start_time",
	"end_time",
	"viral_score",
	"why_viral",
	"caption_tiktok",
	"caption_instagram",
	"caption_youtube",
	"hashtags",
}

var validate = newValidator()

// newValidator carries the rejection rules for a repaired candidate; the
// tags live on types.Candidate.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// Validation is the outcome of parsing one model response.
type Validation struct {
	Candidates []types.Candidate
	// Dropped counts elements that could not be repaired into a candidate.
	Dropped int
}

// Validate turns raw model text into validated candidates. Only an
// unparsable response is an error; a parsed value without candidates yields
// an empty result and bad elements are dropped one by one.
func Validate(raw string) (Validation, error) {
	doc, err := decodeResponse(raw)
	if err != nil {
		return Validation{}, apperr.Wrap(err, apperr.CodeResponseParse, "failed to parse model response")
	}

	items := candidateList(doc)
	out := Validation{Candidates: make([]types.Candidate, 0, len(items))}
	for _, it := range items {
		c, ok := toCandidate(it)
		if !ok {
			out.Dropped++
			continue
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out, nil
}

func decodeResponse(raw string) (any, error) {
	t := stripFences(strings.TrimSpace(raw))
	if t == "" {
		return nil, errors.New("empty response")
	}

	doc, err := decodeJSON(t)
	if err == nil {
		return doc, nil
	}
	// Models sometimes wrap the document in prose; retry on the first
	// complete array or object.
	if doc, ok := firstJSON(t); ok {
		return doc, nil
	}
	return nil, err
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

func stripFences(t string) string {
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	if j := strings.LastIndex(t, "```"); j >= 0 {
		t = t[:j]
	}
	return strings.TrimSpace(t)
}

// firstJSON decodes the first complete array or object in t and ignores
// whatever follows it.
func firstJSON(t string) (any, bool) {
	start := strings.IndexAny(t, "[{")
	if start < 0 {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(t[start:]))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func candidateList(doc any) []any {
	switch x := doc.(type) {
	case []any:
		return x
	case map[string]any:
		if arr, ok := x["clips"].([]any); ok {
			return arr
		}
	}
	return nil
}

func toCandidate(item any) (types.Candidate, bool) {
	m, ok := item.(types.RawCandidate)
	if !ok {
		return types.Candidate{}, false
	}
	for _, k := range requiredKeys {
		if _, ok := m[k]; !ok {
			return types.Candidate{}, false
		}
	}

	var c types.Candidate
	if c.Title, ok = m["title"].(string); !ok {
		return types.Candidate{}, false
	}
	if c.Hook, ok = m["hook"].(string); !ok {
		return types.Candidate{}, false
	}
	if c.WhyViral, ok = m["why_viral"].(string); !ok {
		return types.Candidate{}, false
	}
	for key, dst := range map[string]*string{
		"caption_tiktok":    &c.CaptionTikTok,
		"caption_instagram": &c.CaptionInstagram,
		"caption_youtube":   &c.CaptionYouTube,
	} {
		if *dst, ok = m[key].(string); !ok {
			return types.Candidate{}, false
		}
	}

	start, ok := asFloat(m["start_time"])
	if !ok {
		return types.Candidate{}, false
	}
	end, ok := asFloat(m["end_time"])
	if !ok {
		return types.Candidate{}, false
	}
	if start < 0 {
		start = 0
	}
	c.StartTime, c.EndTime = start, end
	c.DurationSeconds = end - start

	score, ok := asFloat(m["viral_score"])
	if !ok {
		return types.Candidate{}, false
	}
	c.ViralScore = int(math.Round(math.Min(math.Max(score, MinScore), MaxScore)))

	if c.Hashtags, ok = normalizeHashtags(m["hashtags"]); !ok {
		return types.Candidate{}, false
	}

	// Repairs are done; the struct rules reject what is left, such as an
	// empty range or a blank caption.
	if err := validate.Struct(c); err != nil {
		return types.Candidate{}, false
	}
	return c, true
}

func asFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalizeHashtags accepts a JSON array of strings or a single
// comma/space separated string and returns lowercase ASCII alphanumeric tags,
// deduplicated in first-seen order.
func normalizeHashtags(v any) ([]string, bool) {
	var parts []string
	switch x := v.(type) {
	case nil:
		return []string{}, true
	case []any:
		for _, it := range x {
			if s, ok := it.(string); ok {
				parts = append(parts, s)
			}
		}
	case string:
		parts = strings.FieldsFunc(x, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})
	default:
		return nil, false
	}

	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		tag := cleanTag(p)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == MaxHashtags {
			break
		}
	}
	return out, true
}

func cleanTag(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
