package transcript

import (
	"strconv"
	"strings"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
)

// Tokens converts segments into tokens in input order. A segment whose end
// precedes its start keeps its text and gets End = Start.
func Tokens(tr types.Transcript) []types.Token {
	out := make([]types.Token, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		end := s.End
		if end < s.Start {
			end = s.Start
		}
		out = append(out, types.Token{Text: s.Text, Start: s.Start, End: end})
	}
	return out
}

// Canonical renders the transcript the way the model sees it: one
// "[<start>s - <end>s] <text>" line per segment, or the plain text blob when
// there are no segments.
func Canonical(tr types.Transcript) (string, error) {
	if tr.Empty() {
		return "", apperr.WithOp(apperr.ErrMissingTranscript, "transcript.Canonical")
	}
	if len(tr.Segments) == 0 {
		return tr.Text, nil
	}

	var b strings.Builder
	for i, tok := range Tokens(tr) {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(fmtSeconds(tok.Start))
		b.WriteString("s - ")
		b.WriteString(fmtSeconds(tok.End))
		b.WriteString("s] ")
		b.WriteString(tok.Text)
	}
	return b.String(), nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 1, 64)
}
