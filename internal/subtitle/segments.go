package subtitle

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// minLineDuration is the shortest entry FromSegments will emit.
const minLineDuration = 10 * time.Millisecond

// Segment is a raw speech-to-text segment.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// FromSegments turns raw model segments into a document that satisfies
// Validate. Blank segments are dropped, segments are sorted by start, an
// entry never overlaps the next one and is at least minLineDuration long.
func FromSegments(segments []Segment, lang language.Tag) *File {
	cleaned := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		seg.Text = text
		cleaned = append(cleaned, seg)
	}

	slices.SortStableFunc(cleaned, func(a, b Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})

	lines := make([]Line, 0, len(cleaned))
	var floor time.Duration
	for i, seg := range cleaned {
		start := max(seg.Start, floor)
		end := seg.End
		if i+1 < len(cleaned) && end > cleaned[i+1].Start {
			end = cleaned[i+1].Start
		}
		if end < start+minLineDuration {
			end = start + minLineDuration
		}
		lines = append(lines, Line{
			Index:     len(lines) + 1,
			StartTime: start,
			EndTime:   end,
			Text:      seg.Text,
		})
		floor = end
	}

	if lang == language.Und {
		lang = detectLanguage(lines)
	}

	return &File{
		Lines:    lines,
		Language: lang,
		Format:   "SRT",
	}
}
