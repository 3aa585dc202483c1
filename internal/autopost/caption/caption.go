// Package caption composes post text from droppable segments so that it fits a
// character ceiling, and locates the hashtags that survive in the final text.
package caption

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/rivo/uniseg"
)

// DefaultCeiling is the Bluesky post length limit in graphemes.
const DefaultCeiling = 300

// Length counts user-perceived characters (grapheme clusters), the unit the
// Bluesky app view uses for its post length limit.
func Length(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Builder builds budgeted captions. The zero value counts graphemes.
type Builder struct {
	Measure func(string) int
}

// Build is shorthand for a zero Builder.
func Build(segments []autopost.CaptionSegment, ceiling int) (autopost.BudgetedCaption, error) {
	return Builder{}.Build(segments, ceiling)
}

// Build joins all segments in order and, while the result exceeds ceiling,
// drops the remaining optional segment with the highest priority. Segments are
// dropped whole. Ties drop the later segment first.
func (b Builder) Build(segments []autopost.CaptionSegment, ceiling int) (autopost.BudgetedCaption, error) {
	if ceiling <= 0 {
		return autopost.BudgetedCaption{}, autopost.ValidationError{Component: "caption", Reason: fmt.Sprintf("ceiling must be positive, got %d", ceiling)}
	}
	measure := b.Measure
	if measure == nil {
		measure = Length
	}

	kept := make([]bool, len(segments))
	for i := range kept {
		kept[i] = true
	}

	var dropped []string
	for {
		text := compose(segments, kept)
		n := measure(text)
		if n <= ceiling {
			return autopost.BudgetedCaption{
				Text:         text,
				HashtagSpans: spans(segments, kept),
				Dropped:      dropped,
			}, nil
		}
		victim := nextDrop(segments, kept)
		if victim < 0 {
			return autopost.BudgetedCaption{}, autopost.CaptionTooLongError{Ceiling: ceiling, Length: n}
		}
		kept[victim] = false
		dropped = append(dropped, segments[victim].ID)
		logutil.Debugf("caption is %d characters (ceiling %d), dropping %q", n, ceiling, segments[victim].ID)
	}
}

func compose(segments []autopost.CaptionSegment, kept []bool) string {
	var sb strings.Builder
	for i, seg := range segments {
		if kept[i] {
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

func nextDrop(segments []autopost.CaptionSegment, kept []bool) int {
	victim := -1
	for i, seg := range segments {
		if !kept[i] || seg.Kind != autopost.Optional {
			continue
		}
		if victim < 0 || seg.Priority >= segments[victim].Priority {
			victim = i
		}
	}
	return victim
}

// spans computes byte offsets against the composed text of the kept segments.
func spans(segments []autopost.CaptionSegment, kept []bool) []autopost.HashtagSpan {
	var out []autopost.HashtagSpan
	offset := 0
	for i, seg := range segments {
		if !kept[i] {
			continue
		}
		if seg.IsHashtagBlock {
			for _, tag := range FindHashtags(seg.Text) {
				tag.SegmentID = seg.ID
				tag.Start += offset
				tag.End += offset
				out = append(out, tag)
			}
		}
		offset += len(seg.Text)
	}
	return out
}

// FindHashtags returns every '#' followed by a run of word characters, with
// byte offsets relative to s. The span includes the '#'.
func FindHashtags(s string) []autopost.HashtagSpan {
	var out []autopost.HashtagSpan
	for i := 0; i < len(s); {
		if s[i] != '#' {
			i++
			continue
		}
		end := i + 1
		for end < len(s) {
			r, size := utf8.DecodeRuneInString(s[end:])
			if !isWordRune(r) {
				break
			}
			end += size
		}
		if end > i+1 {
			out = append(out, autopost.HashtagSpan{Start: i, End: end, Tag: s[i+1 : end]})
		}
		i = max(end, i+1)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}

// ApplyDropOrder rewrites optional segment priorities from an ordered list of
// segment IDs (dropped first to dropped last). A listed ID also matches IDs
// that start with it followed by '-', so "titles" covers "titles-2".
// Listed segments drop before unlisted ones; within one ID group the later
// segment drops first.
func ApplyDropOrder(segments []autopost.CaptionSegment, order []string) []autopost.CaptionSegment {
	if len(order) == 0 {
		return segments
	}
	out := make([]autopost.CaptionSegment, len(segments))
	copy(out, segments)

	base := 0
	for _, seg := range out {
		if seg.Kind == autopost.Optional && rank(seg.ID, order) < 0 {
			base = max(base, seg.Priority)
		}
	}
	for i := range out {
		if out[i].Kind != autopost.Optional {
			continue
		}
		if r := rank(out[i].ID, order); r >= 0 {
			out[i].Priority = base + len(order) - r
		}
	}
	return out
}

func rank(id string, order []string) int {
	for i, o := range order {
		if id == o || strings.HasPrefix(id, o+"-") {
			return i
		}
	}
	return -1
}
