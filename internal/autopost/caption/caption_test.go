package caption

import (
	"strings"
	"testing"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioSegments() []autopost.CaptionSegment {
	return []autopost.CaptionSegment{
		{ID: "header", Text: "Today's wallpaper", Kind: autopost.Required},
		{ID: "region", Text: " — Region: JP", Kind: autopost.Optional, Priority: 2},
		{ID: "hashtags", Text: " #Wallpaper #Photo", Kind: autopost.Optional, Priority: 1, IsHashtagBlock: true},
	}
}

func TestBuildScenarioDropsByPriority(t *testing.T) {
	got, err := Build(scenarioSegments(), 20)
	require.NoError(t, err)
	assert.Equal(t, "Today's wallpaper", got.Text)
	assert.Equal(t, []string{"region", "hashtags"}, got.Dropped)
	assert.Empty(t, got.HashtagSpans)
}

func TestBuildDropsRegionFirst(t *testing.T) {
	full := "Today's wallpaper #Wallpaper #Photo"
	got, err := Build(scenarioSegments(), Length(full))
	require.NoError(t, err)
	assert.Equal(t, full, got.Text)
	assert.Equal(t, []string{"region"}, got.Dropped)
	require.Len(t, got.HashtagSpans, 2)
	for _, span := range got.HashtagSpans {
		assert.Equal(t, "#"+span.Tag, got.Text[span.Start:span.End])
		assert.Equal(t, "hashtags", span.SegmentID)
	}
}

func TestBuildEverythingFits(t *testing.T) {
	got, err := Build(scenarioSegments(), DefaultCeiling)
	require.NoError(t, err)
	assert.Equal(t, "Today's wallpaper — Region: JP #Wallpaper #Photo", got.Text)
	assert.Empty(t, got.Dropped)
	require.Len(t, got.HashtagSpans, 2)
	assert.Equal(t, "Wallpaper", got.HashtagSpans[0].Tag)
	assert.Equal(t, "Photo", got.HashtagSpans[1].Tag)
}

func TestBuildRequiredTooLong(t *testing.T) {
	segs := []autopost.CaptionSegment{
		{ID: "header", Text: strings.Repeat("a", 15), Kind: autopost.Required},
		{ID: "copyright", Text: strings.Repeat("b", 10), Kind: autopost.Required},
		{ID: "tags", Text: " #x", Kind: autopost.Optional, Priority: 1},
	}
	_, err := Build(segs, 20)
	var terr autopost.CaptionTooLongError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 25, terr.Length)
	assert.Equal(t, 20, terr.Ceiling)
}

func TestBuildRejectsNonPositiveCeiling(t *testing.T) {
	_, err := Build(scenarioSegments(), 0)
	var verr autopost.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBuildTiesDropLaterSegmentFirst(t *testing.T) {
	segs := []autopost.CaptionSegment{
		{ID: "a", Text: "A", Kind: autopost.Required},
		{ID: "b", Text: "B", Kind: autopost.Optional, Priority: 1},
		{ID: "c", Text: "C", Kind: autopost.Optional, Priority: 1},
	}
	got, err := Build(segs, 2)
	require.NoError(t, err)
	assert.Equal(t, "AB", got.Text)
	assert.Equal(t, []string{"c"}, got.Dropped)
}

func TestBuildNeverTruncatesMidSegment(t *testing.T) {
	segs := []autopost.CaptionSegment{
		{ID: "head", Text: "🖼️ Daily", Kind: autopost.Required},
		{ID: "long", Text: " ✨✨✨✨✨✨✨✨✨✨", Kind: autopost.Optional, Priority: 5},
		{ID: "tags", Text: " #日本 #café", Kind: autopost.Optional, Priority: 1, IsHashtagBlock: true},
	}
	got, err := Build(segs, 20)
	require.NoError(t, err)
	assert.Equal(t, "🖼️ Daily #日本 #café", got.Text)
	require.Len(t, got.HashtagSpans, 2)
	assert.Equal(t, "#日本", got.Text[got.HashtagSpans[0].Start:got.HashtagSpans[0].End])
	assert.Equal(t, "#café", got.Text[got.HashtagSpans[1].Start:got.HashtagSpans[1].End])
}

func TestBuildIdempotent(t *testing.T) {
	first, err := Build(scenarioSegments(), 30)
	require.NoError(t, err)
	second, err := Build(scenarioSegments(), 30)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildCustomMeasure(t *testing.T) {
	b := Builder{Measure: func(s string) int { return len(s) }}
	segs := []autopost.CaptionSegment{
		{ID: "head", Text: "日本", Kind: autopost.Required},
		{ID: "tail", Text: "!", Kind: autopost.Optional, Priority: 1},
	}
	got, err := b.Build(segs, 6)
	require.NoError(t, err)
	assert.Equal(t, "日本", got.Text)

	got, err = Build(segs, 6)
	require.NoError(t, err)
	assert.Equal(t, "日本!", got.Text)
}

func TestLengthCountsGraphemes(t *testing.T) {
	assert.Equal(t, 1, Length("🖼️"))
	assert.Equal(t, 1, Length("👨‍👩‍👧"))
	assert.Equal(t, 5, Length("hello"))
}

func TestFindHashtags(t *testing.T) {
	s := "#WindowsSpotlight, #Spotlight, # lonely ##double #a_b1 end#tail"
	got := FindHashtags(s)
	var tags []string
	for _, h := range got {
		tags = append(tags, h.Tag)
		assert.Equal(t, "#"+h.Tag, s[h.Start:h.End])
	}
	assert.Equal(t, []string{"WindowsSpotlight", "Spotlight", "double", "a_b1", "tail"}, tags)
	assert.Empty(t, FindHashtags("no tags here"))
}

func TestApplyDropOrder(t *testing.T) {
	segs := []autopost.CaptionSegment{
		{ID: "header", Kind: autopost.Required},
		{ID: "titles-1", Kind: autopost.Required},
		{ID: "titles-2", Kind: autopost.Optional, Priority: 1},
		{ID: "hashtags", Kind: autopost.Optional, Priority: 9},
		{ID: "region", Kind: autopost.Optional, Priority: 1},
		{ID: "extra", Kind: autopost.Optional, Priority: 4},
	}
	got := ApplyDropOrder(segs, []string{"region", "hashtags", "titles"})

	prio := map[string]int{}
	for _, s := range got {
		prio[s.ID] = s.Priority
	}
	assert.Equal(t, 0, prio["titles-1"])
	assert.Greater(t, prio["region"], prio["hashtags"])
	assert.Greater(t, prio["hashtags"], prio["titles-2"])
	assert.Greater(t, prio["titles-2"], prio["extra"])
	assert.Equal(t, 1, segs[4].Priority, "input must not be mutated")

	assert.Equal(t, segs, ApplyDropOrder(segs, nil))
}

func TestSpansAlwaysValid(t *testing.T) {
	segs := []autopost.CaptionSegment{
		{ID: "header", Text: "🖼️ Bing Wallpaper of the Day", Kind: autopost.Required},
		{ID: "copyright", Text: "\n\n📷 Mount Fuji, Japan (© Someone/Getty)", Kind: autopost.Required},
		{ID: "region", Text: "\n\n🌍 Region: ja-JP", Kind: autopost.Optional, Priority: 2},
		{ID: "hashtags", Text: "\n\n#BingWallpaper #DailyWallpaper #Photography", Kind: autopost.Optional, Priority: 1, IsHashtagBlock: true},
	}
	for ceiling := 70; ceiling <= 140; ceiling += 5 {
		got, err := Build(segs, ceiling)
		require.NoError(t, err, "ceiling %d", ceiling)
		assert.LessOrEqual(t, Length(got.Text), ceiling)
		for _, span := range got.HashtagSpans {
			require.LessOrEqual(t, span.End, len(got.Text))
			assert.Equal(t, "#"+span.Tag, got.Text[span.Start:span.End])
		}
	}
}
