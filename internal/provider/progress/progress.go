// Package progress posts how much of the current year has elapsed, as a card
// and a progress bar caption, and threads the remaining share as a reply.
package progress

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/provider/card"
)

const (
	providerName = "progress"
	barCells     = 20
)

// Config controls the card and the instant progress is measured at.
type Config struct {
	Location *time.Location
	Width    int
	Height   int
	Now      func() time.Time
}

// Provider implements autopost.Provider with a generated image.
type Provider struct {
	cfg Config
}

// New returns a year progress provider.
func New(cfg Config) *Provider {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{cfg: cfg}
}

// Name returns "progress".
func (p *Provider) Name() string { return providerName }

// Fetch renders the card. It does no network I/O.
func (p *Provider) Fetch(ctx context.Context) (*autopost.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := p.cfg.Now().In(p.cfg.Location)
	pct := YearProgress(now)

	data, err := card.Render([]card.Line{
		{Text: now.Format("Monday, 2 January 2006"), Style: card.Secondary},
		{},
		{Text: fmt.Sprintf("Year %d Progress", now.Year())},
		{Text: fmt.Sprintf("%.2f%%", pct), Style: card.Accent},
	}, card.Options{Width: p.cfg.Width, Height: p.cfg.Height, ShowProgress: true, Progress: pct})
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}
	raw, err := autopost.NewRawImage(data)
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}

	return &autopost.Batch{
		Items: []autopost.Item{{
			Image:    raw,
			Metadata: autopost.Metadata{Title: fmt.Sprintf("Year %d Progress", now.Year()), Region: p.cfg.Location.String()},
			AltText:  fmt.Sprintf("Progress bar: %d is %.2f%% complete", now.Year(), pct),
		}},
		Segments:  Segments(now.Year(), pct),
		MaxImages: 1,
		Reply:     Reply(now.Year(), pct),
	}, nil
}

// Segments keeps the bar and drops the hashtags first.
func Segments(year int, pct float64) []autopost.CaptionSegment {
	return []autopost.CaptionSegment{
		{ID: "header", Text: fmt.Sprintf("📅 Year %d Progress\n%s %.2f%%", year, ProgressBar(pct, barCells), pct), Kind: autopost.Required},
		{ID: "hashtags", Text: fmt.Sprintf("\n\n#YearProgress #Year%d", year), Kind: autopost.Optional, Priority: 1, IsHashtagBlock: true},
	}
}

// Reply is the follow-up stating what is left of the year.
func Reply(year int, pct float64) string {
	return fmt.Sprintf("%.2f%% of %d is remaining.", 100-pct, year)
}

// YearProgress returns the elapsed share of t's year, in percent.
func YearProgress(t time.Time) float64 {
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(1, 0, 0)
	return t.Sub(start).Seconds() / end.Sub(start).Seconds() * 100
}

// ProgressBar draws pct as cells of █, one partial ▒ or ▓, and ░ padding.
func ProgressBar(pct float64, cells int) string {
	pct = math.Max(0, math.Min(100, pct))
	filled := pct / 100 * float64(cells)
	full := int(filled)

	var sb strings.Builder
	sb.WriteString(strings.Repeat("█", full))
	used := full
	if frac := filled - float64(full); frac > 0 && used < cells {
		if frac < 0.5 {
			sb.WriteString("▒")
		} else {
			sb.WriteString("▓")
		}
		used++
	}
	sb.WriteString(strings.Repeat("░", cells-used))
	return sb.String()
}
