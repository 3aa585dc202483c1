// Package calendar renders today's date in the Bangla calendar (Bangabda)
// as a card.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/provider/card"
	"golang.org/x/image/font"
)

const providerName = "calendar"

var hashtags = []string{"#Bangladesh", "#Bangla", "#বাংলাদেশ", "#বাংলা", "#বাংলাতারিখ", "#তারিখ", "#Date", "#BanglaDate"}

// Config controls the card and the day it is rendered for.
type Config struct {
	Location *time.Location
	Width    int
	Height   int
	// Face, when it covers Bengali script, draws the card in Bengali.
	// Otherwise the card is romanized.
	Face font.Face
	Now  func() time.Time
}

// Provider implements autopost.Provider with a generated image.
type Provider struct {
	cfg Config
}

// New returns a calendar provider.
func New(cfg Config) *Provider {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{cfg: cfg}
}

// Name returns "calendar".
func (p *Provider) Name() string { return providerName }

// Fetch renders today's card. It does no network I/O.
func (p *Provider) Fetch(ctx context.Context) (*autopost.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := p.cfg.Now().In(p.cfg.Location)
	date := FromTime(now)

	lines := romanLines(now, date)
	if p.cfg.Face != nil {
		lines = bengaliLines(date)
	}
	data, err := card.Render(lines, card.Options{Width: p.cfg.Width, Height: p.cfg.Height, Face: p.cfg.Face})
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}
	raw, err := autopost.NewRawImage(data)
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}

	return &autopost.Batch{
		Items: []autopost.Item{{
			Image: raw,
			Metadata: autopost.Metadata{
				Title:  fmt.Sprintf("%s %s, %s", date.DayOrdinal(), date.MonthName(), Digits(date.Year)),
				Region: p.cfg.Location.String(),
			},
			AltText: "আজকের বাংলা তারিখ: " + DateLines(date),
		}},
		Segments:  Segments(date),
		MaxImages: 1,
	}, nil
}

// DateLines is the three line date block shared by the caption and alt text.
func DateLines(d Date) string {
	return fmt.Sprintf("%s %s,\n%s বঙ্গাব্দ\nবারঃ %s, ঋতুঃ %s", d.DayOrdinal(), d.MonthName(), Digits(d.Year), d.WeekdayName(), d.Season().Name())
}

// Segments keeps the date and drops the hashtag block when space runs out.
func Segments(d Date) []autopost.CaptionSegment {
	date := fmt.Sprintf("আজ রোজ %s,\n%s\nএবং %sকাল", d.WeekdayName(), DateLines(d), d.Season().Name())
	return []autopost.CaptionSegment{
		{ID: "date", Text: date, Kind: autopost.Required},
		{ID: "hashtags", Text: "\n\n" + strings.Join(hashtags, " "), Kind: autopost.Optional, Priority: 1, IsHashtagBlock: true},
	}
}

func bengaliLines(d Date) []card.Line {
	return []card.Line{
		{Text: fmt.Sprintf("%s %s,", d.DayOrdinal(), d.MonthName())},
		{Text: Digits(d.Year) + " বঙ্গাব্দ"},
		{},
		{Text: fmt.Sprintf("বারঃ %s, ঋতুঃ %s", d.WeekdayName(), d.Season().Name()), Style: card.Accent},
	}
}

func romanLines(now time.Time, d Date) []card.Line {
	return []card.Line{
		{Text: now.Format("Monday"), Style: card.Secondary},
		{Text: now.Format("2 January 2006"), Style: card.Secondary},
		{},
		{Text: fmt.Sprintf("%d %s %d", d.Day, d.MonthLatin(), d.Year)},
		{Text: "Bangabda"},
		{},
		{Text: d.Season().Latin(), Style: card.Accent},
	}
}
