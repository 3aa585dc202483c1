// Package bagdhara posts a random Bangla idiom (bagdhara) and its meaning.
package bagdhara

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/blacktop/autopost/internal/provider/card"
	"github.com/blacktop/autopost/internal/provider/fetch"
	"golang.org/x/image/font"
)

const (
	providerName = "bagdhara"
	maxAltLength = 1000

	// DefaultURL is the published idiom list.
	DefaultURL = "https://raw.githubusercontent.com/abusayed0206/bsky-autopost/main/files/bangla_bagdhara.json"
)

var hashtags = []string{"#বাংলা", "#বাগধারা", "#BanglaBagdhara", "#BanglaIdiom", "#বাংলাভাষা", "#Bengali"}

// Idiom is one entry of the feed.
type Idiom struct {
	Phrase  string `json:"phrase"`
	Meaning string `json:"meaning"`
}

// Config selects the feed and the card rendering.
type Config struct {
	URL    string
	Seed   uint64
	Width  int
	Height int
	// Face, when it covers Bengali script, draws the idiom on the card.
	// Otherwise the card only carries a romanized title.
	Face font.Face
}

// Provider implements autopost.Provider for the idiom feed.
type Provider struct {
	cfg    Config
	client *fetch.Client
	rng    *rand.Rand
}

// New returns a bagdhara provider.
func New(cfg Config, client *fetch.Client) *Provider {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Provider{cfg: cfg, client: client, rng: rand.New(rand.NewPCG(seed, seed^0xb46d))}
}

// Name returns "bagdhara".
func (p *Provider) Name() string { return providerName }

// Fetch downloads the feed, picks one idiom and renders its card.
func (p *Provider) Fetch(ctx context.Context) (*autopost.Batch, error) {
	var feed []Idiom
	if err := p.client.JSON(ctx, p.cfg.URL, nil, &feed); err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}

	valid := feed[:0]
	for _, idiom := range feed {
		idiom.Phrase = strings.TrimSpace(idiom.Phrase)
		idiom.Meaning = strings.TrimSpace(idiom.Meaning)
		if idiom.Phrase != "" && idiom.Meaning != "" {
			valid = append(valid, idiom)
		}
	}
	if len(valid) == 0 {
		return nil, autopost.FetchError{Provider: providerName, Err: errors.New("feed has no idioms")}
	}
	n := p.rng.IntN(len(valid))
	idiom := valid[n]
	logutil.Infof("bagdhara: selected %d of %d", n+1, len(valid))

	data, err := card.Render(p.lines(idiom, n, len(valid)), card.Options{Width: p.cfg.Width, Height: p.cfg.Height, Face: p.cfg.Face})
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
			Metadata: autopost.Metadata{Title: idiom.Phrase},
			AltText:  autopost.TruncateText(fmt.Sprintf("বাংলা বাগধারা: %s - %s", idiom.Phrase, idiom.Meaning), maxAltLength),
		}},
		Segments:  Segments(idiom),
		MaxImages: 1,
	}, nil
}

func (p *Provider) lines(idiom Idiom, n, total int) []card.Line {
	if p.cfg.Face != nil {
		return []card.Line{
			{Text: "আজকের বাগধারা", Style: card.Secondary},
			{},
			{Text: idiom.Phrase},
			{},
			{Text: idiom.Meaning, Style: card.Accent},
		}
	}
	return []card.Line{
		{Text: "Bangla Bagdhara", Style: card.Secondary},
		{},
		{Text: "Idiom of the day"},
		{Text: fmt.Sprintf("No. %d of %d", n+1, total), Style: card.Accent},
	}
}

// Segments keeps the idiom and its meaning and drops the hashtag block first.
func Segments(idiom Idiom) []autopost.CaptionSegment {
	return []autopost.CaptionSegment{
		{ID: "phrase", Text: "আজকের বাগধারা: " + idiom.Phrase, Kind: autopost.Required},
		{ID: "meaning", Text: "\n\nঅর্থ: " + idiom.Meaning, Kind: autopost.Required},
		{ID: "hashtags", Text: "\n\n" + strings.Join(hashtags, " "), Kind: autopost.Optional, Priority: 1, IsHashtagBlock: true},
	}
}
