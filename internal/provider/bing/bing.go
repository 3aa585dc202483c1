// Package bing fetches the Bing wallpaper of the day.
package bing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/blacktop/autopost/internal/provider/fetch"
)

const (
	providerName   = "bing"
	defaultBaseURL = "https://www.bing.com"
	maxAltLength   = 100
)

// Regions are the Bing markets a wallpaper is picked from.
var Regions = []string{
	"en-US", "ja-JP", "en-AU", "en-GB", "de-DE",
	"en-NZ", "en-CA", "en-IN", "fr-FR", "fr-CA",
	"it-IT", "es-ES", "pt-BR", "en-ROW",
}

var hashtags = []string{"#BingWallpaper", "#DailyWallpaper", "#Photography", "#NaturePhotography", "#Wallpaper"}

// Config selects the market. Region wins over Regions; Seed makes the random
// choice reproducible.
type Config struct {
	Regions []string
	Region  string
	Seed    uint64
	BaseURL string
}

// Provider implements autopost.Provider for Bing.
type Provider struct {
	cfg    Config
	client *fetch.Client
	rng    *rand.Rand
}

// New returns a Bing provider.
func New(cfg Config, client *fetch.Client) *Provider {
	if len(cfg.Regions) == 0 {
		cfg.Regions = Regions
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		rng:    rand.New(rand.NewPCG(seed, seed)),
	}
}

// Name returns "bing".
func (p *Provider) Name() string { return providerName }

type archive struct {
	Images []struct {
		URL           string `json:"url"`
		Copyright     string `json:"copyright"`
		CopyrightLink string `json:"copyrightlink"`
		StartDate     string `json:"startdate"`
	} `json:"images"`
}

// Fetch downloads today's wallpaper for one market.
func (p *Provider) Fetch(ctx context.Context) (*autopost.Batch, error) {
	region := p.region()
	logutil.Infof("bing: using region %s", region)

	q := url.Values{}
	q.Set("format", "js")
	q.Set("idx", "0")
	q.Set("n", "1")
	q.Set("mkt", region)
	q.Set("uhd", "1")
	q.Set("uhdwidth", "1920")
	q.Set("uhdheight", "1080")

	var resp archive
	if err := p.client.JSON(ctx, p.cfg.BaseURL+"/HPImageArchive.aspx?"+q.Encode(), nil, &resp); err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}
	if len(resp.Images) == 0 {
		return nil, autopost.FetchError{Provider: providerName, Err: fmt.Errorf("no images in archive response for %s", region)}
	}
	entry := resp.Images[0]

	imageURL, _, _ := strings.Cut(entry.URL, "&")
	if !strings.HasPrefix(imageURL, "http") {
		imageURL = p.cfg.BaseURL + imageURL
	}

	data, err := p.client.Bytes(ctx, imageURL, nil)
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}
	raw, err := autopost.NewRawImage(data)
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}

	copyright := strings.TrimSpace(entry.Copyright)
	if copyright == "" {
		copyright = "N/A"
	}

	return &autopost.Batch{
		Items: []autopost.Item{{
			Image: raw,
			Metadata: autopost.Metadata{
				Copyright: copyright,
				Region:    region,
				Link:      entry.CopyrightLink,
			},
			AltText: autopost.TruncateText(copyright, maxAltLength),
		}},
		Segments:  Segments(copyright, region),
		MaxImages: 1,
	}, nil
}

// Segments builds the caption: header and copyright are always kept, the
// region line goes first, then the hashtag block.
func Segments(copyright, region string) []autopost.CaptionSegment {
	return []autopost.CaptionSegment{
		{ID: "header", Text: "🖼️ Bing Wallpaper of the Day", Kind: autopost.Required},
		{ID: "copyright", Text: "\n\n📷 " + copyright, Kind: autopost.Required},
		{ID: "region", Text: "\n🌍 Region: " + region, Kind: autopost.Optional, Priority: 2},
		{ID: "hashtags", Text: "\n\n" + strings.Join(hashtags, " "), Kind: autopost.Optional, Priority: 1, IsHashtagBlock: true},
	}
}

func (p *Provider) region() string {
	if p.cfg.Region != "" {
		return p.cfg.Region
	}
	return p.cfg.Regions[p.rng.IntN(len(p.cfg.Regions))]
}
