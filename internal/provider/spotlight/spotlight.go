// Package spotlight fetches Windows Spotlight lock-screen images.
package spotlight

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/blacktop/autopost/internal/provider/fetch"
)

const (
	providerName   = "spotlight"
	defaultBaseURL = "https://fd.api.iris.microsoft.com"
	placement      = "88000820"
	maxAltLength   = 200
)

const (
	// DefaultCount is how many images a batch holds.
	DefaultCount = 4
	// DefaultMinBytes rejects downloads smaller than this as placeholders.
	DefaultMinBytes = 50000
	// DefaultLocale is sent with every selection request.
	DefaultLocale = "en-US"
)

// Countries the selection API is queried for.
var Countries = []string{"US", "JP", "AU", "GB", "DE", "NZ", "CA", "IN", "FR", "IT", "ES", "BR"}

var hashtags = []string{"#WindowsSpotlight", "#Spotlight", "#Wallpaper", "#Microsoft", "#Photography"}

// Config selects the country and bounds the batch.
type Config struct {
	Countries []string
	Country   string
	Locale    string
	Count     int
	MinBytes  int
	Seed      uint64
	BaseURL   string
}

// Provider implements autopost.Provider for Windows Spotlight.
type Provider struct {
	cfg    Config
	client *fetch.Client
	rng    *rand.Rand
}

// New returns a Spotlight provider.
func New(cfg Config, client *fetch.Client) *Provider {
	if len(cfg.Countries) == 0 {
		cfg.Countries = Countries
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinBytes
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Provider{cfg: cfg, client: client, rng: rand.New(rand.NewPCG(seed, seed^0x5f0f))}
}

// Name returns "spotlight".
func (p *Provider) Name() string { return providerName }

type selection struct {
	BatchRsp struct {
		Items []struct {
			Item string `json:"item"`
		} `json:"items"`
	} `json:"batchrsp"`
}

type adItem struct {
	Ad struct {
		LandscapeImage struct {
			Asset string `json:"asset"`
		} `json:"landscapeImage"`
		PortraitImage struct {
			Asset string `json:"asset"`
		} `json:"portraitImage"`
		Title     string `json:"title"`
		Copyright string `json:"copyright"`
		CTAURI    string `json:"ctaUri"`
	} `json:"ad"`
}

type candidate struct {
	url      string
	metadata autopost.Metadata
}

// Fetch downloads up to Count images, skipping any that are not real images.
func (p *Provider) Fetch(ctx context.Context) (*autopost.Batch, error) {
	country := p.country()
	logutil.Infof("spotlight: using country %s, locale %s", country, p.cfg.Locale)

	candidates, err := p.selection(ctx, country)
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}

	var items []autopost.Item
	for i, c := range candidates {
		data, err := p.client.Bytes(ctx, c.url, map[string]string{"Referer": "https://www.microsoft.com/"})
		if err != nil {
			if ctx.Err() != nil {
				return nil, autopost.FetchError{Provider: providerName, Err: ctx.Err()}
			}
			logutil.Warnf("spotlight: skipping image %d: %v", i+1, err)
			continue
		}
		if reason := p.invalid(data); reason != "" {
			logutil.Warnf("spotlight: skipping image %d: %s", i+1, reason)
			continue
		}
		raw, err := autopost.NewRawImage(data)
		if err != nil {
			logutil.Warnf("spotlight: skipping image %d: %v", i+1, err)
			continue
		}
		items = append(items, autopost.Item{
			Image:    raw,
			Metadata: c.metadata,
			AltText:  altText(c.metadata),
		})
	}
	if len(items) == 0 {
		return nil, autopost.FetchError{Provider: providerName, Err: fmt.Errorf("no valid images among %d candidates", len(candidates))}
	}

	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Metadata.Title)
	}

	return &autopost.Batch{
		Items:     items,
		Segments:  Segments(titles, country),
		MaxImages: p.cfg.Count,
	}, nil
}

func (p *Provider) selection(ctx context.Context, country string) ([]candidate, error) {
	q := url.Values{}
	q.Set("placement", placement)
	q.Set("bcnt", strconv.Itoa(p.cfg.Count))
	q.Set("country", country)
	q.Set("locale", p.cfg.Locale)
	q.Set("fmt", "json")

	var resp selection
	if err := p.client.JSON(ctx, p.cfg.BaseURL+"/v4/api/selection?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	var out []candidate
	for i, raw := range resp.BatchRsp.Items {
		if len(out) == p.cfg.Count {
			break
		}
		var ad adItem
		if err := json.Unmarshal([]byte(raw.Item), &ad); err != nil {
			logutil.Warnf("spotlight: skipping item %d: %v", i+1, err)
			continue
		}
		asset := ad.Ad.LandscapeImage.Asset
		if asset == "" {
			asset = ad.Ad.PortraitImage.Asset
		}
		if asset == "" {
			continue
		}
		out = append(out, candidate{
			url: asset,
			metadata: autopost.Metadata{
				Title:     orNA(ad.Ad.Title),
				Copyright: orNA(ad.Ad.Copyright),
				Region:    country,
				Link:      ad.Ad.CTAURI,
			},
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("selection for %s returned no images", country)
	}
	return out, nil
}

func (p *Provider) invalid(data []byte) string {
	if len(data) < p.cfg.MinBytes {
		return fmt.Sprintf("only %d bytes (minimum %d)", len(data), p.cfg.MinBytes)
	}
	if !autopost.IsJPEGOrPNG(data) {
		return "not a JPEG or PNG"
	}
	return ""
}

func (p *Provider) country() string {
	if p.cfg.Country != "" {
		return p.cfg.Country
	}
	return p.cfg.Countries[p.rng.IntN(len(p.cfg.Countries))]
}

// Segments lists one title line per image; only the first is required.
// Extra titles are dropped last-first, after the country and hashtags.
func Segments(titles []string, country string) []autopost.CaptionSegment {
	segs := []autopost.CaptionSegment{
		{ID: "header", Text: "🖼️ Windows Spotlight Images", Kind: autopost.Required},
	}
	for i, title := range titles {
		seg := autopost.CaptionSegment{
			ID:   fmt.Sprintf("titles-%d", i+1),
			Text: "\n📝 " + title,
			Kind: autopost.Optional,
		}
		if i == 0 {
			seg.Text = "\n\n📝 " + title
			seg.Kind = autopost.Required
		}
		segs = append(segs, seg)
	}
	return append(segs,
		autopost.CaptionSegment{ID: "region", Text: "\n🌍 Country: " + country, Kind: autopost.Optional, Priority: 3},
		autopost.CaptionSegment{ID: "hashtags", Text: "\n\n" + strings.Join(hashtags, " "), Kind: autopost.Optional, Priority: 2, IsHashtagBlock: true},
	)
}

func altText(m autopost.Metadata) string {
	return autopost.TruncateText(m.Title+" - "+m.Copyright, maxAltLength)
}

func orNA(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "N/A"
	}
	return s
}
