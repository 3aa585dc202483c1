// Package movie posts four posters of films released on today's date, read
// from the movie-of-the-day dataset on Kaggle with posters from TMDB.
package movie

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/blacktop/autopost/internal/provider/fetch"
)

const (
	providerName = "movie"
	maxAltLength = 1000
	attribution  = "© TMDB"
)

// Defaults applied to zero Config fields.
const (
	DefaultDataset      = "abusayed0206/movie-of-the-day"
	DefaultCount        = 4
	DefaultBaseURL      = "https://www.kaggle.com"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/original"
	// DefaultMaxDatasetBytes caps the dataset archive download.
	DefaultMaxDatasetBytes = 256 << 20
)

var genericTags = []string{"#Movie", "#MovieOfTheDay", "#OnThisDay", "#TMDB"}

// Movie is one row of a day's CSV.
type Movie struct {
	Title       string
	ReleaseDate string
	PosterPath  string
	Tagline     string
	Genres      []string
	Popularity  float64
}

// Year is the release year, or "" when the date is missing.
func (m Movie) Year() string {
	year, _, _ := strings.Cut(m.ReleaseDate, "-")
	return strings.TrimSpace(year)
}

// Config selects the dataset, credentials and how many posters to post.
type Config struct {
	Dataset string
	// Username and Key are Kaggle API credentials. Without them the download
	// is attempted anonymously.
	Username     string
	Key          string
	Count        int
	Location     *time.Location
	Now          func() time.Time
	BaseURL      string
	ImageBaseURL string
}

// Provider implements autopost.Provider for the movie dataset.
type Provider struct {
	cfg    Config
	client *fetch.Client
}

// New returns a movie provider.
func New(cfg Config, client *fetch.Client) *Provider {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = DefaultImageBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ImageBaseURL = strings.TrimRight(cfg.ImageBaseURL, "/")
	return &Provider{cfg: cfg, client: client}
}

// Name returns "movie".
func (p *Provider) Name() string { return providerName }

// Fetch downloads the dataset, selects today's movies and their posters.
// Posters that fail to download are skipped.
func (p *Provider) Fetch(ctx context.Context) (*autopost.Batch, error) {
	now := p.cfg.Now().In(p.cfg.Location)

	movies, err := p.today(ctx, now)
	if err != nil {
		return nil, autopost.FetchError{Provider: providerName, Err: err}
	}
	pool, selected := Select(movies, now.Hour(), p.cfg.Count)
	if len(selected) == 0 {
		return nil, autopost.FetchError{Provider: providerName, Err: fmt.Errorf("no movies with poster and tagline for %s", now.Format("January 2"))}
	}

	var (
		items  []autopost.Item
		posted []Movie
	)
	for _, m := range selected {
		data, err := p.client.Bytes(ctx, p.cfg.ImageBaseURL+m.PosterPath, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, autopost.FetchError{Provider: providerName, Err: ctx.Err()}
			}
			logutil.Warnf("movie: skipping poster for %s: %v", m.Title, err)
			continue
		}
		raw, err := autopost.NewRawImage(data)
		if err != nil {
			logutil.Warnf("movie: skipping poster for %s: %v", m.Title, err)
			continue
		}
		items = append(items, autopost.Item{
			Image: raw,
			Metadata: autopost.Metadata{
				Title:     m.Title,
				Copyright: attribution,
			},
			AltText: autopost.TruncateText("Movie poster for "+m.Title, maxAltLength),
		})
		posted = append(posted, m)
	}
	if len(items) == 0 {
		return nil, autopost.FetchError{Provider: providerName, Err: fmt.Errorf("no posters among %d movies", len(selected))}
	}

	return &autopost.Batch{
		Items:     items,
		Segments:  Segments(posted, len(pool)),
		MaxImages: p.cfg.Count,
	}, nil
}

func (p *Provider) today(ctx context.Context, now time.Time) ([]Movie, error) {
	headers := map[string]string{}
	if p.cfg.Username != "" && p.cfg.Key != "" {
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(p.cfg.Username+":"+p.cfg.Key))
	} else {
		logutil.Warnf("movie: no Kaggle credentials, trying an anonymous download")
	}

	data, err := p.client.Bytes(ctx, p.cfg.BaseURL+"/api/v1/datasets/download/"+p.cfg.Dataset, headers)
	if err != nil {
		return nil, fmt.Errorf("download dataset: %w", err)
	}
	return ReadDay(data, now)
}

// ReadDay opens the dataset archive and parses <month>/<DD>.csv for now.
func ReadDay(archive []byte, now time.Time) ([]Movie, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open dataset archive: %w", err)
	}
	want := path.Join(strings.ToLower(now.Month().String()), now.Format("02")+".csv")
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if name != want && !strings.HasSuffix(name, "/"+want) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		logutil.Debugf("movie: reading %s", f.Name)
		return ParseCSV(rc)
	}
	return nil, fmt.Errorf("dataset has no %s", want)
}

// ParseCSV reads a day's CSV. Columns are matched by header name.
func ParseCSV(r io.Reader) ([]Movie, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := col["title"]; !ok {
		return nil, errors.New("csv has no title column")
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Movie
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		popularity, _ := strconv.ParseFloat(field(rec, "popularity"), 64)
		var genres []string
		for _, g := range strings.Split(field(rec, "genres"), ",") {
			if g = strings.TrimSpace(g); g != "" {
				genres = append(genres, g)
			}
		}
		out = append(out, Movie{
			Title:       field(rec, "title"),
			ReleaseDate: field(rec, "release_date"),
			PosterPath:  field(rec, "poster_path"),
			Tagline:     field(rec, "tagline"),
			Genres:      genres,
			Popularity:  popularity,
		})
	}
}

// Select keeps movies with a poster and a tagline, takes the 2*count most
// popular as the pool, and returns its first half before noon and its second
// half after. An empty second half falls back to the first.
func Select(movies []Movie, hour, count int) (pool, selected []Movie) {
	for _, m := range movies {
		if m.PosterPath != "" && m.Tagline != "" {
			pool = append(pool, m)
		}
	}
	slices.SortStableFunc(pool, func(a, b Movie) int {
		switch {
		case a.Popularity > b.Popularity:
			return -1
		case a.Popularity < b.Popularity:
			return 1
		}
		return 0
	})
	pool = pool[:min(len(pool), 2*count)]

	first := pool[:min(len(pool), count)]
	if hour < 12 || len(pool) <= count {
		return pool, first
	}
	return pool, pool[count:]
}

// Segments lists each title on its own line, then the attribution, then the
// hashtag blocks. Title hashtags, genre hashtags and the generic tags are
// separate blocks so that the generic tags drop first.
func Segments(movies []Movie, poolSize int) []autopost.CaptionSegment {
	segs := []autopost.CaptionSegment{
		{ID: "header", Text: fmt.Sprintf("Movies of the day (%d/%d)", len(movies), poolSize), Kind: autopost.Required},
	}
	for i, m := range movies {
		line := "\n🎬 " + m.Title
		if year := m.Year(); year != "" {
			line += "(" + year + ")"
		}
		seg := autopost.CaptionSegment{ID: fmt.Sprintf("titles-%d", i+1), Text: line, Kind: autopost.Optional}
		if i == 0 {
			seg.Kind = autopost.Required
		}
		segs = append(segs, seg)
	}
	segs = append(segs, autopost.CaptionSegment{ID: "attribution", Text: "\n\n" + attribution, Kind: autopost.Required})

	titleTags, genreTags := Hashtags(movies)
	sep := "\n\n"
	for _, block := range []struct {
		id   string
		tags []string
	}{
		{"hashtags-titles", titleTags},
		{"hashtags-genres", genreTags},
		{"hashtags", genericTags},
	} {
		if len(block.tags) == 0 {
			continue
		}
		segs = append(segs, autopost.CaptionSegment{
			ID:             block.id,
			Text:           sep + strings.Join(block.tags, " "),
			Kind:           autopost.Optional,
			Priority:       1,
			IsHashtagBlock: true,
		})
		sep = " "
	}
	return segs
}

// Hashtags builds one tag per title from its letters and digits and one per
// genre, sorted, skipping tags already used case-insensitively.
func Hashtags(movies []Movie) (titles, genres []string) {
	seen := map[string]bool{}
	for _, tag := range genericTags {
		seen[strings.ToLower(tag)] = true
	}
	add := func(dst []string, tag string) []string {
		key := strings.ToLower(tag)
		if tag == "#" || seen[key] {
			return dst
		}
		seen[key] = true
		return append(dst, tag)
	}

	for _, m := range movies {
		titles = add(titles, "#"+strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, m.Title))
	}

	var all []string
	for _, m := range movies {
		all = append(all, m.Genres...)
	}
	slices.Sort(all)
	for _, g := range all {
		genres = add(genres, "#"+strings.NewReplacer(" ", "", "-", "").Replace(g))
	}
	return titles, genres
}
