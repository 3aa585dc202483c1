// Package config loads autopost settings from defaults, a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/autopost/compress"
)

// Config is the full runtime configuration.
type Config struct {
	Budget    BudgetConfig    `koanf:"budget"`
	Run       RunConfig       `koanf:"run"`
	HTTP      HTTPConfig      `koanf:"http"`
	Bing      BingConfig      `koanf:"bing"`
	Spotlight SpotlightConfig `koanf:"spotlight"`
	Calendar  CalendarConfig  `koanf:"calendar"`
	Progress  ProgressConfig  `koanf:"progress"`
	Bagdhara  BagdharaConfig  `koanf:"bagdhara"`
	Movie     MovieConfig     `koanf:"movie"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// BudgetConfig holds the size and caption budgets shared by all targets.
type BudgetConfig struct {
	ByteCeiling    int      `koanf:"byte_ceiling"`
	CaptionCeiling int      `koanf:"caption_ceiling"`
	MaxImages      int      `koanf:"max_images"`
	QualityStart   int      `koanf:"quality_start"`
	QualityFloor   int      `koanf:"quality_floor"`
	QualityStep    int      `koanf:"quality_step"`
	ResizeFactor   float64  `koanf:"resize_factor"`
	ResizeSteps    int      `koanf:"resize_steps"`
	MinDimension   int      `koanf:"min_dimension"`
	DropOrder      []string `koanf:"drop_order"`
}

// RunConfig selects what a run does.
type RunConfig struct {
	DryRun  bool     `koanf:"dry_run"`
	Targets []string `koanf:"targets"`
	Seed    uint64   `koanf:"seed"`
}

// HTTPConfig tunes provider downloads.
type HTTPConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	Retries   int           `koanf:"retries"`
	UserAgent string        `koanf:"user_agent"`
}

// BingConfig picks the Bing market. Region wins over a random pick from
// Regions, and both empty uses the built-in market list.
type BingConfig struct {
	Regions []string `koanf:"regions"`
	Region  string   `koanf:"region"`
}

// SpotlightConfig controls the Windows Spotlight query. Country works like
// BingConfig.Region. Count is the images per post and MinBytes rejects
// placeholder downloads.
type SpotlightConfig struct {
	Countries []string `koanf:"countries"`
	Country   string   `koanf:"country"`
	Locale    string   `koanf:"locale"`
	Count     int      `koanf:"count"`
	MinBytes  int      `koanf:"min_bytes"`
}

// CalendarConfig sizes the Bangla date card. Timezone decides which day it
// is for the calendar, progress and movie providers. Font is a TrueType or
// OpenType file with Bengali glyphs; without one the cards are romanized.
type CalendarConfig struct {
	Timezone string  `koanf:"timezone"`
	Width    int     `koanf:"width"`
	Height   int     `koanf:"height"`
	Font     string  `koanf:"font"`
	FontSize float64 `koanf:"font_size"`
}

// ProgressConfig sizes the year progress card.
type ProgressConfig struct {
	Width  int `koanf:"width"`
	Height int `koanf:"height"`
}

// BagdharaConfig points at the idiom list. The card uses calendar.font.
type BagdharaConfig struct {
	URL string `koanf:"url"`
}

// MovieConfig selects the Kaggle dataset and credentials for the movie
// provider. Empty credentials fall back to the KAGGLE_* environment.
type MovieConfig struct {
	Dataset        string `koanf:"dataset"`
	KaggleUsername string `koanf:"kaggle_username"`
	KaggleKey      string `koanf:"kaggle_key"`
	Count          int    `koanf:"count"`
}

// ScheduleConfig maps provider names to cron specs for the schedule daemon.
type ScheduleConfig struct {
	Timezone string            `koanf:"timezone"`
	Jobs     map[string]string `koanf:"jobs"`
}

// MetricsConfig exposes run metrics. Addr serves /metrics over HTTP and
// Textfile writes them for the node_exporter textfile collector.
type MetricsConfig struct {
	Addr     string `koanf:"addr"`
	Textfile string `koanf:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cc := compress.DefaultConfig()
	return &Config{
		Budget: BudgetConfig{
			ByteCeiling:    976 * 1024,
			CaptionCeiling: 300,
			MaxImages:      4,
			QualityStart:   cc.QualityStart,
			QualityFloor:   cc.QualityFloor,
			QualityStep:    cc.QualityStep,
			ResizeFactor:   cc.ResizeFactor,
			ResizeSteps:    cc.ResizeSteps,
			MinDimension:   cc.MinDimension,
			DropOrder:      []string{"region", "hashtags", "titles"},
		},
		Run: RunConfig{
			Targets: []string{"bluesky"},
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
			Retries: 3,
		},
		Spotlight: SpotlightConfig{
			Locale:   "en-US",
			Count:    4,
			MinBytes: 50000,
		},
		Calendar: CalendarConfig{
			Timezone: "UTC",
			Width:    1080,
			Height:   1080,
			FontSize: 72,
		},
		Progress: ProgressConfig{
			Width:  1080,
			Height: 1080,
		},
		Bagdhara: BagdharaConfig{
			URL: "https://raw.githubusercontent.com/abusayed0206/bsky-autopost/main/files/bangla_bagdhara.json",
		},
		Movie: MovieConfig{
			Dataset: "abusayed0206/movie-of-the-day",
			Count:   4,
		},
		Schedule: ScheduleConfig{
			Timezone: "UTC",
		},
	}
}

// Budget returns the configured budget before target limits are applied.
func (c BudgetConfig) Budget() autopost.Budget {
	return autopost.Budget{
		ByteCeiling:    c.ByteCeiling,
		CaptionCeiling: c.CaptionCeiling,
		MaxImages:      c.MaxImages,
	}
}

// Compress returns the compressor ladder settings.
func (c BudgetConfig) Compress() compress.Config {
	return compress.Config{
		QualityStart: c.QualityStart,
		QualityFloor: c.QualityFloor,
		QualityStep:  c.QualityStep,
		ResizeFactor: c.ResizeFactor,
		ResizeSteps:  c.ResizeSteps,
		MinDimension: c.MinDimension,
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, autopost.ValidationError{Component: "config", Reason: fmt.Sprintf(format, args...)})
		}
	}

	b := c.Budget
	check(b.ByteCeiling > 0, "budget.byte_ceiling must be positive, got %d", b.ByteCeiling)
	check(b.CaptionCeiling > 0, "budget.caption_ceiling must be positive, got %d", b.CaptionCeiling)
	check(b.MaxImages > 0, "budget.max_images must be positive, got %d", b.MaxImages)
	check(b.QualityStart >= 1 && b.QualityStart <= 100, "budget.quality_start must be within 1-100, got %d", b.QualityStart)
	check(b.QualityFloor >= 1 && b.QualityFloor <= b.QualityStart, "budget.quality_floor must be within 1-%d, got %d", b.QualityStart, b.QualityFloor)
	check(b.QualityStep > 0, "budget.quality_step must be positive, got %d", b.QualityStep)
	check(b.ResizeFactor > 0 && b.ResizeFactor < 1, "budget.resize_factor must be within (0, 1), got %g", b.ResizeFactor)
	check(b.ResizeSteps >= 0, "budget.resize_steps must not be negative, got %d", b.ResizeSteps)
	check(b.MinDimension > 0, "budget.min_dimension must be positive, got %d", b.MinDimension)

	check(c.HTTP.Timeout > 0, "http.timeout must be positive, got %s", c.HTTP.Timeout)
	check(c.HTTP.Retries >= 0, "http.retries must not be negative, got %d", c.HTTP.Retries)

	check(c.Spotlight.Count > 0 && c.Spotlight.Count <= b.MaxImages, "spotlight.count must be within 1-%d, got %d", b.MaxImages, c.Spotlight.Count)
	check(c.Spotlight.MinBytes >= 0, "spotlight.min_bytes must not be negative, got %d", c.Spotlight.MinBytes)

	check(c.Calendar.Width > 0 && c.Calendar.Height > 0, "calendar size must be positive, got %dx%d", c.Calendar.Width, c.Calendar.Height)
	check(c.Calendar.Font == "" || c.Calendar.FontSize > 0, "calendar.font_size must be positive, got %g", c.Calendar.FontSize)
	check(c.Progress.Width > 0 && c.Progress.Height > 0, "progress size must be positive, got %dx%d", c.Progress.Width, c.Progress.Height)
	check(c.Bagdhara.URL != "", "bagdhara.url must not be empty")
	check(c.Movie.Dataset != "", "movie.dataset must not be empty")
	check(c.Movie.Count > 0 && c.Movie.Count <= b.MaxImages, "movie.count must be within 1-%d, got %d", b.MaxImages, c.Movie.Count)
	for key, tz := range map[string]string{"calendar.timezone": c.Calendar.Timezone, "schedule.timezone": c.Schedule.Timezone} {
		if tz == "" {
			continue
		}
		_, err := time.LoadLocation(tz)
		check(err == nil, "%s %q is not a known timezone", key, tz)
	}

	return errors.Join(errs...)
}

// KaggleCredentials returns movie.kaggle_username and movie.kaggle_key, each
// falling back to KAGGLE_USERNAME (or KAGGLE_USER) and KAGGLE_KEY (or
// KAGGLE_API_KEY).
func (c *Config) KaggleCredentials() (username, key string) {
	return firstSet(c.Movie.KaggleUsername, os.Getenv("KAGGLE_USERNAME"), os.Getenv("KAGGLE_USER")),
		firstSet(c.Movie.KaggleKey, os.Getenv("KAGGLE_KEY"), os.Getenv("KAGGLE_API_KEY"))
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// CalendarLocation resolves calendar.timezone, defaulting to UTC.
func (c *Config) CalendarLocation() (*time.Location, error) {
	if c.Calendar.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Calendar.Timezone)
}
