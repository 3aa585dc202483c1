// Package compress fits encoded images under a byte ceiling, preferring lower
// JPEG quality over smaller dimensions.
package compress

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/disintegration/imaging"
)

const jpegMimeType = "image/jpeg"

// Config controls the quality and resize ladders.
type Config struct {
	QualityStart int
	QualityFloor int
	QualityStep  int
	ResizeFactor float64
	ResizeSteps  int
	MinDimension int
}

// DefaultConfig returns the 100→20 step 5 ladder with up to five 0.9x resizes.
func DefaultConfig() Config {
	return Config{
		QualityStart: 100,
		QualityFloor: 20,
		QualityStep:  5,
		ResizeFactor: 0.9,
		ResizeSteps:  5,
		MinDimension: 100,
	}
}

// Ladder returns the quality levels in the order they are tried.
func (c Config) Ladder() []int {
	start := clampQuality(c.QualityStart)
	floor := clampQuality(c.QualityFloor)
	step := c.QualityStep
	if step <= 0 {
		step = 5
	}
	if floor > start {
		floor = start
	}
	var out []int
	for q := start; q >= floor; q -= step {
		out = append(out, q)
	}
	if out[len(out)-1] != floor {
		out = append(out, floor)
	}
	return out
}

func clampQuality(q int) int {
	return max(1, min(100, q))
}

// Strategy is one re-encoding attempt: resize by Scale, encode at Quality.
type Strategy struct {
	Scale   float64
	Quality int
}

func (s Strategy) String() string {
	return fmt.Sprintf("scale=%.3f quality=%d", s.Scale, s.Quality)
}

// Encoder turns a decoded image into bytes at a given quality.
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
}

type jpegEncoder struct{}

func (jpegEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compressor is safe for concurrent use on independent images.
type Compressor struct {
	cfg     Config
	encoder Encoder
}

// Option customizes a Compressor.
type Option func(*Compressor)

// WithEncoder replaces the JPEG encoder.
func WithEncoder(e Encoder) Option {
	return func(c *Compressor) { c.encoder = e }
}

// New constructs a Compressor.
func New(cfg Config, opts ...Option) *Compressor {
	c := &Compressor{cfg: cfg, encoder: jpegEncoder{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plan lists every strategy for an image of the given size, in order: the
// quality ladder at full size, then the ladder again at each resize step until
// ResizeSteps or MinDimension is reached.
func (c *Compressor) Plan(width, height int) []Strategy {
	ladder := c.cfg.Ladder()
	plan := make([]Strategy, 0, len(ladder)*(c.cfg.ResizeSteps+1))
	for _, q := range ladder {
		plan = append(plan, Strategy{Scale: 1, Quality: q})
	}
	factor := c.cfg.ResizeFactor
	if factor <= 0 || factor >= 1 {
		return plan
	}
	scale := 1.0
	for step := 0; step < c.cfg.ResizeSteps; step++ {
		scale *= factor
		w, h := scaled(width, height, scale)
		if w < c.cfg.MinDimension || h < c.cfg.MinDimension {
			break
		}
		for _, q := range ladder {
			plan = append(plan, Strategy{Scale: scale, Quality: q})
		}
	}
	return plan
}

func scaled(width, height int, scale float64) (int, int) {
	return int(math.Round(float64(width) * scale)), int(math.Round(float64(height) * scale))
}

// Compress returns the source bytes when they already fit, otherwise the output
// of the first strategy in Plan that is at or under ceiling bytes.
func (c *Compressor) Compress(raw autopost.RawImage, ceiling int) (autopost.CompressedImage, error) {
	if ceiling <= 0 {
		return autopost.CompressedImage{}, autopost.ValidationError{Component: "compress", Reason: fmt.Sprintf("byte ceiling must be positive, got %d", ceiling)}
	}
	if len(raw.Bytes) <= ceiling {
		logutil.Debugf("image within budget: bytes=%d ceiling=%d", len(raw.Bytes), ceiling)
		w, h := displaySize(raw)
		return autopost.CompressedImage{
			Bytes:       raw.Bytes,
			MimeType:    raw.MimeType,
			Width:       w,
			Height:      h,
			QualityUsed: 100,
		}, nil
	}

	src, err := imaging.Decode(bytes.NewReader(raw.Bytes), imaging.AutoOrientation(true))
	if err != nil {
		return autopost.CompressedImage{}, fmt.Errorf("decode image: %w", err)
	}
	src = flatten(src)
	bounds := src.Bounds()

	logutil.Debugf("image over budget: bytes=%d ceiling=%d size=%dx%d", len(raw.Bytes), ceiling, bounds.Dx(), bounds.Dy())

	var (
		current      image.Image = src
		currentScale             = 1.0
		smallest                 = len(raw.Bytes)
		attempts     int
	)
	for _, s := range c.Plan(bounds.Dx(), bounds.Dy()) {
		if s.Scale != currentScale {
			w, h := scaled(bounds.Dx(), bounds.Dy(), s.Scale)
			current = imaging.Resize(src, w, h, imaging.Lanczos)
			currentScale = s.Scale
		}
		data, err := c.encoder.Encode(current, s.Quality)
		if err != nil {
			return autopost.CompressedImage{}, fmt.Errorf("encode %s: %w", s, err)
		}
		attempts++
		smallest = min(smallest, len(data))
		logutil.Debugf("testing %s: %d bytes", s, len(data))
		if len(data) <= ceiling {
			b := current.Bounds()
			return autopost.CompressedImage{
				Bytes:       data,
				MimeType:    jpegMimeType,
				Width:       b.Dx(),
				Height:      b.Dy(),
				QualityUsed: s.Quality,
				Resized:     s.Scale != 1,
			}, nil
		}
	}

	return autopost.CompressedImage{}, autopost.CompressionExhaustedError{
		Ceiling:  ceiling,
		Smallest: smallest,
		Attempts: attempts,
	}
}

// displaySize is the size a viewer shows after applying the JPEG EXIF
// orientation. Other formats, and JPEGs that fail to decode, keep the header
// size.
func displaySize(raw autopost.RawImage) (int, int) {
	if raw.MimeType != jpegMimeType {
		return raw.Width, raw.Height
	}
	img, err := imaging.Decode(bytes.NewReader(raw.Bytes), imaging.AutoOrientation(true))
	if err != nil {
		logutil.Debugf("keeping header size %dx%d: %v", raw.Width, raw.Height, err)
		return raw.Width, raw.Height
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// flatten composites transparent pixels over white before JPEG encoding.
func flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
