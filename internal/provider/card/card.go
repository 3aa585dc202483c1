// Package card renders the text cards posted by the generated-image providers.
package card

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultSize is the card edge in pixels when Options leave it zero.
	DefaultSize = 1080

	// pixelScale is the upscale factor for the built-in bitmap face.
	pixelScale = 4
	margin     = 0.08
)

var (
	background = color.NRGBA{R: 0x0f, G: 0x17, B: 0x2a, A: 0xff}
	foreground = color.NRGBA{R: 0xe7, G: 0xe9, B: 0xea, A: 0xff}
	secondary  = color.NRGBA{R: 0x71, G: 0x76, B: 0x7b, A: 0xff}
	accent     = color.NRGBA{R: 0x00, G: 0x85, B: 0xff, A: 0xff}
	track      = color.NRGBA{R: 0x33, G: 0x41, B: 0x55, A: 0xff}
)

// Style picks the color a line is drawn in.
type Style int

const (
	Primary Style = iota
	Secondary
	Accent
)

func (s Style) color() color.Color {
	switch s {
	case Secondary:
		return secondary
	case Accent:
		return accent
	default:
		return foreground
	}
}

// Line is one centered line of text. An empty Text leaves a blank line.
type Line struct {
	Text  string
	Style Style
}

// Options controls the card geometry.
type Options struct {
	Width  int
	Height int
	// Face is drawn at full resolution. Nil uses the built-in 7x13 bitmap
	// face, rendered small and upscaled with nearest neighbour so it stays crisp.
	Face font.Face
	// ShowProgress draws a bar under the text filled to Progress percent.
	ShowProgress bool
	Progress     float64
}

// Render draws lines centered on a dark card and encodes it as PNG. Lines
// wider than the card are word wrapped.
func Render(lines []Line, opts Options) ([]byte, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultSize
	}
	if opts.Height <= 0 {
		opts.Height = DefaultSize
	}
	face, scale := opts.Face, 1
	if face == nil {
		face, scale = basicfont.Face7x13, pixelScale
	}

	w, h := max(opts.Width/scale, 64), max(opts.Height/scale, 64)
	canvas := imaging.New(w, h, background)
	maxWidth := w - 2*int(float64(w)*margin)

	var wrapped []Line
	for _, line := range lines {
		for _, text := range Wrap(face, line.Text, maxWidth) {
			wrapped = append(wrapped, Line{Text: text, Style: line.Style})
		}
	}

	lineHeight := face.Metrics().Height.Ceil() * 5 / 4
	block := lineHeight * len(wrapped)
	if opts.ShowProgress {
		block += lineHeight * 2
	}
	y := (h-block)/2 + face.Metrics().Ascent.Ceil()
	for _, line := range wrapped {
		if line.Text != "" {
			d := &font.Drawer{Dst: canvas, Src: image.NewUniform(line.Style.color()), Face: face}
			d.Dot = fixed.P((w-d.MeasureString(line.Text).Ceil())/2, y)
			d.DrawString(line.Text)
		}
		y += lineHeight
	}

	if opts.ShowProgress {
		pct := max(0, min(100, opts.Progress))
		barW, barH := w*3/4, max(h/24, 4)
		barX, barY := (w-barW)/2, y
		canvas = imaging.Paste(canvas, imaging.New(barW, barH, track), image.Pt(barX, barY))
		if fill := int(float64(barW) * pct / 100); fill > 0 {
			canvas = imaging.Paste(canvas, imaging.New(fill, barH, accent), image.Pt(barX, barY))
		}
	}

	var out image.Image = canvas
	if scale != 1 {
		out = imaging.Resize(canvas, opts.Width, opts.Height, imaging.NearestNeighbor)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// Wrap splits text on spaces into lines no wider than maxWidth pixels. A
// single word wider than maxWidth gets a line of its own.
func Wrap(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var (
		out     []string
		current = words[0]
	)
	for _, word := range words[1:] {
		candidate := current + " " + word
		if font.MeasureString(face, candidate).Ceil() <= maxWidth {
			current = candidate
			continue
		}
		out = append(out, current)
		current = word
	}
	return append(out, current)
}

// LoadFace reads a TrueType or OpenType font file and returns a face of size
// points at 72 DPI.
func LoadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	return ParseFace(data, size)
}

// ParseFace is LoadFace for font data already in memory.
func ParseFace(data []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}
