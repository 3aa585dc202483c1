// Package assemble turns compressed images and a budgeted caption into a single
// post and publishes it with all-or-nothing visibility.
package assemble

import (
	"context"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
)

// DefaultMaxImages is the image limit for multi-image sources.
const DefaultMaxImages = 4

// Assembler is the only component that talks to a Publisher.
type Assembler struct {
	publisher autopost.Publisher
	maxImages int
	now       func() time.Time
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithClock overrides the post creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// New constructs an Assembler. A non-positive maxImages uses DefaultMaxImages.
func New(publisher autopost.Publisher, maxImages int, opts ...Option) *Assembler {
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	a := &Assembler{
		publisher: publisher,
		maxImages: maxImages,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble validates the inputs and builds the payload. It performs no I/O.
func (a *Assembler) Assemble(images []autopost.CompressedImage, altTexts []string, caption autopost.BudgetedCaption) (*autopost.PostPayload, error) {
	if len(images) == 0 || len(images) > a.maxImages {
		return nil, autopost.TooManyImagesError{Count: len(images), Max: a.maxImages}
	}
	if len(images) != len(altTexts) {
		return nil, autopost.ImageAltMismatchError{Images: len(images), Alts: len(altTexts)}
	}

	payload := &autopost.PostPayload{
		CaptionText:  caption.Text,
		HashtagSpans: caption.HashtagSpans,
		Images:       make([]autopost.PayloadImage, len(images)),
		CreatedAt:    a.now().UTC(),
	}
	for i := range images {
		payload.Images[i] = autopost.PayloadImage{Image: images[i], AltText: altTexts[i]}
	}
	return payload, nil
}

// Publish uploads every image in order, then issues exactly one create-post
// call. If any upload fails no post is created; blobs already uploaded are
// left for the target to garbage collect.
func (a *Assembler) Publish(ctx context.Context, payload *autopost.PostPayload) (autopost.PostRef, error) {
	name := a.publisher.Name()

	embeds := make([]autopost.EmbedImage, 0, len(payload.Images))
	for i, img := range payload.Images {
		if err := ctx.Err(); err != nil {
			return autopost.PostRef{}, autopost.UploadError{Target: name, Index: i, Err: err}
		}
		logutil.Debugf("uploading image %d/%d to %s: bytes=%d mime=%s", i+1, len(payload.Images), name, len(img.Image.Bytes), img.Image.MimeType)
		blob, err := a.publisher.UploadBlob(ctx, img.Image.Bytes, img.Image.MimeType, img.AltText)
		if err != nil {
			return autopost.PostRef{}, autopost.UploadError{Target: name, Index: i, Err: err}
		}
		embeds = append(embeds, autopost.EmbedImage{
			Alt:    img.AltText,
			Blob:   blob,
			Width:  img.Image.Width,
			Height: img.Image.Height,
		})
	}

	ref, err := a.publisher.CreatePost(ctx, autopost.Post{
		Text:      payload.CaptionText,
		Tags:      payload.HashtagSpans,
		Images:    embeds,
		CreatedAt: payload.CreatedAt,
	})
	if err != nil {
		return autopost.PostRef{}, autopost.PostCreationError{Target: name, Err: err}
	}
	return ref, nil
}

// AssembleAndPublish runs Assemble followed by Publish.
func (a *Assembler) AssembleAndPublish(ctx context.Context, images []autopost.CompressedImage, altTexts []string, caption autopost.BudgetedCaption) (autopost.PostRef, error) {
	payload, err := a.Assemble(images, altTexts, caption)
	if err != nil {
		return autopost.PostRef{}, err
	}
	return a.Publish(ctx, payload)
}
