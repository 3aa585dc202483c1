package autopost

import (
	"context"
	"time"
)

// RawImage is an image exactly as a provider fetched or rendered it.
type RawImage struct {
	Bytes    []byte
	MimeType string
	Width    int
	Height   int
}

// CompressedImage is a RawImage re-encoded (or passed through) to fit a byte ceiling.
type CompressedImage struct {
	Bytes       []byte
	MimeType    string
	Width       int
	Height      int
	QualityUsed int
	Resized     bool
}

// SegmentKind marks whether a caption segment may be dropped.
type SegmentKind int

const (
	Required SegmentKind = iota
	Optional
)

func (k SegmentKind) String() string {
	if k == Optional {
		return "optional"
	}
	return "required"
}

// CaptionSegment is an atomic unit of post text. Optional segments with a
// higher Priority are dropped first when the caption does not fit.
type CaptionSegment struct {
	ID             string
	Text           string
	Priority       int
	Kind           SegmentKind
	IsHashtagBlock bool
}

// HashtagSpan is a byte range of a #tag inside the final caption text.
type HashtagSpan struct {
	SegmentID string
	Start     int
	End       int
	Tag       string
}

// BudgetedCaption is the caption that fits the character ceiling.
type BudgetedCaption struct {
	Text         string
	HashtagSpans []HashtagSpan
	Dropped      []string
}

// PayloadImage pairs a compressed image with its alt text.
type PayloadImage struct {
	Image   CompressedImage
	AltText string
}

// PostPayload is a fully validated post ready to be published.
type PostPayload struct {
	CaptionText  string
	HashtagSpans []HashtagSpan
	Images       []PayloadImage
	CreatedAt    time.Time
}

// Metadata describes where an image came from.
type Metadata struct {
	Title     string
	Copyright string
	Region    string
	Link      string
}

// Item is one fetched image together with its metadata and alt text.
type Item struct {
	Image    RawImage
	Metadata Metadata
	AltText  string
}

// Batch is everything a provider hands to the pipeline for one run.
type Batch struct {
	Items     []Item
	Segments  []CaptionSegment
	MaxImages int
	// Reply is posted as a text-only reply to the main post when set.
	Reply string
}

// Provider supplies images and caption material for one content source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) (*Batch, error)
}

// Limits are the hard constraints of a posting target.
type Limits struct {
	MaxTextLength int
	MaxImageBytes int
	MaxImages     int
}

// Budget is the effective set of ceilings applied to one post.
type Budget struct {
	ByteCeiling    int
	CaptionCeiling int
	MaxImages      int
}

// Clamp narrows the budget to what a target accepts. Zero limits are ignored.
func (b Budget) Clamp(l Limits) Budget {
	out := b
	out.ByteCeiling = minPositive(out.ByteCeiling, l.MaxImageBytes)
	out.CaptionCeiling = minPositive(out.CaptionCeiling, l.MaxTextLength)
	out.MaxImages = minPositive(out.MaxImages, l.MaxImages)
	return out
}

func minPositive(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}

// BlobRef is the handle a target returns for an uploaded image.
type BlobRef struct {
	ID  string
	Ref any
}

// EmbedImage is an uploaded image as referenced from a post.
type EmbedImage struct {
	Alt    string
	Blob   BlobRef
	Width  int
	Height int
}

// Post is the create-post request sent to a target.
type Post struct {
	Text      string
	Tags      []HashtagSpan
	Images    []EmbedImage
	CreatedAt time.Time
	ReplyTo   *ReplyRef
}

// PostRef identifies a created post. ID is the target's native post ID and
// CID the content hash of the record, which only Bluesky returns.
type PostRef struct {
	ID  string
	URI string
	CID string
	URL string
}

// ReplyRef threads a post under Parent in the thread started by Root.
type ReplyRef struct {
	Root   PostRef
	Parent PostRef
}

// ReplyTo returns a reference replying directly to a top-level post.
func ReplyTo(ref PostRef) *ReplyRef {
	return &ReplyRef{Root: ref, Parent: ref}
}

// Publisher is a social network that accepts blob uploads and post records.
type Publisher interface {
	Name() string
	Limits() Limits
	UploadBlob(ctx context.Context, data []byte, mimeType, alt string) (BlobRef, error)
	CreatePost(ctx context.Context, post Post) (PostRef, error)
}

// TextMeasurer is implemented by publishers whose length limit is not counted
// in grapheme clusters.
type TextMeasurer interface {
	MeasureText(s string) int
}
