package autopost

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rivo/uniseg"
)

// DryRun is a Publisher that prints what would be published instead of posting.
type DryRun struct {
	name    string
	limits  Limits
	out     io.Writer
	measure func(string) int

	mu      sync.Mutex
	uploads int
	posts   int
}

// DryRunOption customizes a DryRun publisher.
type DryRunOption func(*DryRun)

// WithMeasure makes the dry run count caption length the way the simulated
// target does.
func WithMeasure(measure func(string) int) DryRunOption {
	return func(d *DryRun) { d.measure = measure }
}

// NewDryRun wraps a target's name and limits for simulated publishing.
func NewDryRun(name string, limits Limits, out io.Writer, opts ...DryRunOption) *DryRun {
	d := &DryRun{name: name, limits: limits, out: out}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies the simulated target.
func (d *DryRun) Name() string { return d.name }

// Limits returns the simulated target's limits.
func (d *DryRun) Limits() Limits { return d.limits }

// MeasureText counts s with the simulated target's measure, graphemes by default.
func (d *DryRun) MeasureText(s string) int {
	if d.measure != nil {
		return d.measure(s)
	}
	return uniseg.GraphemeClusterCount(s)
}

// UploadBlob prints the upload and returns a synthetic handle.
func (d *DryRun) UploadBlob(_ context.Context, data []byte, mimeType, alt string) (BlobRef, error) {
	d.mu.Lock()
	d.uploads++
	n := d.uploads
	d.mu.Unlock()

	fmt.Fprintf(d.out, "[dry-run] would upload image %d to %s: %d bytes %s (alt: %q)\n", n, d.name, len(data), mimeType, alt)
	return BlobRef{ID: fmt.Sprintf("dry-run-%d", n)}, nil
}

// CreatePost prints the post that would be created.
func (d *DryRun) CreatePost(_ context.Context, post Post) (PostRef, error) {
	d.mu.Lock()
	d.posts++
	id := fmt.Sprintf("dry-run-post-%d", d.posts)
	d.mu.Unlock()

	if post.ReplyTo != nil {
		fmt.Fprintf(d.out, "[dry-run] would reply on %s to %s: %q\n", d.name, post.ReplyTo.Parent.ID, post.Text)
	} else {
		fmt.Fprintf(d.out, "[dry-run] would post to %s: %q\n", d.name, post.Text)
	}
	for _, tag := range post.Tags {
		fmt.Fprintf(d.out, "[dry-run] tag #%s bytes %d-%d\n", tag.Tag, tag.Start, tag.End)
	}
	return PostRef{ID: id}, nil
}
