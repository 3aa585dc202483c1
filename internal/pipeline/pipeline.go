// Package pipeline runs one publishing cycle: fetch, compress, caption, and
// publish to every configured target.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/autopost/assemble"
	"github.com/blacktop/autopost/internal/autopost/caption"
	"github.com/blacktop/autopost/internal/autopost/compress"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/blacktop/autopost/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options configures a Runner.
type Options struct {
	Budget    autopost.Budget
	Compress  compress.Config
	DropOrder []string
	// Metrics is optional.
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Runner publishes one provider's batch to a set of targets.
type Runner struct {
	provider   autopost.Provider
	publishers []autopost.Publisher
	compressor *compress.Compressor
	opts       Options
}

// New returns a Runner.
func New(provider autopost.Provider, publishers []autopost.Publisher, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		provider:   provider,
		publishers: publishers,
		compressor: compress.New(opts.Compress),
		opts:       opts,
	}
}

// TargetResult is the outcome for one target. A failed reply does not fail
// the target; it is reported in ReplyErr.
type TargetResult struct {
	Target   string
	Ref      autopost.PostRef
	Reply    autopost.PostRef
	Caption  autopost.BudgetedCaption
	Images   []autopost.CompressedImage
	Err      error
	ReplyErr error
}

// Result summarizes a run.
type Result struct {
	RunID    string
	Provider string
	Targets  []TargetResult
}

// Run fetches once and publishes to each target in order. A failing target
// does not stop the others; all failures are joined into the returned error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Provider: r.provider.Name()}
	start := time.Now()
	if r.opts.Metrics != nil {
		defer func() {
			r.opts.Metrics.RunDuration.WithLabelValues(res.Provider).Observe(time.Since(start).Seconds())
		}()
	}
	logutil.Infof("run %s: fetching from %s", res.RunID, res.Provider)

	batch, err := r.fetch(ctx)
	if err != nil {
		for _, pub := range r.publishers {
			r.record(res.Provider, pub.Name(), err)
		}
		return res, err
	}
	logutil.Infof("run %s: fetched %d image(s)", res.RunID, len(batch.Items))

	cache := make(map[int][]autopost.CompressedImage)
	var errs []error
	for _, pub := range r.publishers {
		tr := r.publish(ctx, res.RunID, batch, pub, cache)
		res.Targets = append(res.Targets, tr)
		r.record(res.Provider, tr.Target, tr.Err)
		if tr.Err != nil {
			logutil.Errorf("run %s: %s failed: %v", res.RunID, tr.Target, tr.Err)
			errs = append(errs, fmt.Errorf("%s: %w", tr.Target, tr.Err))
			continue
		}
		logutil.Infof("run %s: posted to %s %s", res.RunID, tr.Target, tr.Ref.URL)
	}
	return res, errors.Join(errs...)
}

func (r *Runner) fetch(ctx context.Context) (*autopost.Batch, error) {
	batch, err := r.provider.Fetch(ctx)
	if err != nil {
		var ferr autopost.FetchError
		if errors.As(err, &ferr) {
			return nil, err
		}
		return nil, autopost.FetchError{Provider: r.provider.Name(), Err: err}
	}
	if batch == nil || len(batch.Items) == 0 {
		return nil, autopost.FetchError{Provider: r.provider.Name(), Err: errors.New("no images")}
	}
	return batch, nil
}

func (r *Runner) publish(ctx context.Context, runID string, batch *autopost.Batch, pub autopost.Publisher, cache map[int][]autopost.CompressedImage) TargetResult {
	tr := TargetResult{Target: pub.Name()}

	budget := r.opts.Budget.Clamp(pub.Limits())
	maxImages := budget.MaxImages
	if batch.MaxImages > 0 {
		maxImages = min(maxImages, batch.MaxImages)
	}
	logutil.Debugf("run %s: %s budget bytes=%d caption=%d images=%d", runID, tr.Target, budget.ByteCeiling, budget.CaptionCeiling, maxImages)

	images, ok := cache[budget.ByteCeiling]
	if !ok {
		var err error
		if images, err = r.compressAll(ctx, batch.Items, budget.ByteCeiling); err != nil {
			tr.Err = err
			return tr
		}
		cache[budget.ByteCeiling] = images
	}
	tr.Images = images

	builder := caption.Builder{}
	if m, ok := pub.(autopost.TextMeasurer); ok {
		builder.Measure = m.MeasureText
	}
	built, err := builder.Build(caption.ApplyDropOrder(batch.Segments, r.opts.DropOrder), budget.CaptionCeiling)
	if err != nil {
		tr.Err = err
		return tr
	}
	tr.Caption = built
	if len(built.Dropped) > 0 {
		logutil.Infof("run %s: %s caption dropped %v", runID, tr.Target, built.Dropped)
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordDropped(built.Dropped)
		}
	}

	alts := make([]string, len(batch.Items))
	for i, item := range batch.Items {
		alts[i] = item.AltText
	}

	tr.Ref, tr.Err = assemble.New(pub, maxImages, assemble.WithClock(r.opts.Now)).AssembleAndPublish(ctx, images, alts, built)
	if tr.Err == nil && batch.Reply != "" {
		tr.Reply, tr.ReplyErr = r.reply(ctx, pub, builder, tr.Ref, batch.Reply, budget.CaptionCeiling)
		if tr.ReplyErr != nil {
			logutil.Warnf("run %s: %s reply failed: %v", runID, tr.Target, tr.ReplyErr)
		}
	}
	return tr
}

// reply threads a text-only post under parent.
func (r *Runner) reply(ctx context.Context, pub autopost.Publisher, builder caption.Builder, parent autopost.PostRef, text string, ceiling int) (autopost.PostRef, error) {
	built, err := builder.Build([]autopost.CaptionSegment{{ID: "reply", Text: text, Kind: autopost.Required}}, ceiling)
	if err != nil {
		return autopost.PostRef{}, err
	}
	ref, err := pub.CreatePost(ctx, autopost.Post{
		Text:      built.Text,
		CreatedAt: r.opts.Now().UTC(),
		ReplyTo:   autopost.ReplyTo(parent),
	})
	if err != nil {
		return autopost.PostRef{}, autopost.PostCreationError{Target: pub.Name(), Err: err}
	}
	return ref, nil
}

// compressAll fits every image under ceiling in parallel, keeping input order.
func (r *Runner) compressAll(ctx context.Context, items []autopost.Item, ceiling int) ([]autopost.CompressedImage, error) {
	out := make([]autopost.CompressedImage, len(items))
	g, gctx := errgroup.WithContext(ctx)

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := r.compressor.Compress(item.Image, ceiling)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			out[i] = img
			logutil.Debugf("image %d: %d -> %d bytes (quality %d, resized %t)", i+1, len(item.Image.Bytes), len(img.Bytes), img.QualityUsed, img.Resized)
			if r.opts.Metrics != nil {
				r.opts.Metrics.RecordCompression(img.QualityUsed, img.Resized)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) record(provider, target string, err error) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordRun(provider, target, err)
	}
}
