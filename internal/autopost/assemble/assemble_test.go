package assemble

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	failUpload int // 1-based index of the upload that fails, 0 for none
	failPost   bool

	uploads int
	posts   []autopost.Post
}

func (s *stubPublisher) Name() string { return "stub" }

func (s *stubPublisher) Limits() autopost.Limits { return autopost.Limits{} }

func (s *stubPublisher) UploadBlob(_ context.Context, data []byte, _ string, _ string) (autopost.BlobRef, error) {
	s.uploads++
	if s.uploads == s.failUpload {
		return autopost.BlobRef{}, errors.New("blob rejected")
	}
	return autopost.BlobRef{ID: fmt.Sprintf("blob-%d-%d", s.uploads, len(data))}, nil
}

func (s *stubPublisher) CreatePost(_ context.Context, post autopost.Post) (autopost.PostRef, error) {
	s.posts = append(s.posts, post)
	if s.failPost {
		return autopost.PostRef{}, errors.New("record rejected")
	}
	return autopost.PostRef{URI: "at://did:plc:test/app.bsky.feed.post/1"}, nil
}

func images(n int) []autopost.CompressedImage {
	out := make([]autopost.CompressedImage, n)
	for i := range out {
		out[i] = autopost.CompressedImage{Bytes: make([]byte, i+1), MimeType: "image/jpeg", Width: 1920, Height: 1080, QualityUsed: 90}
	}
	return out
}

func alts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("alt %d", i+1)
	}
	return out
}

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestAssembleRejectsImageCounts(t *testing.T) {
	a := New(&stubPublisher{}, 4)

	_, err := a.Assemble(nil, nil, autopost.BudgetedCaption{})
	var terr autopost.TooManyImagesError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 0, terr.Count)

	_, err = a.Assemble(images(5), alts(5), autopost.BudgetedCaption{})
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 5, terr.Count)
	assert.Equal(t, 4, terr.Max)

	_, err = New(&stubPublisher{}, 1).Assemble(images(2), alts(2), autopost.BudgetedCaption{})
	require.ErrorAs(t, err, &terr)
}

func TestAssembleRejectsAltMismatch(t *testing.T) {
	_, err := New(&stubPublisher{}, 4).Assemble(images(2), alts(1), autopost.BudgetedCaption{})
	var merr autopost.ImageAltMismatchError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 2, merr.Images)
	assert.Equal(t, 1, merr.Alts)
}

func TestAssembleBuildsPayload(t *testing.T) {
	caption := autopost.BudgetedCaption{
		Text:         "hello #world",
		HashtagSpans: []autopost.HashtagSpan{{SegmentID: "tags", Start: 6, End: 12, Tag: "world"}},
	}
	payload, err := New(&stubPublisher{}, 0, WithClock(func() time.Time { return fixedNow })).Assemble(images(3), alts(3), caption)
	require.NoError(t, err)
	assert.Equal(t, "hello #world", payload.CaptionText)
	assert.Equal(t, caption.HashtagSpans, payload.HashtagSpans)
	assert.Equal(t, fixedNow, payload.CreatedAt)
	require.Len(t, payload.Images, 3)
	assert.Equal(t, "alt 2", payload.Images[1].AltText)
	assert.Len(t, payload.Images[1].Image.Bytes, 2)
}

func TestPublishUploadsThenPostsOnce(t *testing.T) {
	pub := &stubPublisher{}
	caption := autopost.BudgetedCaption{Text: "#a", HashtagSpans: []autopost.HashtagSpan{{Start: 0, End: 2, Tag: "a"}}}

	ref, err := New(pub, 4, WithClock(func() time.Time { return fixedNow })).AssembleAndPublish(context.Background(), images(3), alts(3), caption)
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:test/app.bsky.feed.post/1", ref.URI)

	assert.Equal(t, 3, pub.uploads)
	require.Len(t, pub.posts, 1)
	post := pub.posts[0]
	assert.Equal(t, "#a", post.Text)
	assert.Equal(t, caption.HashtagSpans, post.Tags)
	assert.Equal(t, fixedNow, post.CreatedAt)
	require.Len(t, post.Images, 3)
	for i, img := range post.Images {
		assert.Equal(t, fmt.Sprintf("blob-%d-%d", i+1, i+1), img.Blob.ID)
		assert.Equal(t, fmt.Sprintf("alt %d", i+1), img.Alt)
		assert.Equal(t, 1920, img.Width)
	}
}

func TestPublishAbortsOnUploadFailure(t *testing.T) {
	pub := &stubPublisher{failUpload: 2}

	_, err := New(pub, 4).AssembleAndPublish(context.Background(), images(3), alts(3), autopost.BudgetedCaption{Text: "x"})
	var uerr autopost.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 1, uerr.Index)
	assert.Equal(t, "stub", uerr.Target)
	assert.Equal(t, 2, pub.uploads)
	assert.Empty(t, pub.posts, "no post may be created after a failed upload")
}

func TestPublishReportsPostCreationFailure(t *testing.T) {
	pub := &stubPublisher{failPost: true}

	_, err := New(pub, 4).AssembleAndPublish(context.Background(), images(1), alts(1), autopost.BudgetedCaption{Text: "x"})
	var perr autopost.PostCreationError
	require.ErrorAs(t, err, &perr)
	assert.Len(t, pub.posts, 1)
}

func TestPublishHonorsCancelledContext(t *testing.T) {
	pub := &stubPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(pub, 4).AssembleAndPublish(ctx, images(2), alts(2), autopost.BudgetedCaption{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pub.uploads)
	assert.Empty(t, pub.posts)
}
