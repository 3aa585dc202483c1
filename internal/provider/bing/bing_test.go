package bing

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/autopost/caption"
	"github.com/blacktop/autopost/internal/provider/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testClient() *fetch.Client {
	return fetch.New(fetch.Options{Retries: 0, RetryWaitMin: time.Millisecond})
}

func TestFetch(t *testing.T) {
	img := pngBytes(t, 32, 18)
	mux := http.NewServeMux()
	mux.HandleFunc("/HPImageArchive.aspx", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ja-JP", r.URL.Query().Get("mkt"))
		assert.Equal(t, "1920", r.URL.Query().Get("uhdwidth"))
		_, _ = w.Write([]byte(`{"images":[{"url":"/th?id=OHR.Fuji_UHD.jpg&rf=LaDigue_UHD.jpg&pid=hp&w=1920","copyright":"Mount Fuji, Japan (© Photographer)","copyrightlink":"https://example.com"}]}`))
	})
	mux.HandleFunc("/th", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OHR.Fuji_UHD.jpg", r.URL.Query().Get("id"))
		assert.Empty(t, r.URL.Query().Get("rf"))
		_, _ = w.Write(img)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(Config{Region: "ja-JP", BaseURL: srv.URL}, testClient())
	assert.Equal(t, "bing", p.Name())

	batch, err := p.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, 1, batch.MaxImages)

	item := batch.Items[0]
	assert.Equal(t, img, item.Image.Bytes)
	assert.Equal(t, "image/png", item.Image.MimeType)
	assert.Equal(t, 32, item.Image.Width)
	assert.Equal(t, "Mount Fuji, Japan (© Photographer)", item.AltText)
	assert.Equal(t, "ja-JP", item.Metadata.Region)

	out, err := caption.Build(batch.Segments, caption.DefaultCeiling)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "🌍 Region: ja-JP")
	assert.Len(t, out.HashtagSpans, 5)
}

func TestFetchEmptyArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}, testClient()).Fetch(context.Background())
	var ferr autopost.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "bing", ferr.Provider)
}

func TestRegionSelection(t *testing.T) {
	a := New(Config{Seed: 42}, testClient())
	b := New(Config{Seed: 42}, testClient())
	for range 5 {
		ra := a.region()
		assert.Equal(t, ra, b.region())
		assert.Contains(t, Regions, ra)
	}

	fixed := New(Config{Region: "en-GB"}, testClient())
	assert.Equal(t, "en-GB", fixed.region())
}

func TestSegmentsDropRegionFirst(t *testing.T) {
	segs := Segments("A very long copyright line about a lighthouse on a rocky coast at dusk, somewhere in Portugal (© Someone/Getty Images)", "en-ROW")
	full, err := caption.Build(segs, 1000)
	require.NoError(t, err)

	out, err := caption.Build(segs, caption.Length(full.Text)-1)
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, out.Dropped)
	assert.NotContains(t, out.Text, "Region")
	assert.Contains(t, out.Text, "#BingWallpaper")
}
