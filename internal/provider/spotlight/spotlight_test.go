package spotlight

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/autopost/caption"
	"github.com/blacktop/autopost/internal/provider/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func selectionBody(t *testing.T, base string, ads ...map[string]any) []byte {
	t.Helper()
	type entry struct {
		Item string `json:"item"`
	}
	var items []entry
	for _, ad := range ads {
		inner, err := json.Marshal(map[string]any{"ad": ad})
		require.NoError(t, err)
		items = append(items, entry{Item: strings.ReplaceAll(string(inner), "BASE", base)})
	}
	body, err := json.Marshal(map[string]any{"batchrsp": map[string]any{"items": items}})
	require.NoError(t, err)
	return body
}

func newServer(t *testing.T, img []byte, ads ...map[string]any) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/api/selection", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "88000820", r.URL.Query().Get("placement"))
		assert.Equal(t, "US", r.URL.Query().Get("country"))
		_, _ = w.Write(selectionBody(t, srv.URL, ads...))
	})
	mux.HandleFunc("/img/good", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.microsoft.com/", r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(img)
	})
	mux.HandleFunc("/img/tiny", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(img[:32])
	})
	mux.HandleFunc("/img/html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("<html>"), 200))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func ad(asset, title string) map[string]any {
	return map[string]any{
		"landscapeImage": map[string]any{"asset": asset},
		"title":          title,
		"copyright":      "© " + title + " photographer",
	}
}

func TestFetchSkipsInvalidImages(t *testing.T) {
	img := pngBytes(t)
	srv := newServer(t, img,
		ad("BASE/img/good", "Lake Bled"),
		ad("BASE/img/tiny", "Too small"),
		ad("BASE/img/html", "Not an image"),
		map[string]any{"portraitImage": map[string]any{"asset": "BASE/img/good"}, "title": "Portrait only"},
	)

	p := New(Config{Country: "US", MinBytes: 64, BaseURL: srv.URL}, fetch.New(fetch.Options{}))
	batch, err := p.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Items, 2)
	assert.Equal(t, 4, batch.MaxImages)
	assert.Equal(t, "Lake Bled", batch.Items[0].Metadata.Title)
	assert.Equal(t, "Lake Bled - © Lake Bled photographer", batch.Items[0].AltText)
	assert.Equal(t, "Portrait only", batch.Items[1].Metadata.Title)
	assert.Equal(t, "Portrait only - N/A", batch.Items[1].AltText)

	ids := make([]string, 0, len(batch.Segments))
	for _, s := range batch.Segments {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"header", "titles-1", "titles-2", "region", "hashtags"}, ids)
}

func TestFetchNoValidImages(t *testing.T) {
	srv := newServer(t, pngBytes(t), ad("BASE/img/tiny", "Too small"))

	_, err := New(Config{Country: "US", MinBytes: 64, BaseURL: srv.URL}, fetch.New(fetch.Options{})).Fetch(context.Background())
	var ferr autopost.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Error(), "no valid images")
}

func TestSegmentsDropOrder(t *testing.T) {
	titles := []string{
		"A quiet morning over the terraced rice fields of Bali",
		"Sunset behind the sea stacks of the Twelve Apostles",
		"Northern lights dancing above a frozen lake in Lapland",
		"Autumn colours along a winding mountain road in Japan",
	}
	segs := caption.ApplyDropOrder(Segments(titles, "AU"), []string{"region", "hashtags", "titles"})

	out, err := caption.Build(segs, caption.DefaultCeiling)
	require.NoError(t, err)
	assert.LessOrEqual(t, caption.Length(out.Text), caption.DefaultCeiling)
	assert.Equal(t, "region", out.Dropped[0])
	assert.Contains(t, out.Text, titles[0])

	tight, err := caption.Build(segs, caption.Length("🖼️ Windows Spotlight Images\n\n📝 "+titles[0]))
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "hashtags", "titles-4", "titles-3", "titles-2"}, tight.Dropped)
}
