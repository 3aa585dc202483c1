package twitter

import (
	"testing"

	"github.com/blacktop/autopost/internal/autopost"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		name     string
		mime     string
		data     []byte
		want     uploadtypes.MediaType
		category uploadtypes.MediaCategory
	}{
		{name: "jpeg", mime: "image/jpeg", want: uploadtypes.MediaTypeJPEG, category: uploadtypes.MediaCategoryTweetImage},
		{name: "png", mime: "image/png", want: uploadtypes.MediaTypePNG, category: uploadtypes.MediaCategoryTweetImage},
		{name: "gif", mime: "IMAGE/GIF", want: uploadtypes.MediaTypeGIF, category: uploadtypes.MediaCategoryTweetGIF},
		{name: "sniffed", mime: "", data: []byte("\x89PNG\r\n\x1a\n0000"), want: uploadtypes.MediaTypePNG, category: uploadtypes.MediaCategoryTweetImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, category, err := resolveMediaType(tt.mime, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.category, category)
		})
	}

	_, _, err := resolveMediaType("text/plain", []byte("hello"))
	var verr autopost.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "")
	t.Setenv(envAccessToken, "token")
	t.Setenv(envAccessSecret, "")

	_, err := loadConfigFromEnv()
	var merr autopost.MissingEnvError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, []string{envAPISecret, envAccessSecret}, merr.Variables)

	t.Setenv(envAPISecret, "secret")
	t.Setenv(envAccessSecret, "token-secret")
	cfg, err := loadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "token-secret", cfg.AccessSecret)
}

func TestTweetURL(t *testing.T) {
	assert.Equal(t, "https://x.com/i/web/status/123", tweetURL("123"))
	assert.Empty(t, tweetURL(""))
}

func TestWeightedLength(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{name: "ascii", in: "hello", want: 5},
		{name: "cjk", in: "日本の風景", want: 10},
		{name: "emoji with selector", in: "\U0001F5BC\uFE0F Bing", want: 7},
		{name: "flag", in: "\U0001F1EF\U0001F1F5", want: 2},
		{name: "family", in: "\U0001F468\u200D\U0001F469\u200D\U0001F467", want: 2},
		{name: "bengali", in: "বাংলা", want: 5},
		{name: "em dash", in: "a\u2014b", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeightedLength(tt.in))
		})
	}
	assert.Equal(t, 4, (&Client{}).MeasureText("日本"))
}
