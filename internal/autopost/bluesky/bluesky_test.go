package bluesky

import (
	"testing"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecordFacetsAndEmbed(t *testing.T) {
	text := "\U0001F5BC\uFE0F Daily\n\n#BingWallpaper #日本"
	post := autopost.Post{
		Text: text,
		Tags: []autopost.HashtagSpan{
			{Start: 15, End: 29, Tag: "BingWallpaper"},
			{Start: 30, End: 37, Tag: "日本"},
		},
		Images: []autopost.EmbedImage{
			{Alt: "first", Blob: autopost.BlobRef{ID: "a", Ref: &util.LexBlob{MimeType: "image/jpeg", Size: 10}}, Width: 1920, Height: 1080},
			{Alt: "second", Blob: autopost.BlobRef{ID: "b", Ref: &util.LexBlob{MimeType: "image/png", Size: 20}}},
		},
		CreatedAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.FixedZone("BST", 6*3600)),
	}
	require.Equal(t, "#BingWallpaper", text[15:29])
	require.Equal(t, "#日本", text[30:37])

	record, err := buildRecord(post)
	require.NoError(t, err)

	assert.Equal(t, "app.bsky.feed.post", record.LexiconTypeID)
	assert.Equal(t, "2026-10-18T03:30:00Z", record.CreatedAt)
	require.Len(t, record.Facets, 2)
	assert.Equal(t, int64(15), record.Facets[0].Index.ByteStart)
	assert.Equal(t, int64(29), record.Facets[0].Index.ByteEnd)
	assert.Equal(t, "BingWallpaper", record.Facets[0].Features[0].RichtextFacet_Tag.Tag)
	assert.Equal(t, "日本", record.Facets[1].Features[0].RichtextFacet_Tag.Tag)

	require.NotNil(t, record.Embed)
	require.NotNil(t, record.Embed.EmbedImages)
	imgs := record.Embed.EmbedImages.Images
	require.Len(t, imgs, 2)
	assert.Equal(t, "first", imgs[0].Alt)
	assert.Equal(t, int64(1920), imgs[0].AspectRatio.Width)
	assert.Equal(t, int64(1080), imgs[0].AspectRatio.Height)
	assert.Nil(t, imgs[1].AspectRatio)
	assert.Equal(t, "image/png", imgs[1].Image.MimeType)
}

func TestBuildRecordTextOnly(t *testing.T) {
	record, err := buildRecord(autopost.Post{Text: "hello", CreatedAt: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Nil(t, record.Embed)
	assert.Empty(t, record.Facets)
}

func TestBuildRecordReply(t *testing.T) {
	parent := autopost.PostRef{URI: "at://did:plc:abc123/app.bsky.feed.post/3l3qo2vuowo2b", CID: "bafyreib2rxk3rh6kzwq"}
	record, err := buildRecord(autopost.Post{Text: "20.55% of 2026 is remaining.", CreatedAt: time.Unix(0, 0), ReplyTo: autopost.ReplyTo(parent)})
	require.NoError(t, err)
	require.NotNil(t, record.Reply)
	assert.Equal(t, parent.URI, record.Reply.Root.Uri)
	assert.Equal(t, parent.CID, record.Reply.Root.Cid)
	assert.Equal(t, parent.URI, record.Reply.Parent.Uri)
	assert.Nil(t, record.Embed)

	_, err = buildRecord(autopost.Post{Text: "x", ReplyTo: autopost.ReplyTo(autopost.PostRef{URI: parent.URI})})
	var verr autopost.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBuildRecordRejectsBadInput(t *testing.T) {
	_, err := buildRecord(autopost.Post{Text: "#a", Tags: []autopost.HashtagSpan{{Start: 0, End: 5, Tag: "a"}}})
	var verr autopost.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = buildRecord(autopost.Post{Text: "x", Images: []autopost.EmbedImage{{Blob: autopost.BlobRef{ID: "dry-run-1"}}}})
	assert.ErrorAs(t, err, &verr)
}

func TestPostURL(t *testing.T) {
	assert.Equal(t,
		"https://bsky.app/profile/did:plc:abc123/post/3l3qo2vuowo2b",
		postURL("at://did:plc:abc123/app.bsky.feed.post/3l3qo2vuowo2b"))
	assert.Empty(t, postURL("not a uri"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(envHandle, "")
	t.Setenv(envAppPassword, "")
	t.Setenv(envPDSURL, "")
	t.Setenv(envLegacyHandle, "")
	t.Setenv(envLegacyPassword, "")

	_, err := loadConfig(Config{})
	var merr autopost.MissingEnvError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, []string{envHandle, envAppPassword}, merr.Variables)

	t.Setenv(envLegacyHandle, "@sayed.page")
	t.Setenv(envLegacyPassword, "legacy-pass")
	cfg, err := loadConfig(Config{PDSURL: "https://pds.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "sayed.page", cfg.Handle)
	assert.Equal(t, "legacy-pass", cfg.AppPassword)
	assert.Equal(t, "https://pds.example.com", cfg.PDSURL)

	t.Setenv(envHandle, "autopost.example.com")
	t.Setenv(envAppPassword, " app-pass ")
	cfg, err = loadConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, "autopost.example.com", cfg.Handle)
	assert.Equal(t, "app-pass", cfg.AppPassword)
	assert.Equal(t, "https://bsky.social", cfg.PDSURL)
}
