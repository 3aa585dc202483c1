package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blacktop/autopost/internal/autopost"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	envServer       = "AUTOPOST_MASTODON_SERVER"
	envAccessToken  = "AUTOPOST_MASTODON_ACCESS_TOKEN"
	envClientID     = "AUTOPOST_MASTODON_CLIENT_ID"
	envClientSecret = "AUTOPOST_MASTODON_CLIENT_SECRET"

	providerName   = "mastodon"
	requestTimeout = 30 * time.Second
)

// DefaultLimits match a stock Mastodon instance.
var DefaultLimits = autopost.Limits{
	MaxTextLength: 500,
	MaxImageBytes: 8 << 20,
	MaxImages:     4,
}

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string
	AccessToken  string
	ClientID     string
	ClientSecret string
}

// Client implements autopost.Publisher for Mastodon.
type Client struct {
	client *mastodonapi.Client
}

// New constructs a Mastodon publisher based on environment configuration.
func New(ctx context.Context) (*Client, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	mastodonClient := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	mastodonClient.Timeout = requestTimeout

	return &Client{client: mastodonClient}, nil
}

// Name identifies the target.
func (c *Client) Name() string { return providerName }

// Limits returns the Mastodon posting limits.
func (c *Client) Limits() autopost.Limits { return DefaultLimits }

// UploadBlob uploads one media attachment. Mastodon stores alt text on the
// attachment itself.
func (c *Client) UploadBlob(ctx context.Context, data []byte, _ string, alt string) (autopost.BlobRef, error) {
	attachment, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        bytes.NewReader(data),
		Description: alt,
	})
	if err != nil {
		return autopost.BlobRef{}, fmt.Errorf("upload media: %w", err)
	}
	return autopost.BlobRef{ID: string(attachment.ID), Ref: attachment.ID}, nil
}

// CreatePost publishes a status with the uploaded attachments. Hashtags in the
// text are linked by the server, so spans are not sent.
func (c *Client) CreatePost(ctx context.Context, post autopost.Post) (autopost.PostRef, error) {
	mediaIDs, err := mediaIDs(post.Images)
	if err != nil {
		return autopost.PostRef{}, err
	}

	toot := &mastodonapi.Toot{
		Status:   post.Text,
		MediaIDs: mediaIDs,
	}
	if post.ReplyTo != nil {
		if post.ReplyTo.Parent.ID == "" {
			return autopost.PostRef{}, autopost.ValidationError{Component: providerName, Reason: "reply target has no status id"}
		}
		toot.InReplyToID = mastodonapi.ID(post.ReplyTo.Parent.ID)
	}

	status, err := c.client.PostStatus(ctx, toot)
	if err != nil {
		return autopost.PostRef{}, fmt.Errorf("post status: %w", err)
	}

	return autopost.PostRef{ID: string(status.ID), URI: status.URI, URL: status.URL}, nil
}

// MeasureText counts code points, the unit Mastodon's 500 character limit uses.
func (c *Client) MeasureText(s string) int { return Length(s) }

// Length counts s the way a Mastodon server does for plain text.
func Length(s string) int { return utf8.RuneCountInString(s) }

func mediaIDs(images []autopost.EmbedImage) ([]mastodonapi.ID, error) {
	ids := make([]mastodonapi.ID, 0, len(images))
	for i, img := range images {
		id, ok := img.Blob.Ref.(mastodonapi.ID)
		if !ok || id == "" {
			return nil, autopost.ValidationError{Component: providerName, Reason: fmt.Sprintf("image %d has no media attachment", i+1)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Server:       strings.TrimSpace(os.Getenv(envServer)),
		AccessToken:  strings.TrimSpace(os.Getenv(envAccessToken)),
		ClientID:     strings.TrimSpace(os.Getenv(envClientID)),
		ClientSecret: strings.TrimSpace(os.Getenv(envClientSecret)),
	}

	var missing []string
	if cfg.Server == "" {
		missing = append(missing, envServer)
	}
	if cfg.AccessToken == "" {
		missing = append(missing, envAccessToken)
	}

	if len(missing) > 0 {
		return Config{}, autopost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}
