package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/rivo/uniseg"
)

const (
	envAPIKey       = "AUTOPOST_TWITTER_CONSUMER_KEY"
	envAPISecret    = "AUTOPOST_TWITTER_CONSUMER_SECRET"
	envAccessToken  = "AUTOPOST_TWITTER_ACCESS_TOKEN"
	envAccessSecret = "AUTOPOST_TWITTER_ACCESS_TOKEN_SECRET"
	envDebug        = "AUTOPOST_TWITTER_DEBUG"

	providerName = "twitter"

	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"
)

var httpTimeout = 30 * time.Second

// DefaultLimits for a standard (non-premium) X account.
var DefaultLimits = autopost.Limits{
	MaxTextLength: 280,
	MaxImageBytes: 5 << 20,
	MaxImages:     4,
}

// Config captures the credentials required for OAuth 1.0a user-context requests.
type Config struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// Client implements autopost.Publisher for X (Twitter).
type Client struct {
	api *gotwi.Client
}

// New constructs an X publisher using gotwi and OAuth 1.0a credentials.
func New(ctx context.Context) (*Client, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cfg.AccessToken,
		OAuthTokenSecret:     cfg.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                os.Getenv(envDebug) == "1" || logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !client.IsReady() {
		return nil, fmt.Errorf("twitter client not ready")
	}

	return &Client{api: client}, nil
}

// Name returns the target identifier.
func (c *Client) Name() string { return providerName }

// Limits returns the X posting limits.
func (c *Client) Limits() autopost.Limits { return DefaultLimits }

// UploadBlob runs the chunked INIT/APPEND/FINALIZE upload in a single segment
// and attaches alt text through the metadata endpoint.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType, alt string) (autopost.BlobRef, error) {
	mediaType, category, err := resolveMediaType(mimeType, data)
	if err != nil {
		return autopost.BlobRef{}, err
	}

	logutil.Debugf("initialize upload: media_type=%s bytes=%d", mediaType, len(data))
	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(data),
		MediaCategory: category,
	})
	if err != nil {
		return autopost.BlobRef{}, fmt.Errorf("initialize upload: %w", unwrapGotwiError(err))
	}
	if err := partialError(initRes.Errors); err != nil {
		return autopost.BlobRef{}, fmt.Errorf("initialize upload: %w", err)
	}
	mediaID := initRes.Data.MediaID

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	appendRes, err := upload.Append(ctx, c.api, appendIn)
	if err != nil {
		return autopost.BlobRef{}, fmt.Errorf("append upload: %w", unwrapGotwiError(err))
	}
	if err := partialError(appendRes.Errors); err != nil {
		return autopost.BlobRef{}, fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return autopost.BlobRef{}, fmt.Errorf("finalize upload: %w", unwrapGotwiError(err))
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return autopost.BlobRef{}, fmt.Errorf("finalize upload: %w", err)
	}

	info := finalizeRes.Data.ProcessingInfo
	logutil.Debugf("finalize state=%s media_id=%s", info.State, mediaID)
	switch info.State {
	case "", resources.ProcessingInfoStateSucceeded:
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		// still images finish within one check interval
		timer := time.NewTimer(time.Duration(info.CheckAfterSecs) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return autopost.BlobRef{}, ctx.Err()
		case <-timer.C:
		}
	default:
		return autopost.BlobRef{}, fmt.Errorf("media processing failed: state=%s", info.State)
	}

	if alt = strings.TrimSpace(alt); alt != "" {
		if err := c.setAltText(ctx, mediaID, alt); err != nil {
			return autopost.BlobRef{}, err
		}
	}

	return autopost.BlobRef{ID: mediaID, Ref: mediaID}, nil
}

// CreatePost publishes a tweet referencing the uploaded media IDs.
func (c *Client) CreatePost(ctx context.Context, post autopost.Post) (autopost.PostRef, error) {
	input := &managetweettypes.CreateInput{
		Text: gotwi.String(post.Text),
	}
	if post.ReplyTo != nil {
		if post.ReplyTo.Parent.ID == "" {
			return autopost.PostRef{}, autopost.ValidationError{Component: providerName, Reason: "reply target has no tweet id"}
		}
		input.Reply = &managetweettypes.CreateInputReply{InReplyToTweetID: post.ReplyTo.Parent.ID}
	}
	if len(post.Images) > 0 {
		ids := make([]string, 0, len(post.Images))
		for _, img := range post.Images {
			ids = append(ids, img.Blob.ID)
		}
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: ids}
	}

	logutil.Debugf("posting tweet: media_count=%d", len(post.Images))
	out, err := managetweet.Create(ctx, c.api, input)
	if err != nil {
		return autopost.PostRef{}, fmt.Errorf("post tweet: %w", unwrapGotwiError(err))
	}

	id := gotwi.StringValue(out.Data.ID)
	return autopost.PostRef{ID: id, URI: id, URL: tweetURL(id)}, nil
}

// MeasureText returns the weighted length X checks against the 280 limit.
func (c *Client) MeasureText(s string) int { return WeightedLength(s) }

// WeightedLength counts s with the twitter-text v3 weights: code points in
// the Latin and general punctuation ranges weigh 1, everything else 2, and an
// emoji sequence weighs 2 no matter how many code points it has.
func WeightedLength(s string) int {
	n := 0
	state := -1
	for len(s) > 0 {
		var cluster string
		cluster, s, _, state = uniseg.FirstGraphemeClusterInString(s, state)
		if isEmojiCluster(cluster) {
			n += 2
			continue
		}
		for _, r := range cluster {
			n += runeWeight(r)
		}
	}
	return n
}

func runeWeight(r rune) int {
	switch {
	case r <= 4351, r >= 8192 && r <= 8205, r >= 8208 && r <= 8223, r >= 8242 && r <= 8247:
		return 1
	default:
		return 2
	}
}

func isEmojiCluster(cluster string) bool {
	for _, r := range cluster {
		switch {
		case r == 0x200d, r == 0xfe0f, r == 0x20e3:
			return true
		case r >= 0x1f000 && r <= 0x1faff:
			return true
		}
	}
	return false
}

func tweetURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://x.com/i/web/status/" + id
}

func (c *Client) setAltText(ctx context.Context, mediaID, altText string) error {
	params := &metadataParameters{
		mediaID: mediaID,
		altText: altText,
	}

	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")

	if err := c.api.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &metadataResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", unwrapGotwiError(err))
	}
	return nil
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		APIKey:       strings.TrimSpace(os.Getenv(envAPIKey)),
		APISecret:    strings.TrimSpace(os.Getenv(envAPISecret)),
		AccessToken:  strings.TrimSpace(os.Getenv(envAccessToken)),
		AccessSecret: strings.TrimSpace(os.Getenv(envAccessSecret)),
	}

	var missing []string
	for _, kv := range []struct{ name, value string }{
		{envAPIKey, cfg.APIKey},
		{envAPISecret, cfg.APISecret},
		{envAccessToken, cfg.AccessToken},
		{envAccessSecret, cfg.AccessSecret},
	} {
		if kv.value == "" {
			missing = append(missing, kv.name)
		}
	}

	if len(missing) > 0 {
		return Config{}, autopost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}

// resolveMediaType prefers the declared MIME type and falls back to sniffing.
func resolveMediaType(mimeType string, data []byte) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	candidates := []string{strings.ToLower(mimeType)}
	if len(data) > 0 {
		candidates = append(candidates, http.DetectContentType(data))
	}
	for _, detected := range candidates {
		switch {
		case strings.Contains(detected, "jpeg"):
			return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
		case strings.Contains(detected, "png"):
			return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
		case strings.Contains(detected, "gif"):
			return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
		case strings.Contains(detected, "webp"):
			return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
		}
	}

	return "", "", autopost.ValidationError{Component: providerName, Reason: fmt.Sprintf("unsupported image type %q", mimeType)}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, fmt.Sprintf("%s", *pe.ResourceType))
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		return errors.New(summarizeGotwiError(gwErr))
	}
	return err
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}
	return strings.Join(parts, "; ")
}

type metadataParameters struct {
	mediaID     string
	altText     string
	accessToken string
}

func (p *metadataParameters) SetAccessToken(token string) { p.accessToken = token }

func (p *metadataParameters) AccessToken() string { return p.accessToken }

func (p *metadataParameters) ResolveEndpoint(endpointBase string) string { return endpointBase }

func (p *metadataParameters) Body() (io.Reader, error) {
	var body struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}
	body.MediaID = p.mediaID
	body.AltText.Text = p.altText

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *metadataParameters) ParameterMap() map[string]string { return map[string]string{} }

type metadataResponse struct{}

func (metadataResponse) HasPartialError() bool { return false }
