package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	envHandle      = "AUTOPOST_BLUESKY_HANDLE"
	envAppPassword = "AUTOPOST_BLUESKY_APP_PASSWORD"
	envPDSURL      = "AUTOPOST_BLUESKY_PDS_URL"

	// Legacy secret names from the GitHub Actions workflows.
	envLegacyHandle   = "BSKY_USERNAME"
	envLegacyPassword = "BSKY_APP_PASSWORD"

	providerName   = "bluesky"
	requestTimeout = 30 * time.Second

	postCollection = "app.bsky.feed.post"
)

// DefaultLimits are the app view limits: 300 graphemes, 976 KiB per image, 4 images.
var DefaultLimits = autopost.Limits{
	MaxTextLength: 300,
	MaxImageBytes: 976 * 1024,
	MaxImages:     4,
}

// Config allows the caller to supply defaults prior to reading environment variables.
type Config struct {
	PDSURL string
}

// Client implements autopost.Publisher for Bluesky.
type Client struct {
	client *xrpc.Client
}

// New logs in with an app password and returns a Bluesky publisher.
func New(ctx context.Context, base Config) (*Client, error) {
	cfg, err := loadConfig(base)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: requestTimeout}
	userAgent := "autopost/1"
	xrpcClient := &xrpc.Client{
		Client:    httpClient,
		Host:      cfg.PDSURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, xrpcClient, &atproto.ServerCreateSession_Input{
		Identifier: cfg.Handle,
		Password:   cfg.AppPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	logutil.Debugf("logged in to %s as @%s", cfg.PDSURL, session.Handle)

	xrpcClient.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}

	return &Client{client: xrpcClient}, nil
}

// Name identifies the target.
func (c *Client) Name() string { return providerName }

// Limits returns the Bluesky posting limits.
func (c *Client) Limits() autopost.Limits { return DefaultLimits }

// UploadBlob uploads one image. Alt text lives on the post embed, not the blob.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType, _ string) (autopost.BlobRef, error) {
	resp, err := atproto.RepoUploadBlob(ctx, c.client, bytes.NewReader(data))
	if err != nil {
		return autopost.BlobRef{}, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return autopost.BlobRef{}, fmt.Errorf("upload blob: empty response")
	}
	if resp.Blob.MimeType == "" {
		resp.Blob.MimeType = mimeType
	}
	return autopost.BlobRef{ID: resp.Blob.Ref.String(), Ref: resp.Blob}, nil
}

// CreatePost writes an app.bsky.feed.post record embedding the uploaded images.
func (c *Client) CreatePost(ctx context.Context, post autopost.Post) (autopost.PostRef, error) {
	record, err := buildRecord(post)
	if err != nil {
		return autopost.PostRef{}, err
	}

	out, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       c.client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: record,
		},
	})
	if err != nil {
		return autopost.PostRef{}, fmt.Errorf("create record: %w", err)
	}

	return autopost.PostRef{ID: out.Uri, URI: out.Uri, CID: out.Cid, URL: postURL(out.Uri)}, nil
}

func buildRecord(post autopost.Post) (*bsky.FeedPost, error) {
	record := &bsky.FeedPost{
		LexiconTypeID: postCollection,
		CreatedAt:     post.CreatedAt.UTC().Format(time.RFC3339),
		Text:          post.Text,
	}

	for _, tag := range post.Tags {
		if tag.Start < 0 || tag.End > len(post.Text) || tag.Start >= tag.End {
			return nil, autopost.ValidationError{Component: providerName, Reason: fmt.Sprintf("hashtag span %d-%d outside text", tag.Start, tag.End)}
		}
		record.Facets = append(record.Facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(tag.Start),
				ByteEnd:   int64(tag.End),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{
				{RichtextFacet_Tag: &bsky.RichtextFacet_Tag{
					LexiconTypeID: "app.bsky.richtext.facet#tag",
					Tag:           tag.Tag,
				}},
			},
		})
	}

	if post.ReplyTo != nil {
		root, err := strongRef(post.ReplyTo.Root)
		if err != nil {
			return nil, err
		}
		parent, err := strongRef(post.ReplyTo.Parent)
		if err != nil {
			return nil, err
		}
		record.Reply = &bsky.FeedPost_ReplyRef{Root: root, Parent: parent}
	}

	if len(post.Images) == 0 {
		return record, nil
	}
	embed := &bsky.EmbedImages{LexiconTypeID: "app.bsky.embed.images"}
	for i, img := range post.Images {
		blob, ok := img.Blob.Ref.(*util.LexBlob)
		if !ok || blob == nil {
			return nil, autopost.ValidationError{Component: providerName, Reason: fmt.Sprintf("image %d has no uploaded blob", i+1)}
		}
		image := &bsky.EmbedImages_Image{
			Alt:   img.Alt,
			Image: blob,
		}
		if img.Width > 0 && img.Height > 0 {
			image.AspectRatio = &bsky.EmbedDefs_AspectRatio{
				Width:  int64(img.Width),
				Height: int64(img.Height),
			}
		}
		embed.Images = append(embed.Images, image)
	}
	record.Embed = &bsky.FeedPost_Embed{EmbedImages: embed}
	return record, nil
}

// strongRef requires both the record URI and CID; a reply without the CID is
// rejected by the PDS.
func strongRef(ref autopost.PostRef) (*atproto.RepoStrongRef, error) {
	if ref.URI == "" || ref.CID == "" {
		return nil, autopost.ValidationError{Component: providerName, Reason: fmt.Sprintf("reply target %q has no uri or cid", ref.URI)}
	}
	return &atproto.RepoStrongRef{
		LexiconTypeID: "com.atproto.repo.strongRef",
		Uri:           ref.URI,
		Cid:           ref.CID,
	}, nil
}

// postURL maps at://did/app.bsky.feed.post/rkey to its bsky.app web URL.
func postURL(uri string) string {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", aturi.Authority(), aturi.RecordKey())
}

// ProviderConfig merges defaults with environment-defined values.
type ProviderConfig struct {
	Handle      string
	AppPassword string
	PDSURL      string
}

func loadConfig(base Config) (ProviderConfig, error) {
	cfg := ProviderConfig{
		Handle:      firstEnv(envHandle, envLegacyHandle),
		AppPassword: firstEnv(envAppPassword, envLegacyPassword),
		PDSURL:      firstEnv(envPDSURL),
	}

	if cfg.PDSURL == "" {
		cfg.PDSURL = strings.TrimSpace(base.PDSURL)
	}
	if cfg.PDSURL == "" {
		cfg.PDSURL = "https://bsky.social"
	}
	cfg.Handle = strings.TrimPrefix(cfg.Handle, "@")

	var missing []string
	if cfg.Handle == "" {
		missing = append(missing, envHandle)
	}
	if cfg.AppPassword == "" {
		missing = append(missing, envAppPassword)
	}

	if len(missing) > 0 {
		return ProviderConfig{}, autopost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}
