// Package premiumize resolves info hashes through the Premiumize API.
//
// Premiumize hydrates cached torrents synchronously via its directdl
// endpoint, so there's no job registration and no polling.
package premiumize

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/debrid"
	"github.com/keypop3750/autostream/pkg/fetch"
)

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
}

var DefaultClientOpts = ClientOptions{
	BaseURL: "https://www.premiumize.me/api",
	Timeout: 5 * time.Second,
}

var _ debrid.Resolver = (*Client)(nil)

type Client struct {
	baseURL string
	fetcher *fetch.Client
	caches  debrid.Caches
	logger  *zap.Logger
}

func NewClient(opts ClientOptions, caches debrid.Caches, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultClientOpts.BaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultClientOpts.Timeout
	}
	return &Client{
		baseURL: opts.BaseURL,
		fetcher: fetch.NewClient(fetch.ClientOptions{Timeout: opts.Timeout}, logger),
		caches:  caches,
		logger:  logger,
	}
}

func (c *Client) Tag() string {
	return "PM"
}

func (c *Client) TestKey(ctx context.Context, apiKey string) error {
	resBytes, err := c.post(ctx, "/account/info", apiKey, nil)
	return checkResponse(resBytes, err)
}

func (c *Client) Resolve(ctx context.Context, infoHash, apiKey string, opts debrid.ResolveOptions) (string, error) {
	logger := c.logger.With(zap.String("debridSite", "Premiumize"), zap.String("infoHash", infoHash))

	filesKey := debrid.FilesKey(apiKey, infoHash)
	files, found := c.caches.Files.Get(filesKey)
	if found {
		logger.Debug("Hit cache for file list")
	} else {
		logger.Debug("Requesting direct download links...")
		data := url.Values{}
		data.Set("src", debrid.MagnetURL(infoHash))
		resBytes, err := c.post(ctx, "/transfer/directdl", apiKey, data)
		if err := checkResponse(resBytes, err); err != nil {
			return "", err
		}
		for i, content := range gjson.GetBytes(resBytes, "content").Array() {
			link := content.Get("stream_link").String()
			if link == "" {
				link = content.Get("link").String()
			}
			files = append(files, debrid.File{
				ID:    link,
				Index: i,
				Name:  content.Get("path").String(),
				Bytes: content.Get("size").Int(),
				Link:  link,
			})
		}
		if len(files) == 0 {
			return "", debrid.NewError(debrid.KindNoFiles, "torrent isn't cached on Premiumize")
		}
		c.caches.Files.Set(filesKey, files)
		logger.Debug("Got direct download links")
	}

	file, err := debrid.PickFile(infoHash, files, debrid.TotalBytes(files), opts)
	if err != nil {
		return "", err
	}

	linkKey := debrid.LinkKey(apiKey, infoHash, file.ID)
	if streamURL, found := c.caches.Links.Get(linkKey); found {
		logger.Debug("Hit cache for direct link")
		return streamURL, nil
	}

	streamURL := debrid.Finalize(ctx, c.fetcher, file.Link)
	c.caches.Links.Set(linkKey, streamURL)
	return streamURL, nil
}

func (c *Client) post(ctx context.Context, path, apiKey string, data url.Values) ([]byte, error) {
	params := url.Values{}
	params.Set("apikey", apiKey)
	var body []byte
	headers := map[string]string{}
	if data != nil {
		body = []byte(data.Encode())
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	resBytes, _, err := c.fetcher.Do(ctx, "POST", c.baseURL+path+"?"+params.Encode(), headers, body)
	return resBytes, err
}

// checkResponse maps transport failures and Premiumize's status envelope to
// classified errors. Premiumize responds with HTTP 200 even for failures.
func checkResponse(resBytes []byte, err error) error {
	if err != nil {
		return debrid.ClassifyFetchErr(err)
	}
	if gjson.GetBytes(resBytes, "status").String() == "error" {
		msg := gjson.GetBytes(resBytes, "message").String()
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "api key") || strings.Contains(lower, "apikey") || strings.Contains(lower, "customer"):
			return debrid.NewError(debrid.KindAuthInvalid, "premiumize.me: %v", msg)
		case strings.Contains(lower, "limit"):
			return debrid.NewError(debrid.KindRateLimited, "premiumize.me: %v", msg)
		case strings.Contains(lower, "not cached") || strings.Contains(lower, "not found"):
			return debrid.NewError(debrid.KindNoFiles, "premiumize.me: %v", msg)
		default:
			return debrid.NewError(debrid.KindTransient, "premiumize.me: %v", msg)
		}
	}
	return nil
}
