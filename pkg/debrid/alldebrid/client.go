// Package alldebrid resolves info hashes through the AllDebrid API.
package alldebrid

import (
	"context"
	"math/rand"
	"net/url"
	"strconv"
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
	BaseURL: "https://api.alldebrid.com",
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
	// In case AD blocks requests based on User-Agent
	fakeVersion := strconv.Itoa(rand.Intn(10000))
	userAgent := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0." + fakeVersion + ".149 Safari/537.36"
	return &Client{
		baseURL: opts.BaseURL,
		fetcher: fetch.NewClient(fetch.ClientOptions{Timeout: opts.Timeout, UserAgent: userAgent}, logger),
		caches:  caches,
		logger:  logger,
	}
}

func (c *Client) Tag() string {
	return "AD"
}

func (c *Client) TestKey(ctx context.Context, apiKey string) error {
	resBytes, err := c.get(ctx, "/v4/user", apiKey, nil)
	return checkResponse(resBytes, err)
}

func (c *Client) Resolve(ctx context.Context, infoHash, apiKey string, opts debrid.ResolveOptions) (string, error) {
	logger := c.logger.With(zap.String("debridSite", "AllDebrid"), zap.String("infoHash", infoHash))

	filesKey := debrid.FilesKey(apiKey, infoHash)
	files, found := c.caches.Files.Get(filesKey)
	if found {
		logger.Debug("Hit cache for file list")
	} else {
		var err error
		if files, err = c.loadFiles(ctx, infoHash, apiKey, logger); err != nil {
			return "", err
		}
		c.caches.Files.Set(filesKey, files)
	}

	file, err := debrid.PickFile(infoHash, files, debrid.TotalBytes(files), opts)
	if err != nil {
		return "", err
	}

	linkKey := debrid.LinkKey(apiKey, infoHash, file.ID)
	if streamURL, found := c.caches.Links.Get(linkKey); found {
		logger.Debug("Hit cache for unlocked link")
		return streamURL, nil
	}

	logger.Debug("Unlocking link...")
	resBytes, err := c.get(ctx, "/v4/link/unlock", apiKey, url.Values{"link": {file.Link}})
	if err := checkResponse(resBytes, err); err != nil {
		return "", err
	}
	streamURL := gjson.GetBytes(resBytes, "data.link").String()
	if streamURL == "" {
		return "", debrid.NewError(debrid.KindTransient, "no link in unlock response from api.alldebrid.com")
	}
	logger.Debug("Unlocked link")

	streamURL = debrid.Finalize(ctx, c.fetcher, streamURL)
	c.caches.Links.Set(linkKey, streamURL)
	return streamURL, nil
}

// loadFiles registers the magnet if necessary and polls its status until
// AllDebrid exposes the hoster links.
func (c *Client) loadFiles(ctx context.Context, infoHash, apiKey string, logger *zap.Logger) ([]debrid.File, error) {
	jobKey := debrid.FilesKey(apiKey, infoHash)
	magnetID, found := c.caches.Jobs.Get(jobKey)
	if !found {
		logger.Debug("Adding magnet to AllDebrid...")
		data := url.Values{}
		data.Set("magnets[]", debrid.MagnetURL(infoHash))
		resBytes, err := c.post(ctx, "/v4/magnet/upload", apiKey, data)
		if err := checkResponse(resBytes, err); err != nil {
			return nil, err
		}
		magnetID = gjson.GetBytes(resBytes, "data.magnets.0.id").String()
		if magnetID == "" {
			return nil, debrid.NewError(debrid.KindTransient, "no magnet ID in upload response from api.alldebrid.com")
		}
		c.caches.Jobs.Set(jobKey, magnetID)
		logger.Debug("Finished adding magnet to AllDebrid")
	}

	var files []debrid.File
	err := debrid.Poll(ctx, func(ctx context.Context) (bool, error) {
		resBytes, err := c.get(ctx, "/v4/magnet/status", apiKey, url.Values{"id": {magnetID}})
		if err := checkResponse(resBytes, err); err != nil {
			return false, err
		}
		switch status := gjson.GetBytes(resBytes, "data.magnets.status").String(); status {
		case "Ready":
		case "Error", "Upload fail", "Internal error", "File too big":
			return false, debrid.NewError(debrid.KindTransient, "magnet entered failure state %q", status)
		default:
			return false, nil
		}
		for i, link := range gjson.GetBytes(resBytes, "data.magnets.links").Array() {
			files = append(files, debrid.File{
				ID:    link.Get("link").String(),
				Index: i,
				Name:  link.Get("filename").String(),
				Bytes: link.Get("size").Int(),
				Link:  link.Get("link").String(),
			})
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, debrid.NewError(debrid.KindNoFiles, "magnet exposes no files")
	}
	return files, nil
}

func (c *Client) get(ctx context.Context, path, apiKey string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("agent", "autostream")
	params.Set("apikey", apiKey)
	resBytes, _, err := c.fetcher.Do(ctx, "GET", c.baseURL+path+"?"+params.Encode(), nil, nil)
	return resBytes, err
}

func (c *Client) post(ctx context.Context, path, apiKey string, data url.Values) ([]byte, error) {
	params := url.Values{}
	params.Set("agent", "autostream")
	params.Set("apikey", apiKey)
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	resBytes, _, err := c.fetcher.Do(ctx, "POST", c.baseURL+path+"?"+params.Encode(), headers, []byte(data.Encode()))
	return resBytes, err
}

// checkResponse maps transport failures and AllDebrid's error envelope to
// classified errors. The envelope is present even on non-2xx responses.
func checkResponse(resBytes []byte, err error) error {
	if code := gjson.GetBytes(resBytes, "error.code").String(); code != "" {
		return classifyAPIError(code, gjson.GetBytes(resBytes, "error.message").String())
	}
	if err != nil {
		return debrid.ClassifyFetchErr(err)
	}
	if gjson.GetBytes(resBytes, "status").String() != "success" {
		return debrid.NewError(debrid.KindTransient, "unexpected response status from api.alldebrid.com")
	}
	return nil
}

func classifyAPIError(code, msg string) error {
	switch {
	case strings.HasPrefix(code, "AUTH_"):
		return debrid.NewError(debrid.KindAuthInvalid, "api.alldebrid.com: %v", msg)
	case code == "MAGNET_MUST_BE_PREMIUM", code == "MAGNET_TOO_MANY_ACTIVE", code == "FREE_TRIAL_LIMIT_REACHED":
		return debrid.NewError(debrid.KindBlocked, "api.alldebrid.com: %v", msg)
	case code == "MAGNET_INVALID_URI", code == "MAGNET_NO_URI":
		return debrid.NewError(debrid.KindNoFiles, "api.alldebrid.com: %v", msg)
	default:
		return debrid.NewError(debrid.KindTransient, "api.alldebrid.com: %v", msg)
	}
}
