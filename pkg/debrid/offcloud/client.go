// Package offcloud resolves info hashes through the Offcloud API.
package offcloud

import (
	"context"
	"net/url"
	"path"
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
	BaseURL: "https://offcloud.com",
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
	return "OC"
}

func (c *Client) TestKey(ctx context.Context, apiKey string) error {
	resBytes, err := c.post(ctx, "/api/account/stats", apiKey, nil)
	if err := checkResponse(resBytes, err); err != nil {
		return err
	}
	if gjson.GetBytes(resBytes, "userId").String() == "" {
		return debrid.NewError(debrid.KindAuthInvalid, "offcloud.com: no account for this key")
	}
	return nil
}

func (c *Client) Resolve(ctx context.Context, infoHash, apiKey string, opts debrid.ResolveOptions) (string, error) {
	logger := c.logger.With(zap.String("debridSite", "Offcloud"), zap.String("infoHash", infoHash))

	requestID, err := c.requestID(ctx, infoHash, apiKey, logger)
	if err != nil {
		return "", err
	}

	filesKey := debrid.FilesKey(apiKey, infoHash)
	files, found := c.caches.Files.Get(filesKey)
	if found {
		logger.Debug("Hit cache for file list")
	} else {
		if files, err = c.loadFiles(ctx, requestID, apiKey); err != nil {
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
		logger.Debug("Hit cache for download link")
		return streamURL, nil
	}

	streamURL := debrid.Finalize(ctx, c.fetcher, file.Link)
	c.caches.Links.Set(linkKey, streamURL)
	return streamURL, nil
}

// requestID submits the magnet as a cloud download if this user hasn't
// before and returns the Offcloud request ID.
func (c *Client) requestID(ctx context.Context, infoHash, apiKey string, logger *zap.Logger) (string, error) {
	jobKey := debrid.FilesKey(apiKey, infoHash)
	if requestID, found := c.caches.Jobs.Get(jobKey); found {
		return requestID, nil
	}

	logger.Debug("Adding magnet to Offcloud...")
	data := url.Values{}
	data.Set("url", debrid.MagnetURL(infoHash))
	resBytes, err := c.post(ctx, "/api/cloud", apiKey, data)
	if err := checkResponse(resBytes, err); err != nil {
		return "", err
	}
	requestID := gjson.GetBytes(resBytes, "requestId").String()
	if requestID == "" {
		return "", debrid.NewError(debrid.KindTransient, "no request ID in cloud response from offcloud.com")
	}
	c.caches.Jobs.Set(jobKey, requestID)
	logger.Debug("Finished adding magnet to Offcloud")
	return requestID, nil
}

// loadFiles polls the cloud download status until it's downloaded, then
// explores the request for the direct file URLs. Offcloud doesn't report
// file sizes, so episode picking relies on the file names.
func (c *Client) loadFiles(ctx context.Context, requestID, apiKey string) ([]debrid.File, error) {
	err := debrid.Poll(ctx, func(ctx context.Context) (bool, error) {
		data := url.Values{}
		data.Set("requestId", requestID)
		resBytes, err := c.post(ctx, "/api/cloud/status", apiKey, data)
		if err := checkResponse(resBytes, err); err != nil {
			return false, err
		}
		switch status := gjson.GetBytes(resBytes, "status.status").String(); status {
		case "downloaded":
			return true, nil
		case "error", "canceled":
			return false, debrid.NewError(debrid.KindTransient, "cloud download entered failure state %q", status)
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}

	resBytes, err := c.get(ctx, "/api/cloud/explore/"+requestID, apiKey)
	if err := checkResponse(resBytes, err); err != nil {
		return nil, err
	}
	var files []debrid.File
	for i, fileURL := range gjson.ParseBytes(resBytes).Array() {
		link := fileURL.String()
		if link == "" {
			continue
		}
		files = append(files, debrid.File{
			ID:    link,
			Index: i,
			Name:  fileName(link),
			Link:  link,
		})
	}
	if len(files) == 0 {
		return nil, debrid.NewError(debrid.KindNoFiles, "cloud download exposes no files")
	}
	return files, nil
}

// fileName extracts the decoded file name from a direct file URL.
func fileName(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return path.Base(fileURL)
	}
	return path.Base(parsed.Path)
}

func (c *Client) get(ctx context.Context, urlPath, apiKey string) ([]byte, error) {
	resBytes, _, err := c.fetcher.Do(ctx, "GET", c.baseURL+urlPath+"?key="+url.QueryEscape(apiKey), nil, nil)
	return resBytes, err
}

func (c *Client) post(ctx context.Context, urlPath, apiKey string, data url.Values) ([]byte, error) {
	var body []byte
	headers := map[string]string{}
	if data != nil {
		body = []byte(data.Encode())
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	reqURL := c.baseURL + urlPath + "?key=" + url.QueryEscape(apiKey)
	resBytes, _, err := c.fetcher.Do(ctx, "POST", reqURL, headers, body)
	return resBytes, err
}

// checkResponse maps transport failures and Offcloud's error field to
// classified errors.
func checkResponse(resBytes []byte, err error) error {
	if errMsg := gjson.GetBytes(resBytes, "error").String(); errMsg != "" {
		lower := strings.ToLower(errMsg)
		switch {
		case strings.Contains(lower, "log") || strings.Contains(lower, "key") || strings.Contains(lower, "premium"):
			return debrid.NewError(debrid.KindAuthInvalid, "offcloud.com: %v", errMsg)
		case strings.Contains(lower, "limit"):
			return debrid.NewError(debrid.KindRateLimited, "offcloud.com: %v", errMsg)
		default:
			return debrid.NewError(debrid.KindTransient, "offcloud.com: %v", errMsg)
		}
	}
	if err != nil {
		return debrid.ClassifyFetchErr(err)
	}
	return nil
}
