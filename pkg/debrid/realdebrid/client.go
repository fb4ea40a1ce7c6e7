// Package realdebrid resolves info hashes through the RealDebrid API.
package realdebrid

import (
	"context"
	"net/url"
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
	BaseURL: "https://api.real-debrid.com",
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
	return "RD"
}

func (c *Client) TestKey(ctx context.Context, apiKey string) error {
	resBytes, err := c.get(ctx, "/rest/1.0/user", apiKey)
	return checkResponse(resBytes, err)
}

func (c *Client) Resolve(ctx context.Context, infoHash, apiKey string, opts debrid.ResolveOptions) (string, error) {
	logger := c.logger.With(zap.String("debridSite", "RealDebrid"), zap.String("infoHash", infoHash))

	torrentID, err := c.torrentID(ctx, infoHash, apiKey, logger)
	if err != nil {
		return "", err
	}

	filesKey := debrid.FilesKey(apiKey, infoHash)
	files, found := c.caches.Files.Get(filesKey)
	if found {
		logger.Debug("Hit cache for file list")
	} else {
		if files, err = c.loadFiles(ctx, torrentID, apiKey); err != nil {
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

	// Selecting a single file starts the download of exactly that file, so
	// the torrent's link list ends up with one entry.
	logger.Debug("Selecting file...", zap.String("fileID", file.ID))
	data := url.Values{}
	data.Set("files", file.ID)
	resBytes, err := c.post(ctx, "/rest/1.0/torrents/selectFiles/"+torrentID, apiKey, data)
	if err := checkResponse(resBytes, err); err != nil {
		return "", err
	}

	var link string
	err = debrid.Poll(ctx, func(ctx context.Context) (bool, error) {
		resBytes, err := c.get(ctx, "/rest/1.0/torrents/info/"+torrentID, apiKey)
		if err := checkResponse(resBytes, err); err != nil {
			return false, err
		}
		switch status := gjson.GetBytes(resBytes, "status").String(); status {
		case "downloaded":
		case "magnet_error", "error", "virus", "dead":
			return false, debrid.NewError(debrid.KindTransient, "torrent entered failure state %q", status)
		default:
			return false, nil
		}
		link = gjson.GetBytes(resBytes, "links.0").String()
		if link == "" {
			return false, debrid.NewError(debrid.KindNoFiles, "no link in torrent info from api.real-debrid.com")
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}

	logger.Debug("Unrestricting link...")
	data = url.Values{}
	data.Set("link", link)
	resBytes, err = c.post(ctx, "/rest/1.0/unrestrict/link", apiKey, data)
	if err := checkResponse(resBytes, err); err != nil {
		return "", err
	}
	streamURL := gjson.GetBytes(resBytes, "download").String()
	if streamURL == "" {
		return "", debrid.NewError(debrid.KindTransient, "no download URL in unrestrict response from api.real-debrid.com")
	}
	logger.Debug("Unrestricted link")

	streamURL = debrid.Finalize(ctx, c.fetcher, streamURL)
	c.caches.Links.Set(linkKey, streamURL)
	return streamURL, nil
}

// torrentID registers the magnet if this user hasn't before and returns the
// RealDebrid torrent ID.
func (c *Client) torrentID(ctx context.Context, infoHash, apiKey string, logger *zap.Logger) (string, error) {
	jobKey := debrid.FilesKey(apiKey, infoHash)
	if torrentID, found := c.caches.Jobs.Get(jobKey); found {
		return torrentID, nil
	}

	logger.Debug("Adding magnet to RealDebrid...")
	data := url.Values{}
	data.Set("magnet", debrid.MagnetURL(infoHash))
	resBytes, err := c.post(ctx, "/rest/1.0/torrents/addMagnet", apiKey, data)
	if err := checkResponse(resBytes, err); err != nil {
		return "", err
	}
	torrentID := gjson.GetBytes(resBytes, "id").String()
	if torrentID == "" {
		return "", debrid.NewError(debrid.KindTransient, "no torrent ID in addMagnet response from api.real-debrid.com")
	}
	c.caches.Jobs.Set(jobKey, torrentID)
	logger.Debug("Finished adding magnet to RealDebrid")
	return torrentID, nil
}

// loadFiles polls the torrent info until the metadata with the file list is
// available. That's usually the case on the first request already.
func (c *Client) loadFiles(ctx context.Context, torrentID, apiKey string) ([]debrid.File, error) {
	var files []debrid.File
	err := debrid.Poll(ctx, func(ctx context.Context) (bool, error) {
		resBytes, err := c.get(ctx, "/rest/1.0/torrents/info/"+torrentID, apiKey)
		if err := checkResponse(resBytes, err); err != nil {
			return false, err
		}
		switch status := gjson.GetBytes(resBytes, "status").String(); status {
		case "magnet_error", "error", "virus", "dead":
			return false, debrid.NewError(debrid.KindTransient, "torrent entered failure state %q", status)
		case "magnet_conversion", "queued":
			return false, nil
		}
		for i, f := range gjson.GetBytes(resBytes, "files").Array() {
			files = append(files, debrid.File{
				ID:    f.Get("id").String(),
				Index: i,
				Name:  f.Get("path").String(),
				Bytes: f.Get("bytes").Int(),
			})
		}
		return len(files) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, debrid.NewError(debrid.KindNoFiles, "torrent exposes no files")
	}
	return files, nil
}

func (c *Client) get(ctx context.Context, path, apiKey string) ([]byte, error) {
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	resBytes, _, err := c.fetcher.Do(ctx, "GET", c.baseURL+path, headers, nil)
	return resBytes, err
}

func (c *Client) post(ctx context.Context, path, apiKey string, data url.Values) ([]byte, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
		"Content-Type":  "application/x-www-form-urlencoded",
	}
	resBytes, _, err := c.fetcher.Do(ctx, "POST", c.baseURL+path, headers, []byte(data.Encode()))
	return resBytes, err
}

// checkResponse maps transport failures and RealDebrid's error codes to
// classified errors.
func checkResponse(resBytes []byte, err error) error {
	if errorCode := gjson.GetBytes(resBytes, "error_code"); errorCode.Exists() {
		msg := gjson.GetBytes(resBytes, "error").String()
		switch errorCode.Int() {
		case 8, 9, 10, 12, 13, 14:
			// bad_token and its permission siblings
			return debrid.NewError(debrid.KindAuthInvalid, "api.real-debrid.com: %v", msg)
		case 34:
			return debrid.NewError(debrid.KindRateLimited, "api.real-debrid.com: %v", msg)
		case 35:
			return debrid.NewError(debrid.KindBlocked, "api.real-debrid.com: %v", msg)
		default:
			return debrid.NewError(debrid.KindTransient, "api.real-debrid.com: %v", msg)
		}
	}
	if err != nil {
		return debrid.ClassifyFetchErr(err)
	}
	return nil
}
