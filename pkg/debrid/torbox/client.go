// Package torbox resolves info hashes through the TorBox API.
package torbox

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
	BaseURL: "https://api.torbox.app",
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
	return "TB"
}

func (c *Client) TestKey(ctx context.Context, apiKey string) error {
	resBytes, err := c.get(ctx, "/v1/api/user/me", apiKey, nil)
	return checkResponse(resBytes, err)
}

func (c *Client) Resolve(ctx context.Context, infoHash, apiKey string, opts debrid.ResolveOptions) (string, error) {
	logger := c.logger.With(zap.String("debridSite", "TorBox"), zap.String("infoHash", infoHash))

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
		logger.Debug("Hit cache for download link")
		return streamURL, nil
	}

	logger.Debug("Requesting download link...", zap.String("fileID", file.ID))
	params := url.Values{}
	params.Set("token", apiKey)
	params.Set("torrent_id", torrentID)
	params.Set("file_id", file.ID)
	resBytes, err := c.get(ctx, "/v1/api/torrents/requestdl", apiKey, params)
	if err := checkResponse(resBytes, err); err != nil {
		return "", err
	}
	streamURL := gjson.GetBytes(resBytes, "data").String()
	if streamURL == "" {
		return "", debrid.NewError(debrid.KindTransient, "no download URL in requestdl response from api.torbox.app")
	}
	logger.Debug("Got download link")

	streamURL = debrid.Finalize(ctx, c.fetcher, streamURL)
	c.caches.Links.Set(linkKey, streamURL)
	return streamURL, nil
}

// torrentID registers the magnet if this user hasn't before and returns the
// TorBox torrent ID.
func (c *Client) torrentID(ctx context.Context, infoHash, apiKey string, logger *zap.Logger) (string, error) {
	jobKey := debrid.FilesKey(apiKey, infoHash)
	if torrentID, found := c.caches.Jobs.Get(jobKey); found {
		return torrentID, nil
	}

	logger.Debug("Adding magnet to TorBox...")
	data := url.Values{}
	data.Set("magnet", debrid.MagnetURL(infoHash))
	resBytes, err := c.post(ctx, "/v1/api/torrents/createtorrent", apiKey, data)
	if err := checkResponse(resBytes, err); err != nil {
		return "", err
	}
	torrentID := gjson.GetBytes(resBytes, "data.torrent_id").String()
	if torrentID == "" {
		// Torrents that are already in the user's list come back under a
		// different key
		torrentID = gjson.GetBytes(resBytes, "data.queued_id").String()
	}
	if torrentID == "" {
		return "", debrid.NewError(debrid.KindTransient, "no torrent ID in createtorrent response from api.torbox.app")
	}
	c.caches.Jobs.Set(jobKey, torrentID)
	logger.Debug("Finished adding magnet to TorBox")
	return torrentID, nil
}

// loadFiles polls the user's torrent list until the torrent's download has
// finished server-side and the file list is present.
func (c *Client) loadFiles(ctx context.Context, torrentID, apiKey string) ([]debrid.File, error) {
	params := url.Values{}
	params.Set("id", torrentID)
	params.Set("bypass_cache", "true")

	var files []debrid.File
	err := debrid.Poll(ctx, func(ctx context.Context) (bool, error) {
		resBytes, err := c.get(ctx, "/v1/api/torrents/mylist", apiKey, params)
		if err := checkResponse(resBytes, err); err != nil {
			return false, err
		}
		torrent := gjson.GetBytes(resBytes, "data")
		if torrent.IsArray() {
			torrent = torrent.Get("0")
		}
		if !torrent.Exists() {
			return false, debrid.NewError(debrid.KindTransient, "torrent missing from list on api.torbox.app")
		}
		if state := torrent.Get("download_state").String(); state == "failed" || state == "stalled (no seeds)" {
			return false, debrid.NewError(debrid.KindTransient, "torrent entered failure state %q", state)
		}
		if !torrent.Get("download_finished").Bool() || !torrent.Get("download_present").Bool() {
			return false, nil
		}
		for _, f := range torrent.Get("files").Array() {
			files = append(files, debrid.File{
				ID:    f.Get("id").String(),
				Index: int(f.Get("id").Int()),
				Name:  f.Get("name").String(),
				Bytes: f.Get("size").Int(),
			})
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, debrid.NewError(debrid.KindNoFiles, "torrent exposes no files")
	}
	return files, nil
}

func (c *Client) get(ctx context.Context, path, apiKey string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	resBytes, _, err := c.fetcher.Do(ctx, "GET", reqURL, headers, nil)
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

// checkResponse maps transport failures and TorBox's success envelope to
// classified errors.
func checkResponse(resBytes []byte, err error) error {
	if success := gjson.GetBytes(resBytes, "success"); success.Exists() && !success.Bool() {
		errCode := gjson.GetBytes(resBytes, "error").String()
		msg := gjson.GetBytes(resBytes, "detail").String()
		switch {
		case strings.Contains(errCode, "AUTH") || errCode == "BAD_TOKEN":
			return debrid.NewError(debrid.KindAuthInvalid, "api.torbox.app: %v", msg)
		case errCode == "ACTIVE_LIMIT" || errCode == "MONTHLY_LIMIT" || errCode == "COOLDOWN_LIMIT":
			return debrid.NewError(debrid.KindRateLimited, "api.torbox.app: %v", msg)
		case errCode == "PLAN_RESTRICTED_FEATURE":
			return debrid.NewError(debrid.KindBlocked, "api.torbox.app: %v", msg)
		default:
			return debrid.NewError(debrid.KindTransient, "api.torbox.app: %v", msg)
		}
	}
	if err != nil {
		return debrid.ClassifyFetchErr(err)
	}
	return nil
}
