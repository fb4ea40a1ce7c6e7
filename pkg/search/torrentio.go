package search

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/fetch"
	"github.com/keypop3750/autostream/pkg/stream"
)

type TorrentioOptions struct {
	BaseURL string
	Timeout time.Duration
	// Path options inserted between the base URL and /stream,
	// for example "sort=qualitysize|qualityfilter=scr,cam"
	PathOptions string
}

var DefaultTorrentioOpts = TorrentioOptions{
	BaseURL: "https://torrentio.strem.fun",
	Timeout: 5 * time.Second,
}

var _ Finder = (*TorrentioClient)(nil)

// TorrentioClient queries a Torrentio-style indexer. The response is a
// Stremio stream list whose title text carries size, seeders and language
// hints that the classifier extracts later.
type TorrentioClient struct {
	baseURL     string
	pathOptions string
	fetcher     *fetch.Client
	logger      *zap.Logger
}

func NewTorrentioClient(opts TorrentioOptions, logger *zap.Logger) *TorrentioClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTorrentioOpts.BaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTorrentioOpts.Timeout
	}
	return &TorrentioClient{
		baseURL:     opts.BaseURL,
		pathOptions: opts.PathOptions,
		fetcher:     fetch.NewClient(fetch.ClientOptions{Timeout: opts.Timeout}, logger),
		logger:      logger,
	}
}

func (c *TorrentioClient) Origin() stream.Origin {
	return stream.OriginTorrentio
}

func (c *TorrentioClient) Find(ctx context.Context, req Request) ([]stream.Candidate, error) {
	reqURL := c.baseURL
	if c.pathOptions != "" {
		reqURL += "/" + c.pathOptions
	}
	reqURL += fmt.Sprintf("/stream/%s/%s.json", req.Type, req.ID())

	resBody, _, err := c.fetcher.Do(ctx, "GET", reqURL, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("Couldn't GET %v: %w", reqURL, err)
	}

	streams := gjson.GetBytes(resBody, "streams").Array()
	if len(streams) == 0 {
		return nil, nil
	}

	candidates := make([]stream.Candidate, 0, len(streams))
	for _, s := range streams {
		infoHash := s.Get("infoHash").String()
		streamURL := s.Get("url").String()
		if infoHash == "" && streamURL == "" {
			continue
		}

		candidate := stream.Candidate{
			InfoHash:  infoHash,
			URL:       streamURL,
			FileIndex: -1,
			Name:      s.Get("name").String(),
			Title:     s.Get("title").String(),
			Filename:  s.Get("behaviorHints.filename").String(),
		}
		if fileIdx := s.Get("fileIdx"); fileIdx.Exists() {
			candidate.FileIndex = int(fileIdx.Int())
		}
		// Structured fields win over text extraction when the indexer sets them
		if seeders := s.Get("seeders"); seeders.Exists() {
			candidate.Seeders = int(seeders.Int())
		}
		if size := s.Get("behaviorHints.videoSize"); size.Exists() {
			candidate.Bytes = size.Int()
		}
		if infoHash != "" {
			var trackers []string
			for _, source := range s.Get("sources").Array() {
				if src := source.String(); len(src) > 8 && src[:8] == "tracker:" {
					trackers = append(trackers, src[8:])
				}
			}
			candidate.MagnetURL = createMagnetURL(infoHash, candidate.Filename, trackers)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
