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

type NuvioOptions struct {
	BaseURL string
	Timeout time.Duration
}

var DefaultNuvioOpts = NuvioOptions{
	BaseURL: "https://nuviostreams.hayd.uk",
	Timeout: 5 * time.Second,
}

var _ Finder = (*NuvioClient)(nil)

// NuvioClient queries the direct-host indexer. Its entries carry direct
// HTTP URLs instead of info hashes; some hosts additionally require the
// media client to present a user cookie when fetching the stream.
type NuvioClient struct {
	baseURL string
	fetcher *fetch.Client
	logger  *zap.Logger
}

func NewNuvioClient(opts NuvioOptions, logger *zap.Logger) *NuvioClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultNuvioOpts.BaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultNuvioOpts.Timeout
	}
	return &NuvioClient{
		baseURL: opts.BaseURL,
		fetcher: fetch.NewClient(fetch.ClientOptions{Timeout: opts.Timeout}, logger),
		logger:  logger,
	}
}

func (c *NuvioClient) Origin() stream.Origin {
	return stream.OriginNuvio
}

func (c *NuvioClient) Find(ctx context.Context, req Request) ([]stream.Candidate, error) {
	reqURL := fmt.Sprintf("%s/stream/%s/%s.json", c.baseURL, req.Type, req.ID())
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
		streamURL := s.Get("url").String()
		if streamURL == "" {
			continue
		}
		candidate := stream.Candidate{
			URL:       streamURL,
			FileIndex: -1,
			Name:      s.Get("name").String(),
			Title:     s.Get("title").String(),
			Filename:  s.Get("behaviorHints.filename").String(),
		}
		if size := s.Get("size"); size.Exists() {
			candidate.Bytes = size.Int()
		}
		// Hosts that need a user cookie announce it via a proxy header
		// requirement; the orchestrator fills in the user's cookie value.
		if s.Get("behaviorHints.proxyHeaders.request.Cookie").Exists() ||
			s.Get("cookieRequired").Bool() {
			candidate.RequiresCookie = true
		}
		if req.NuvioCookie != "" && candidate.RequiresCookie {
			candidate.ProxyHeaders = map[string]string{"Cookie": "ui=" + req.NuvioCookie}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
