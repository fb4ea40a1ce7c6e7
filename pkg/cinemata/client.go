// Package cinemata looks up content names for prettifying stream titles.
package cinemata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/fetch"
)

// Meta is the name and year of a movie or series.
type Meta struct {
	Name string
	Year int
}

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
}

var DefaultClientOpts = ClientOptions{
	BaseURL: "https://v3-cinemeta.strem.io",
	Timeout: 5 * time.Second,
}

type Client struct {
	baseURL string
	fetcher *fetch.Client
	// Names barely change, so results are cached for 30 days
	cache  *gocache.Cache
	logger *zap.Logger
}

func NewClient(opts ClientOptions, cache *gocache.Cache, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultClientOpts.BaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultClientOpts.Timeout
	}
	return &Client{
		baseURL: opts.BaseURL,
		fetcher: fetch.NewClient(fetch.ClientOptions{Timeout: opts.Timeout}, logger),
		cache:   cache,
		logger:  logger,
	}
}

const cacheAge = 30 * 24 * time.Hour

// GetMeta returns the name and year for an IMDb ID.
// contentType is "movie" or "series".
func (c *Client) GetMeta(ctx context.Context, contentType, imdbID string) (Meta, error) {
	logger := c.logger.With(zap.String("imdbID", imdbID))

	cacheKey := contentType + "-" + imdbID
	if metaIface, found := c.cache.Get(cacheKey); found {
		if meta, ok := metaIface.(Meta); ok {
			logger.Debug("Hit cache for meta, returning result")
			return meta, nil
		}
		logger.Error("Meta cache item couldn't be cast into Meta", zap.String("cacheItemType", fmt.Sprintf("%T", metaIface)))
	}

	reqURL := c.baseURL + "/meta/" + contentType + "/" + imdbID + ".json"
	resBody, _, err := c.fetcher.Do(ctx, "GET", reqURL, nil, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("Couldn't GET %v: %w", reqURL, err)
	}

	name := gjson.GetBytes(resBody, "meta.name").String()
	if name == "" {
		return Meta{}, fmt.Errorf("Couldn't find name in Cinemeta response")
	}
	var year int
	if yearString := gjson.GetBytes(resBody, "meta.year").String(); yearString != "" {
		// Series years look like "2011-2019", movies like "2008"
		if len(yearString) >= 4 {
			if year, err = strconv.Atoi(yearString[:4]); err != nil {
				logger.Warn("Couldn't convert year to int", zap.String("year", yearString))
			}
		}
	}

	meta := Meta{Name: name, Year: year}
	c.cache.Set(cacheKey, meta, cacheAge)
	return meta, nil
}
