// Package search contains the upstream catalog provider clients and the
// aggregating client that fans out to them.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/stream"
)

// ContentType is the kind of content a request is about.
type ContentType string

const (
	TypeMovie  ContentType = "movie"
	TypeSeries ContentType = "series"
)

// Request describes one listing lookup.
type Request struct {
	Type   ContentType
	IMDBID string
	// Only set for series
	Season  int
	Episode int
	// Restricts the fan-out to a single source when non-empty
	// ("torrentio", "tpb" or "nuvio")
	Only string
	// The direct-host provider is opt-in
	IncludeNuvio bool
	// Cookie value for cookie-requiring direct-host streams
	NuvioCookie string
}

// ID returns the media client's composite ID form.
func (r Request) ID() string {
	if r.Type == TypeSeries {
		return fmt.Sprintf("%s:%d:%d", r.IMDBID, r.Season, r.Episode)
	}
	return r.IMDBID
}

// Finder is one upstream provider client.
type Finder interface {
	Find(ctx context.Context, req Request) ([]stream.Candidate, error)
	Origin() stream.Origin
}

type ClientOptions struct {
	// Overall deadline for the whole fan-out
	Timeout time.Duration
}

var DefaultClientOpts = ClientOptions{
	Timeout: 6 * time.Second,
}

// Client fans out to the enabled providers concurrently and merges their
// results. Provider failures are absorbed: a provider that errors or runs
// past the deadline contributes an empty list, logged but never fatal.
type Client struct {
	torrentio Finder
	tpb       Finder
	nuvio     Finder
	timeout   time.Duration
	logger    *zap.Logger
}

func NewClient(opts ClientOptions, torrentio, tpb, nuvio Finder, logger *zap.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultClientOpts.Timeout
	}
	return &Client{
		torrentio: torrentio,
		tpb:       tpb,
		nuvio:     nuvio,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Find merges the provider results in the fixed order torrentio → tpb →
// nuvio, so that the candidate list observed downstream is deterministic
// for a given input set. Duplicate info hashes keep their first occurrence.
func (c *Client) Find(ctx context.Context, req Request) []stream.Candidate {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	finders := c.enabledFinders(req)
	results := make([][]stream.Candidate, len(finders))
	errs := make([]error, len(finders))

	var wg sync.WaitGroup
	wg.Add(len(finders))
	for i, finder := range finders {
		go func(i int, finder Finder) {
			defer wg.Done()
			candidates, err := finder.Find(ctx, req)
			if err != nil {
				errs[i] = fmt.Errorf("%v: %w", finder.Origin(), err)
				return
			}
			for j := range candidates {
				candidates[j].Origin = finder.Origin()
			}
			results[i] = candidates
		}(i, finder)
	}
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		c.logger.Warn("Some providers failed", zap.String("errors", err.Error()), zap.String("id", req.IMDBID))
	}

	var merged []stream.Candidate
	seenHashes := map[string]struct{}{}
	for _, candidates := range results {
		for _, candidate := range candidates {
			if !candidate.Usable() {
				continue
			}
			if candidate.InfoHash != "" {
				hash := strings.ToLower(candidate.InfoHash)
				if _, found := seenHashes[hash]; found {
					continue
				}
				seenHashes[hash] = struct{}{}
			}
			merged = append(merged, candidate)
		}
	}
	return merged
}

func (c *Client) enabledFinders(req Request) []Finder {
	switch req.Only {
	case "torrentio":
		return []Finder{c.torrentio}
	case "tpb":
		return []Finder{c.tpb}
	case "nuvio":
		return []Finder{c.nuvio}
	}
	finders := []Finder{c.torrentio, c.tpb}
	if req.IncludeNuvio {
		finders = append(finders, c.nuvio)
	}
	return finders
}
