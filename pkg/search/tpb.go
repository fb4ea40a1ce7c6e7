package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"

	"github.com/keypop3750/autostream/pkg/fetch"
	"github.com/keypop3750/autostream/pkg/stream"
)

// Trackers the TPB web UI adds to each magnet built from an apibay info hash.
var trackersTPB = []string{
	"udp://tracker.opentrackr.org:1337",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://tracker.bittor.pw:1337/announce",
	"udp://public.popcorn-tracker.org:6969/announce",
	"udp://tracker.dler.org:6969/announce",
	"udp://exodus.desync.com:6969",
	"udp://open.demonii.com:1337/announce",
}

type TPBOptions struct {
	BaseURL string
	Timeout time.Duration
	// SOCKS5 proxy address for accessing the API via the TOR network
	SocksProxyAddr string
}

var DefaultTPBOpts = TPBOptions{
	BaseURL: "https://apibay.org",
	Timeout: 5 * time.Second,
}

var _ Finder = (*TPBClient)(nil)

// TPBClient queries an apibay-style TPB API. Results carry structured
// seeders and size, and the info hash is turned into a magnet URL with the
// usual TPB tracker set.
type TPBClient struct {
	baseURL string
	fetcher *fetch.Client
	logger  *zap.Logger
}

func NewTPBClient(opts TPBOptions, logger *zap.Logger) (*TPBClient, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTPBOpts.BaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTPBOpts.Timeout
	}
	var fetcher *fetch.Client
	if opts.SocksProxyAddr != "" {
		httpClient, err := newSOCKS5httpClient(opts.Timeout, opts.SocksProxyAddr)
		if err != nil {
			return nil, fmt.Errorf("Couldn't create HTTP client with SOCKS5 proxy: %v", err)
		}
		fetcher = fetch.NewClientWithHTTPClient(httpClient, fetch.DefaultUserAgent, logger)
	} else {
		fetcher = fetch.NewClient(fetch.ClientOptions{Timeout: opts.Timeout}, logger)
	}
	return &TPBClient{
		baseURL: opts.BaseURL,
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

func (c *TPBClient) Origin() stream.Origin {
	return stream.OriginTPB
}

func (c *TPBClient) Find(ctx context.Context, req Request) ([]stream.Candidate, error) {
	reqURL := c.baseURL + "/q.php?q=" + req.IMDBID
	resBody, _, err := c.fetcher.Do(ctx, "GET", reqURL, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("Couldn't GET %v: %w", reqURL, err)
	}

	torrents := gjson.ParseBytes(resBody).Array()
	if len(torrents) == 0 {
		return nil, nil
	}

	var episodeRegex *regexp.Regexp
	if req.Type == TypeSeries {
		episodeRegex = regexp.MustCompile(fmt.Sprintf(`(?i)s0?%de0?%d\b`, req.Season, req.Episode))
	}

	var candidates []stream.Candidate
	for _, torrent := range torrents {
		name := torrent.Get("name").String()
		infoHash := torrent.Get("info_hash").String()
		if infoHash == "" || name == "" {
			continue
		}
		// apibay signals "no results" with a single placeholder row
		if torrent.Get("id").String() == "0" {
			continue
		}
		// For episodes, keep only torrents naming the episode. Season packs
		// are still useful when a debrid service can pick the right file,
		// so a plain season marker passes too.
		if episodeRegex != nil && !episodeRegex.MatchString(name) && !seasonOnlyMatch(name, req.Season) {
			continue
		}

		candidate := stream.Candidate{
			InfoHash:  infoHash,
			FileIndex: -1,
			MagnetURL: createMagnetURL(infoHash, name, trackersTPB),
			Name:      name,
			Seeders:   int(torrent.Get("seeders").Int()),
			Bytes:     torrent.Get("size").Int(),
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

var seasonPackRegexTPB = regexp.MustCompile(`(?i)\bs(\d{1,2})\b`)

// seasonOnlyMatch reports whether a torrent name carries the wanted season
// marker without an episode marker (a probable season pack).
func seasonOnlyMatch(name string, season int) bool {
	match := seasonPackRegexTPB.FindStringSubmatch(name)
	if match == nil {
		return false
	}
	parsed, err := strconv.Atoi(match[1])
	if err != nil {
		return false
	}
	return parsed == season
}

// newSOCKS5httpClient builds an HTTP client that dials through a SOCKS5
// proxy, required for reaching the API via the TOR network.
func newSOCKS5httpClient(timeout time.Duration, socks5ProxyAddr string) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", socks5ProxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("Couldn't create SOCKS5 dialer: %v", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("Couldn't create cookie jar: %v", err)
	}
	return &http.Client{
		Transport: &http.Transport{
			Dial: dialer.Dial,
		},
		Jar:     jar,
		Timeout: timeout,
	}, nil
}
