package main

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/cache"
	"github.com/keypop3750/autostream/pkg/cinemata"
	"github.com/keypop3750/autostream/pkg/debrid"
	"github.com/keypop3750/autostream/pkg/reliability"
	"github.com/keypop3750/autostream/pkg/search"
	"github.com/keypop3750/autostream/pkg/stream"
	"github.com/keypop3750/autostream/pkg/stremio"
)

const (
	// Hard cap on the number of streams in one listing
	maxStreams = 10

	defaultCacheMaxAge = 3600
	// Floor for the cache age while the reliability store holds penalties
	penalizedCacheMaxAgeFloor = 300

	preloadTimeout = 30 * time.Second
)

// streamService bundles what the listing pipeline needs. It exists so the
// background episode preload can run the exact same pipeline as a request.
type streamService struct {
	config       config
	searchClient *search.Client
	cinemata     *cinemata.Client
	pool         *debrid.Pool
	relStore     *reliability.Store
	listings     *cache.Cache[stremio.StreamResponse]
	logger       *zap.Logger
}

func createStreamHandler(svc *streamService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		contentType := c.Params("type")
		if contentType != "movie" && contentType != "series" {
			return validationErrorMsg(c, "type must be movie or series")
		}
		id, err := url.PathUnescape(strings.TrimSuffix(c.Params("id"), ".json"))
		if err != nil {
			return validationErrorMsg(c, "invalid content ID")
		}
		cid, ok := parseContentID(id)
		if !ok {
			return validationErrorMsg(c, "invalid content ID")
		}
		if contentType == "series" && !cid.hasEpisode {
			return validationErrorMsg(c, "series IDs must have the form id:season:episode")
		}
		if contentType == "movie" && cid.hasEpisode {
			return validationErrorMsg(c, "movie IDs must not carry season and episode")
		}

		opts, err := parseOptions(c)
		if err != nil {
			return validationError(c, err)
		}

		device := stream.DetectDevice(c.Get(fiber.HeaderUserAgent))
		cacheKey := contentType + "/" + id + "|" + opts.cacheKey()

		if !opts.Debug {
			if res, found := svc.listings.Get(cacheKey); found {
				svc.logger.Debug("Hit listing cache", zap.String("id", id))
				c.Set(fiber.HeaderCacheControl, "public, max-age="+strconv.Itoa(res.CacheMaxAge))
				return c.JSON(res)
			}
		}

		// The key is only trusted after a live probe; probe results are
		// cached per key for a few minutes, the key itself never is.
		debridOK := false
		if opts.Provider != "" {
			if err := svc.pool.TestKey(c.UserContext(), opts.Provider, opts.APIKey); err != nil {
				svc.logger.Debug("Key probe failed, leaving torrent candidates unresolved",
					zap.String("provider", opts.Provider), zap.String("kind", debrid.KindOf(err).String()))
			} else {
				debridOK = true
			}
		}

		req := search.Request{
			Type:         search.ContentType(contentType),
			IMDBID:       cid.base,
			Only:         opts.Only,
			IncludeNuvio: opts.IncludeNuvio,
			NuvioCookie:  opts.NuvioCookie,
		}
		if contentType == "series" {
			req.Season = cid.season
			req.Episode = cid.episode
		}

		res := svc.computeListing(c.UserContext(), req, opts, device, debridOK)
		svc.listings.Set(cacheKey, res)

		// Warm the next episode so the follow-up click hits the cache.
		// Detached from the request on purpose.
		if req.Type == search.TypeSeries {
			go svc.preloadNextEpisode(req, opts, device, debridOK)
		}

		c.Set(fiber.HeaderCacheControl, "public, max-age="+strconv.Itoa(res.CacheMaxAge))
		return c.JSON(res)
	}
}

// createStreamShimHandler redirects the untyped listing form to the typed
// one, inferring series when the ID carries season and episode.
func createStreamShimHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSuffix(c.Params("id"), ".json")
		contentType := "movie"
		// A TMDB movie ID carries a colon too, so the series form is only
		// inferred from an actual season/episode suffix
		if cid, ok := parseContentID(id); ok && cid.hasEpisode {
			contentType = "series"
		}
		target := "/stream/" + contentType + "/" + id + ".json"
		if query := string(c.Request().URI().QueryString()); query != "" {
			target += "?" + query
		}
		return c.Redirect(target, fiber.StatusFound)
	}
}

func (svc *streamService) computeListing(ctx context.Context, req search.Request, opts requestOptions, device stream.Device, debridOK bool) stremio.StreamResponse {
	candidates := svc.searchClient.Find(ctx, req)
	if svc.config.LogFoundStreams || opts.Debug {
		for _, candidate := range candidates {
			svc.logger.Debug("Found stream candidate",
				zap.String("origin", candidate.Origin.String()),
				zap.String("name", candidate.Name),
				zap.String("title", candidate.Title))
		}
	}

	for i := range candidates {
		stream.Classify(&candidates[i])
	}
	candidates = stream.FilterMaxSize(candidates, opts.MaxSizeBytes)
	candidates = stream.FilterBlacklist(candidates, opts.Blacklist)
	if opts.LangStrict {
		candidates = stream.FilterStrictLanguage(candidates, opts.LangPrio)
	}

	penalties := svc.relStore.Snapshot()
	scoreOpts := stream.ScoreOptions{
		Penalties:       penalties,
		DebridAvailable: debridOK,
		CookiePresent:   opts.NuvioCookie != "",
		PremiumHosts:    svc.config.PremiumHosts,
	}
	for i := range candidates {
		stream.Score(&candidates[i], device, scoreOpts)
	}

	selection := stream.Select(candidates)

	// Meta lookup is best-effort decoration, a failure never fails a listing
	var meta cinemata.Meta
	if selection.Primary != nil {
		var err error
		if meta, err = svc.cinemata.GetMeta(ctx, string(req.Type), req.IMDBID); err != nil {
			svc.logger.Debug("Couldn't get meta for title beautification", zap.Error(err))
		}
	}

	var items []stremio.StreamItem
	if selection.Primary == nil {
		items = append(items, svc.noStreamsItem())
	} else {
		finalists := []*stream.Candidate{selection.Primary}
		if selection.Secondary != nil {
			finalists = append(finalists, selection.Secondary)
		}
		if opts.ResolveAll && debridOK {
			finalists = appendRemaining(finalists, candidates)
		}
		for _, candidate := range finalists {
			items = append(items, svc.finalizeStream(candidate, req, opts, debridOK, meta))
			if len(items) == maxStreams {
				break
			}
		}
		// The secondary always runs through finalization; whether it's
		// emitted is decided here, as a plain slice
		if !opts.AdditionalStream && !(opts.ResolveAll && debridOK) && selection.Secondary != nil && len(items) > 1 {
			items = items[:1]
		}
	}

	cacheMaxAge := defaultCacheMaxAge
	if len(penalties) > 0 {
		// Shorter cache lives shrink the blast radius of bad URLs
		cacheMaxAge /= 2
		if cacheMaxAge < penalizedCacheMaxAgeFloor {
			cacheMaxAge = penalizedCacheMaxAgeFloor
		}
	}

	return stremio.StreamResponse{
		Streams:         items,
		CacheMaxAge:     cacheMaxAge,
		StaleRevalidate: 2 * cacheMaxAge,
		StaleError:      7 * 24 * 3600,
	}
}

// appendRemaining extends the finalists with the remaining candidates in
// descending score order, skipping identities that are already in.
func appendRemaining(finalists []*stream.Candidate, candidates []stream.Candidate) []*stream.Candidate {
	seen := make(map[string]struct{}, len(finalists))
	for _, f := range finalists {
		seen[f.Identity()] = struct{}{}
	}
	sorted := make([]stream.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	for i := range sorted {
		if len(finalists) == maxStreams {
			break
		}
		if _, found := seen[sorted[i].Identity()]; found {
			continue
		}
		seen[sorted[i].Identity()] = struct{}{}
		finalists = append(finalists, &sorted[i])
	}
	return finalists
}

// finalizeStream turns a selected candidate into the wire item: play URL
// rewrite for debrid-backed torrents, cookie attachment for direct hosts,
// naming and title beautification.
func (svc *streamService) finalizeStream(candidate *stream.Candidate, req search.Request, opts requestOptions, debridOK bool, meta cinemata.Meta) stremio.StreamItem {
	quality := stream.QualityLabel(candidate.Resolution)

	name := "AutoStream"
	isTorrent := candidate.InfoHash != ""
	if isTorrent && debridOK {
		name += " (" + svc.pool.Tag(opts.Provider) + ")"
	}
	if opts.LabelOrigin {
		name = "[" + candidate.Origin.Tag() + "] " + name
	}

	contentName := meta.Name
	if contentName == "" {
		contentName = req.IMDBID
	}
	var title string
	if req.Type == search.TypeSeries {
		title = fmt.Sprintf("%s — S%02dE%02d – %s", contentName, req.Season, req.Episode, quality)
	} else {
		title = fmt.Sprintf("%s – %s", contentName, quality)
	}

	item := stremio.StreamItem{
		Name:  name,
		Title: title,
	}
	hints := &stremio.StreamBehaviorHints{
		Filename:   candidate.Filename,
		BingeGroup: "autostream-" + quality,
	}

	switch {
	case isTorrent && debridOK:
		item.URL = svc.playURL(candidate, req, opts)
	case isTorrent:
		// Without a working debrid key the hash stays as-is so external
		// torrent tooling can pick it up
		item.InfoHash = strings.ToLower(candidate.InfoHash)
		if candidate.FileIndex >= 0 {
			fileIndex := candidate.FileIndex
			item.FileIndex = &fileIndex
		}
	default:
		item.URL = candidate.URL
		headers := candidate.ProxyHeaders
		if headers == nil && candidate.RequiresCookie && opts.NuvioCookie != "" {
			headers = map[string]string{"Cookie": "ui=" + opts.NuvioCookie}
		}
		if headers != nil {
			hints.ProxyHeaders = &stremio.ProxyHeaders{Request: headers}
			hints.NotWebReady = true
		}
	}

	item.BehaviorHints = hints
	return item
}

func (svc *streamService) playURL(candidate *stream.Candidate, req search.Request, opts requestOptions) string {
	params := url.Values{}
	params.Set("ih", strings.ToLower(candidate.InfoHash))
	if candidate.FileIndex >= 0 {
		params.Set("idx", strconv.Itoa(candidate.FileIndex))
	}
	params.Set("imdb", req.ID())
	params.Set(opts.Provider, opts.APIKey)
	return svc.config.BaseURL + "/play?" + params.Encode()
}

// noStreamsItem is the synthetic entry served instead of an empty list.
// Media clients that receive an empty list are prone to infinite spinners.
func (svc *streamService) noStreamsItem() stremio.StreamItem {
	return stremio.StreamItem{
		URL:   svc.config.BaseURL + "/configure",
		Name:  "AutoStream",
		Title: "No streams available",
	}
}

// preloadNextEpisode runs the pipeline for episode N+1 on its own deadline
// and caches the result under that episode's key. Best effort.
func (svc *streamService) preloadNextEpisode(req search.Request, opts requestOptions, device stream.Device, debridOK bool) {
	// Runs detached from any request, so the recover middleware can't
	// catch a panic here
	defer func() {
		if r := recover(); r != nil {
			svc.logger.Error("Recovered from panic during episode preload", zap.Any("panic", r))
		}
	}()

	nextReq := req
	nextReq.Episode++

	cacheKey := string(nextReq.Type) + "/" + nextReq.ID() + "|" + opts.cacheKey()
	if _, found := svc.listings.Get(cacheKey); found {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
	defer cancel()
	res := svc.computeListing(ctx, nextReq, opts, device, debridOK)
	svc.listings.Set(cacheKey, res)
	svc.logger.Debug("Preloaded next episode", zap.String("id", nextReq.ID()))
}
