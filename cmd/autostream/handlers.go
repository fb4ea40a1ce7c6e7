package main

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/debrid"
	"github.com/keypop3750/autostream/pkg/reliability"
	"github.com/keypop3750/autostream/pkg/stremio"
)

var (
	infoHashRegex  = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	contentIDregex = regexp.MustCompile(`^(tt\d+|tmdb:\d+)(?::(\d{1,3}):(\d{1,3}))?$`)
)

// contentID is a parsed media client content ID: a base ID ("tt0111161" or
// "tmdb:603") with an optional season/episode suffix ("tt0944947:2:3").
// The base ID of a TMDB form contains a colon itself, so IDs are parsed by
// the regex's groups, never by splitting on colons.
type contentID struct {
	base       string
	season     int
	episode    int
	hasEpisode bool
}

func parseContentID(id string) (contentID, bool) {
	match := contentIDregex.FindStringSubmatch(id)
	if match == nil {
		return contentID{}, false
	}
	cid := contentID{base: match[1]}
	if match[2] != "" {
		cid.hasEpisode = true
		cid.season, _ = strconv.Atoi(match[2])
		cid.episode, _ = strconv.Atoi(match[3])
	}
	return cid, true
}

func createManifestHandler(pool *debrid.Pool, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opts, err := parseOptions(c)
		if err != nil {
			return validationError(c, err)
		}

		manifest := stremio.Manifest{
			ID:          "com.autostream.addon",
			Name:        "AutoStream",
			Description: "Aggregates streams from multiple torrent and direct-host sources, picks the best one for your device and plays it through your debrid provider.",
			Version:     version,

			Resources:  []string{"stream"},
			Types:      []string{"movie", "series"},
			Catalogs:   []stremio.CatalogItem{},
			IDprefixes: []string{"tt", "tmdb"},
			BehaviorHints: &stremio.BehaviorHints{
				Configurable: true,
			},
		}

		// Tag the name with the active provider, but only after a live
		// key probe. Probe results are cached per key for a few minutes.
		if opts.Provider != "" {
			if err := pool.TestKey(c.UserContext(), opts.Provider, opts.APIKey); err != nil {
				logger.Debug("Manifest key probe failed", zap.String("provider", opts.Provider), zap.Error(err))
			} else {
				manifest.Name += " (" + pool.Tag(opts.Provider) + ")"
			}
		}

		c.Set(fiber.HeaderCacheControl, "public, max-age=300")
		return c.JSON(manifest)
	}
}

// createPlayHandler resolves a torrent candidate into a direct URL at click
// time and answers with a redirect. Failures surface as JSON errors with a
// status matching the failure class.
func createPlayHandler(pool *debrid.Pool, relStore *reliability.Store, providerHosts map[string]string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		infoHash := c.Query("ih", "")
		if !infoHashRegex.MatchString(infoHash) {
			return validationErrorMsg(c, "ih must be a 40 character hex info hash")
		}
		imdbID := c.Query("imdb", "")
		if imdbID != "" && !contentIDregex.MatchString(imdbID) {
			return validationErrorMsg(c, "invalid imdb parameter")
		}

		fileIndex := -1
		if idx := c.Query("idx", ""); idx != "" {
			parsed, err := strconv.Atoi(idx)
			if err != nil || parsed < 0 {
				return validationErrorMsg(c, "idx must be a non-negative integer")
			}
			fileIndex = parsed
		}

		opts, err := parseOptions(c)
		if err != nil {
			return validationError(c, err)
		}
		if opts.Provider == "" {
			return validationErrorMsg(c, "no debrid provider key given")
		}

		resolveOpts := debrid.ResolveOptions{FileIndex: fileIndex}
		if cid, ok := parseContentID(imdbID); ok && cid.hasEpisode {
			resolveOpts.Season = cid.season
			resolveOpts.Episode = cid.episode
		}

		streamURL, err := pool.Resolve(c.UserContext(), opts.Provider, infoHash, opts.APIKey, resolveOpts)
		if err != nil {
			kind := debrid.KindOf(err)
			logger.Warn("Couldn't resolve stream",
				zap.String("provider", opts.Provider),
				zap.String("infoHash", infoHash),
				zap.String("kind", kind.String()))
			relStore.OnFail(providerHosts[opts.Provider])
			return c.Status(statusForKind(kind)).JSON(fiber.Map{
				"error": kind.String(),
			})
		}

		if !isHTTPURL(streamURL) {
			logger.Warn("Resolved stream URL is not http(s), refusing to redirect",
				zap.String("provider", opts.Provider),
				zap.String("infoHash", infoHash))
			relStore.OnFail(providerHosts[opts.Provider])
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "bad_stream_url",
			})
		}

		relStore.OnOK(hostOf(streamURL))
		c.Set(fiber.HeaderCacheControl, "private, max-age=300")
		return c.Redirect(streamURL, fiber.StatusFound)
	}
}

func statusForKind(kind debrid.Kind) int {
	switch kind {
	case debrid.KindAuthInvalid:
		return fiber.StatusUnauthorized
	case debrid.KindRateLimited:
		return fiber.StatusTooManyRequests
	case debrid.KindNoFiles:
		return fiber.StatusNotFound
	case debrid.KindTimeout:
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusBadGateway
}

// isHTTPURL reports whether rawURL is something a media client can safely
// be redirected to.
func isHTTPURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func validationError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "validation",
		"message": err.Error(),
	})
}

func validationErrorMsg(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "validation",
		"message": msg,
	})
}

// cacheSizes is the set of caches the status endpoint reports item counts for.
type cacheSizes map[string]func() int

func createStatusHandler(relStore *reliability.Store, caches cacheSizes, startTime time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		count, max, total := relStore.Stats()
		cacheCounts := fiber.Map{}
		for name, lenFunc := range caches {
			cacheCounts[name] = lenFunc()
		}
		return c.JSON(fiber.Map{
			"version": version,
			"uptime":  time.Since(startTime).Round(time.Second).String(),
			"reliability": fiber.Map{
				"penalizedHosts": count,
				"maxPenalty":     max,
				"totalPenalty":   total,
			},
			"caches": cacheCounts,
		})
	}
}

func createReliabilityStatsHandler(relStore *reliability.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		count, max, total := relStore.Stats()
		avg := 0
		if count > 0 {
			avg = total / count
		}
		return c.JSON(fiber.Map{
			"count": count,
			"max":   max,
			"avg":   avg,
		})
	}
}

func createReliabilityPenaltiesHandler(relStore *reliability.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(relStore.Snapshot())
	}
}

// createReliabilityClearHandler clears one host's penalty when the body
// carries a URL, all penalties when it doesn't.
func createReliabilityClearHandler(relStore *reliability.Store, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		targetURL := gjson.GetBytes(c.Body(), "url").String()
		if targetURL == "" {
			relStore.ClearAll()
			logger.Info("Cleared all reliability penalties")
			return c.JSON(fiber.Map{"cleared": "all"})
		}
		host := hostOf(targetURL)
		if host == "" {
			// Allow passing a bare host instead of a full URL
			host = strings.ToLower(targetURL)
		}
		relStore.Clear(host)
		logger.Info("Cleared reliability penalty", zap.String("host", host))
		return c.JSON(fiber.Map{"cleared": host})
	}
}
