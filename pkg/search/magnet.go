package search

import (
	"net/url"
	"strings"
)

// maxTrackers caps the tracker list of a constructed magnet URL to avoid
// pathological URIs.
const maxTrackers = 8

// createMagnetURL builds a content-defined magnet URL for an info hash.
// Trackers are de-duplicated and capped; the display name is optional.
func createMagnetURL(infoHash, name string, trackers []string) string {
	magnet := "magnet:?xt=urn:btih:" + strings.ToLower(infoHash)
	if name != "" {
		magnet += "&dn=" + url.QueryEscape(name)
	}
	seen := map[string]struct{}{}
	count := 0
	for _, tracker := range trackers {
		if tracker == "" {
			continue
		}
		if _, found := seen[tracker]; found {
			continue
		}
		if count >= maxTrackers {
			break
		}
		seen[tracker] = struct{}{}
		count++
		magnet += "&tr=" + url.QueryEscape(tracker)
	}
	return magnet
}
