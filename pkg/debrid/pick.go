package debrid

import (
	"regexp"
	"strconv"
	"strings"
)

// File is one entry of a provider's hydrated file list.
type File struct {
	// Provider-side file ID, used for unlocking. May be a number or an
	// opaque string depending on the provider.
	ID string
	// Index within the torrent, -1 when the provider doesn't expose one
	Index int
	Name  string
	Bytes int64
	// Hoster link for providers that unlock at the link level
	Link string
}

var (
	episodeMarkerRegex = regexp.MustCompile(`(?i)s(\d{1,2})[\s._-]?e(\d{1,2})`)
	seasonMarkerRegex  = regexp.MustCompile(`(?i)\bs\d{1,2}\b`)

	videoExtensions = []string{".mkv", ".mp4", ".avi", ".m4v", ".ts", ".webm"}
)

const seasonPackMinBytes = int64(25) * 1024 * 1024 * 1024 // 25 GiB

// IsSeasonPack applies the season-pack heuristics: an explicit marker in the
// name, a season token without an episode token, at least three episode
// files, or a total size above 25 GiB.
func IsSeasonPack(name string, files []File, totalBytes int64) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "complete") || strings.Contains(lower, "full season") {
		return true
	}
	if seasonMarkerRegex.MatchString(name) && !episodeMarkerRegex.MatchString(name) {
		return true
	}
	episodeFiles := 0
	for _, f := range files {
		if episodeMarkerRegex.MatchString(f.Name) {
			episodeFiles++
		}
	}
	if episodeFiles >= 3 {
		return true
	}
	return totalBytes > seasonPackMinBytes
}

// PickFile selects the file to play out of a hydrated file list.
// Priority: the caller-supplied file index, then the SxxEyy match when the
// set looks like a season pack and series metadata is available, then the
// largest file.
func PickFile(name string, files []File, totalBytes int64, opts ResolveOptions) (File, error) {
	if len(files) == 0 {
		return File{}, NewError(KindNoFiles, "empty file list")
	}

	if opts.FileIndex >= 0 {
		// By index property if the provider exposes one, else by position
		for _, f := range files {
			if f.Index == opts.FileIndex {
				return f, nil
			}
		}
		if opts.FileIndex < len(files) {
			return files[opts.FileIndex], nil
		}
	}

	if opts.Season > 0 && opts.Episode > 0 && IsSeasonPack(name, files, totalBytes) {
		if f, found := matchEpisode(files, opts.Season, opts.Episode); found {
			return f, nil
		}
	}

	return largestFile(files), nil
}

// matchEpisode finds the video file whose name carries the SxxEyy marker.
func matchEpisode(files []File, season, episode int) (File, bool) {
	var best File
	found := false
	for _, f := range files {
		match := episodeMarkerRegex.FindStringSubmatch(f.Name)
		if match == nil {
			continue
		}
		s, _ := strconv.Atoi(match[1])
		e, _ := strconv.Atoi(match[2])
		if s != season || e != episode {
			continue
		}
		// Prefer real video files over samples and subtitles
		if !found || (isVideoFile(f.Name) && f.Bytes > best.Bytes) {
			best = f
			found = true
		}
	}
	return best, found
}

// TotalBytes sums the file sizes of a hydrated file list.
func TotalBytes(files []File) int64 {
	var total int64
	for _, f := range files {
		total += f.Bytes
	}
	return total
}

func largestFile(files []File) File {
	best := files[0]
	for _, f := range files[1:] {
		if f.Bytes > best.Bytes {
			best = f
		}
	}
	return best
}

func isVideoFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
