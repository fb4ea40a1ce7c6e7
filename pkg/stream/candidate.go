// Package stream holds the candidate stream model and the
// classify → filter → score → select pipeline that turns raw upstream
// search results into the one or two streams served to the client.
package stream

import (
	"net/url"
	"strings"
)

// Origin identifies which upstream produced a candidate.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginTorrentio
	OriginTPB
	OriginNuvio
)

func (o Origin) String() string {
	switch o {
	case OriginTorrentio:
		return "torrentio"
	case OriginTPB:
		return "tpb"
	case OriginNuvio:
		return "nuvio"
	}
	return "unknown"
}

// Tag returns the short display tag used with the label_origin option.
func (o Origin) Tag() string {
	switch o {
	case OriginTorrentio:
		return "TIO"
	case OriginTPB:
		return "TPB"
	case OriginNuvio:
		return "NVO"
	}
	return "?"
}

// Codec is the detected video codec.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	}
	return "unknown"
}

// Container is the detected file container.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerMP4
	ContainerMKV
	ContainerAVI
)

func (c Container) String() string {
	switch c {
	case ContainerMP4:
		return "mp4"
	case ContainerMKV:
		return "mkv"
	case ContainerAVI:
		return "avi"
	}
	return "unknown"
}

// HDRFlags is the set of independently collected HDR-ish tokens.
type HDRFlags struct {
	HDR         bool
	HDR10Plus   bool
	DolbyVision bool
	TenBit      bool
}

// Candidate is one normalized search result. It's produced by the provider
// clients and enriched along the pipeline: the classifier attaches the
// derived features, the scorer attaches Score and its breakdown.
type Candidate struct {
	Origin    Origin
	InfoHash  string
	FileIndex int // -1 when unset
	MagnetURL string
	URL       string
	// Headers the media client must present when fetching URL
	ProxyHeaders map[string]string
	// The origin requires a user cookie for playback
	RequiresCookie bool

	// Raw text from the upstream
	Name        string
	Title       string
	Description string
	Filename    string

	// Derived features (attached by Classify)
	Resolution   int // one of 0, 480, 720, 1080, 1440, 2160
	Codec        Codec
	Container    Container
	Bytes        int64
	Languages    []string
	Seeders      int
	ReleaseGroup string
	HDR          HDRFlags

	// Derived score (attached by Score)
	Score     int
	Breakdown map[string]int
}

// Usable reports whether a candidate carries at least one of a URL or an
// info hash, the invariant every provider client must uphold.
func (c *Candidate) Usable() bool {
	return c.URL != "" || c.InfoHash != ""
}

// Identity returns what makes a candidate distinct for selection purposes:
// its info hash when present, its URL otherwise.
func (c *Candidate) Identity() string {
	if c.InfoHash != "" {
		return strings.ToLower(c.InfoHash)
	}
	return c.URL
}

// CombinedText returns the lowercased concatenation of all free-text fields,
// the input for the classifier and the blacklist filter.
func (c *Candidate) CombinedText() string {
	return strings.ToLower(c.Name + "\n" + c.Title + "\n" + c.Description + "\n" + c.Filename)
}

// Host extracts the lowercased host of the candidate's URL, "" when the
// candidate has no URL or it can't be parsed.
func (c *Candidate) Host() string {
	if c.URL == "" {
		return ""
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// QualityLabel maps a detected resolution to the label used in stream titles.
func QualityLabel(resolution int) string {
	switch {
	case resolution >= 4320:
		return "8K"
	case resolution >= 2160:
		return "4K"
	case resolution >= 1440:
		return "2K"
	case resolution >= 1080:
		return "1080p"
	case resolution >= 720:
		return "720p"
	case resolution >= 480:
		return "480p"
	}
	return "SD"
}
