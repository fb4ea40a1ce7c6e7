package stream

import (
	"net"
	"regexp"
	"strings"
)

const scoreBase = 800

// Seeder tiers. Applied to torrent candidates only — direct-host streams
// have no swarm.
const (
	seedersZeroPenalty  = -1000
	seedersUnder3       = -300
	seedersUnder5       = -100
	seedersUnder10      = -20
	noCookiePenalty     = -400
	cookieBonus         = 3
	debridHostBonus     = 30
	premiumHostBonus    = 25
	cdnHostBonus        = 15
	suspiciousHostMalus = -10
	directTypeBonus     = 10
)

// ScoreOptions carries the request-scoped inputs of the scorer: the
// reliability snapshot taken at the moment of scoring, the debrid and
// cookie state of the request and the configured host/group lists.
type ScoreOptions struct {
	// Host → penalty snapshot from the reliability store
	Penalties map[string]int
	// A validated debrid key is attached to the request
	DebridAvailable bool
	// The request carries a cookie for cookie-requiring direct hosts
	CookiePresent bool
	// Operator-configured premium direct hosts
	PremiumHosts []string
	// Release groups that add / subtract a few points
	AllowedGroups []string
	DeniedGroups  []string
}

// DefaultPremiumHosts is the built-in premium direct host list. It's
// configuration, not a fixed rule — the operator can replace it.
var DefaultPremiumHosts = []string{
	"download.real-debrid.com",
	"debrid.it",
	"alld.io",
	"premiumize.me",
}

var DefaultAllowedGroups = []string{"ntb", "framestor", "sparks", "amiable", "flux"}

var DefaultDeniedGroups = []string{"yify", "axxo", "telesync"}

var cdnSuffixes = []string{
	".akamaized.net",
	".cloudfront.net",
	".fastly.net",
	".b-cdn.net",
	".llnwd.net",
}

var suspiciousTLDs = []string{".xyz", ".top", ".click", ".loan", ".gq", ".tk"}

// Per-device contribution tables. These are three distinct tables sharing
// the same categories, not a shared base with add-ons: the tv table pushes
// h264/mp4 hard because TV firmwares choke on HEVC in MKV, while mobile
// prefers smaller 1080p files over 4K.

type qualityTable struct {
	res2160, res1440, res1080, res720, res480 int
	hdr10Plus, hdr, tenBit                    int
	h265, h264                                int
}

var qualityTables = map[Device]qualityTable{
	DeviceTV:     {res2160: 40, res1440: 35, res1080: 30, res720: 20, res480: 10, hdr10Plus: 15, hdr: 10, tenBit: -25, h265: -60, h264: 40},
	DeviceMobile: {res2160: 20, res1440: 30, res1080: 35, res720: 25, res480: 15, hdr10Plus: 20, hdr: 15, tenBit: -10, h265: 10, h264: 20},
	DeviceWeb:    {res2160: 40, res1440: 35, res1080: 30, res720: 20, res480: 10, hdr10Plus: 25, hdr: 20, tenBit: -5, h265: 5, h264: 20},
}

type containerTable struct {
	mp4, mkv, avi int
}

var containerTables = map[Device]containerTable{
	DeviceTV:     {mp4: 25, mkv: -20, avi: 15},
	DeviceMobile: {mp4: 20, mkv: -10, avi: 0},
	DeviceWeb:    {mp4: 15, mkv: -5, avi: 0},
}

type sourceTable struct {
	bluRay, webDL, hdtv int
}

var sourceTables = map[Device]sourceTable{
	DeviceTV:     {bluRay: 20, webDL: 12, hdtv: 5},
	DeviceMobile: {bluRay: 10, webDL: 8, hdtv: 3},
	DeviceWeb:    {bluRay: 15, webDL: 10, hdtv: 5},
}

// sizeBand is the piecewise size curve for one resolution band.
type sizeBand struct {
	tooSmall int64 // below this: penalty
	goodLow  int64 // goodLow..goodHigh: small bonus
	goodHigh int64
}

const gib = int64(1024 * 1024 * 1024)

var sizeBands = map[int]sizeBand{
	2160: {tooSmall: 4 * gib, goodLow: 8 * gib, goodHigh: 40 * gib},
	1440: {tooSmall: 2 * gib, goodLow: 4 * gib, goodHigh: 25 * gib},
	1080: {tooSmall: 1 * gib, goodLow: 2 * gib, goodHigh: 15 * gib},
	720:  {tooSmall: 400 * 1024 * 1024, goodLow: 800 * 1024 * 1024, goodHigh: 6 * gib},
	480:  {tooSmall: 150 * 1024 * 1024, goodLow: 300 * 1024 * 1024, goodHigh: 2 * gib},
}

// Mobile gets an extra penalty for oversized 4K files.
const mobileOversize4K = 20 * gib

// On web the curve is resolution-independent: web playback tolerates any
// bitrate, and a per-band curve would let size flip the resolution ordering.
var webSizeBand = sizeBand{tooSmall: 300 * 1024 * 1024, goodLow: 1 * gib, goodHigh: 20 * gib}

var ipHostRegex = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// Score computes the device-aware score of a candidate and attaches it
// together with its explanatory breakdown. It's a pure function of the
// candidate's features, the device class and the options snapshot.
func Score(c *Candidate, device Device, opts ScoreOptions) {
	breakdown := map[string]int{"base": scoreBase}
	score := scoreBase

	host := c.Host()
	if penalty := opts.Penalties[host]; penalty > 0 {
		breakdown["reliability"] = -penalty
		score -= penalty
	}

	quality := qualityContribution(c, device)
	breakdown["quality"] = quality
	score += quality

	source := sourceContribution(c, device)
	breakdown["source"] = source
	score += source

	container := containerContribution(c, device)
	breakdown["container"] = container
	score += container

	group := groupContribution(c, opts)
	breakdown["group"] = group
	score += group

	size := sizeContribution(c, device)
	breakdown["size"] = size
	score += size

	seeders := seedersContribution(c)
	breakdown["seeders"] = seeders
	score += seeders

	hostBonus := hostContribution(c, host, opts)
	breakdown["host"] = hostBonus
	score += hostBonus

	cookie := cookieContribution(c, opts)
	breakdown["cookie"] = cookie
	score += cookie

	typeBonus := 0
	if c.InfoHash == "" && c.URL != "" {
		// Direct streams start instantly, no debrid round trip
		typeBonus = directTypeBonus
	}
	breakdown["type"] = typeBonus
	score += typeBonus

	c.Score = score
	c.Breakdown = breakdown
}

func qualityContribution(c *Candidate, device Device) int {
	table := qualityTables[device]
	result := 0
	switch c.Resolution {
	case 2160:
		result += table.res2160
	case 1440:
		result += table.res1440
	case 1080:
		result += table.res1080
	case 720:
		result += table.res720
	case 480:
		result += table.res480
	}
	if c.HDR.HDR10Plus || c.HDR.DolbyVision {
		result += table.hdr10Plus
	} else if c.HDR.HDR {
		result += table.hdr
	}
	if c.HDR.TenBit {
		result += table.tenBit
	}
	switch c.Codec {
	case CodecH265:
		result += table.h265
	case CodecH264:
		result += table.h264
	}
	return result
}

func sourceContribution(c *Candidate, device Device) int {
	table := sourceTables[device]
	text := c.Name + " " + c.Title + " " + c.Description
	switch {
	case sourceBluRayRegex.MatchString(text):
		return table.bluRay
	case sourceWebDLRegex.MatchString(text):
		return table.webDL
	case sourceHDTVRegex.MatchString(text):
		return table.hdtv
	}
	return 0
}

func containerContribution(c *Candidate, device Device) int {
	table := containerTables[device]
	switch c.Container {
	case ContainerMP4:
		return table.mp4
	case ContainerMKV:
		return table.mkv
	case ContainerAVI:
		return table.avi
	}
	return 0
}

func groupContribution(c *Candidate, opts ScoreOptions) int {
	if c.ReleaseGroup == "" {
		return 0
	}
	group := strings.ToLower(c.ReleaseGroup)
	allowed := opts.AllowedGroups
	if allowed == nil {
		allowed = DefaultAllowedGroups
	}
	denied := opts.DeniedGroups
	if denied == nil {
		denied = DefaultDeniedGroups
	}
	for _, g := range allowed {
		if group == g {
			return 8
		}
	}
	for _, g := range denied {
		if group == g {
			return -12
		}
	}
	return 0
}

func sizeContribution(c *Candidate, device Device) int {
	if c.Bytes == 0 {
		return 0
	}
	var band sizeBand
	if device == DeviceWeb {
		band = webSizeBand
	} else {
		var found bool
		if band, found = sizeBands[c.Resolution]; !found {
			return 0
		}
	}
	result := 0
	switch {
	case c.Bytes < band.tooSmall:
		result = -30
	case c.Bytes >= band.goodLow && c.Bytes <= band.goodHigh:
		result = 10
	}
	if device == DeviceMobile && c.Resolution == 2160 && c.Bytes >= mobileOversize4K {
		result -= 15
	}
	return result
}

func seedersContribution(c *Candidate) int {
	if c.InfoHash == "" {
		return 0
	}
	switch {
	case c.Seeders == 0:
		return seedersZeroPenalty
	case c.Seeders < 3:
		return seedersUnder3
	case c.Seeders < 5:
		return seedersUnder5
	case c.Seeders < 10:
		return seedersUnder10
	}
	return 0
}

func hostContribution(c *Candidate, host string, opts ScoreOptions) int {
	if c.InfoHash != "" {
		if opts.DebridAvailable {
			return debridHostBonus
		}
		return 0
	}
	if host == "" {
		return 0
	}
	premium := opts.PremiumHosts
	if premium == nil {
		premium = DefaultPremiumHosts
	}
	for _, p := range premium {
		if host == p || strings.HasSuffix(host, "."+p) {
			return premiumHostBonus
		}
	}
	for _, suffix := range cdnSuffixes {
		if strings.HasSuffix(host, suffix) || strings.HasPrefix(host, "cdn.") {
			return cdnHostBonus
		}
	}
	if ipHostRegex.MatchString(host) || net.ParseIP(host) != nil {
		return suspiciousHostMalus
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			return suspiciousHostMalus
		}
	}
	return 0
}

func cookieContribution(c *Candidate, opts ScoreOptions) int {
	if !c.RequiresCookie {
		return 0
	}
	if opts.CookiePresent {
		return cookieBonus
	}
	return noCookiePenalty
}
