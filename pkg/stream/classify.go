package stream

import (
	"regexp"
	"strconv"
	"strings"
)

// Token tables for the classifier. All matching is case-insensitive and done
// on the combined free text of a candidate. Unknown stays unknown, the
// classifier never guesses.

var resolutionPatterns = []struct {
	re         *regexp.Regexp
	resolution int
}{
	{regexp.MustCompile(`(?i)(2160p|\b4k\b|\buhd\b)`), 2160},
	{regexp.MustCompile(`(?i)(1440p|\b2k\b|\bqhd\b)`), 1440},
	{regexp.MustCompile(`(?i)(1080p|\bfhd\b)`), 1080},
	{regexp.MustCompile(`(?i)(720p|\bhd\b)`), 720},
	{regexp.MustCompile(`(?i)(480p|\bsd\b)`), 480},
}

var (
	h265Regex = regexp.MustCompile(`(?i)\b(x265|hevc|h\.?265)\b`)
	h264Regex = regexp.MustCompile(`(?i)\b(x264|avc|h\.?264)\b`)

	hdr10PlusRegex = regexp.MustCompile(`(?i)hdr10(\+|plus)`)
	dvRegex        = regexp.MustCompile(`(?i)(dolby.?vision|\bdv\b)`)
	hdrRegex       = regexp.MustCompile(`(?i)\bhdr\b`)
	tenBitRegex    = regexp.MustCompile(`(?i)(10.?bit|hi10p)`)

	sizeRegex = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(TB|GB|MB|KB|B)\b`)
	// Trailing line used by one of the indexers: "<seeders> <size> <unit>"
	seederLineRegex = regexp.MustCompile(`(?i)^\s*(\d+)\s+(\d+(?:[.,]\d+)?)\s*(TB|GB|MB|KB|B)\s*$`)

	releaseGroupDashRegex    = regexp.MustCompile(`-([A-Za-z0-9]{2,20})\s*$`)
	releaseGroupBracketRegex = regexp.MustCompile(`\[([A-Za-z0-9._ -]{2,20})\]\s*$`)

	sourceBluRayRegex = regexp.MustCompile(`(?i)\b(blu.?ray|bdrip|brrip|remux)\b`)
	sourceWebDLRegex  = regexp.MustCompile(`(?i)\b(web.?dl|webrip|\bweb\b)\b`)
	sourceHDTVRegex   = regexp.MustCompile(`(?i)\bhdtv\b`)
)

var languagePatterns = []struct {
	code string
	re   *regexp.Regexp
}{
	{"en", regexp.MustCompile(`(?i)\b(english|eng)\b`)},
	{"es", regexp.MustCompile(`(?i)\b(spanish|espanol|español|castellano|latino|esp)\b`)},
	{"fr", regexp.MustCompile(`(?i)\b(french|francais|français|vostfr|truefrench)\b`)},
	{"de", regexp.MustCompile(`(?i)\b(german|deutsch|ger)\b`)},
	{"it", regexp.MustCompile(`(?i)\b(italian|italiano|ita)\b`)},
	{"ru", regexp.MustCompile(`(?i)\b(russian|rus)\b`)},
	{"ja", regexp.MustCompile(`(?i)\b(japanese|jpn)\b`)},
	{"ko", regexp.MustCompile(`(?i)\b(korean|kor)\b`)},
	{"zh", regexp.MustCompile(`(?i)\b(chinese|mandarin|cantonese|chs|cht)\b`)},
	{"hi", regexp.MustCompile(`(?i)\b(hindi|hin)\b`)},
	{"nl", regexp.MustCompile(`(?i)\b(dutch|nederlands)\b`)},
	{"pl", regexp.MustCompile(`(?i)\b(polish|polski|lektor)\b`)},
	{"tr", regexp.MustCompile(`(?i)\b(turkish|turkce|türkçe)\b`)},
	{"ar", regexp.MustCompile(`(?i)\b(arabic|ara)\b`)},
	{"sv", regexp.MustCompile(`(?i)\b(swedish|svenska)\b`)},
}

var (
	ptBRregex = regexp.MustCompile(`(?i)(\bpt[-._ ]?br\b|brazilian|brasil|dublado)`)
	ptRegex   = regexp.MustCompile(`(?i)\b(pt|portuguese|portugues|português|pt[-._ ]?pt)\b`)
)

var flagLanguages = map[string]string{
	"🇬🇧": "en", "🇺🇸": "en",
	"🇪🇸": "es", "🇲🇽": "es",
	"🇫🇷": "fr",
	"🇩🇪": "de",
	"🇮🇹": "it",
	"🇷🇺": "ru",
	"🇯🇵": "ja",
	"🇰🇷": "ko",
	"🇨🇳": "zh",
	"🇮🇳": "hi",
	"🇳🇱": "nl",
	"🇵🇱": "pl",
	"🇹🇷": "tr",
	"🇸🇪": "sv",
	"🇸🇦": "ar",
	"🇵🇹": "pt-pt",
	"🇧🇷": "pt-br",
}

var sizeMultipliers = map[string]float64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
	"TB": 1024 * 1024 * 1024 * 1024,
}

// Classify extracts the derived features of a candidate in a single pass
// over its combined free text. Structured fields set by the provider client
// (Bytes, Seeders, FileIndex) take precedence over text extraction.
func Classify(c *Candidate) {
	text := c.Name + "\n" + c.Title + "\n" + c.Description + "\n" + c.Filename

	for _, p := range resolutionPatterns {
		if p.re.MatchString(text) {
			c.Resolution = p.resolution
			break
		}
	}

	if h265Regex.MatchString(text) {
		c.Codec = CodecH265
	} else if h264Regex.MatchString(text) {
		c.Codec = CodecH264
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, ".mp4") {
		c.Container = ContainerMP4
	} else if strings.Contains(lower, ".mkv") {
		c.Container = ContainerMKV
	} else if strings.Contains(lower, ".avi") {
		c.Container = ContainerAVI
	}

	c.HDR = HDRFlags{
		HDR10Plus:   hdr10PlusRegex.MatchString(text),
		DolbyVision: dvRegex.MatchString(text),
		HDR:         hdrRegex.MatchString(text),
		TenBit:      tenBitRegex.MatchString(text),
	}

	if c.Bytes == 0 {
		c.Bytes = parseSize(text)
	}
	seeders, lineBytes := parseSeederLine(text)
	if c.Seeders == 0 {
		c.Seeders = seeders
	}
	if c.Bytes == 0 {
		c.Bytes = lineBytes
	}

	c.Languages = detectLanguages(text)

	if c.ReleaseGroup == "" {
		c.ReleaseGroup = parseReleaseGroup(c.Name)
	}
}

// parseSize returns the first "<number> <unit>" match converted to bytes
// using binary multipliers, 0 when absent.
func parseSize(text string) int64 {
	match := sizeRegex.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil {
		return 0
	}
	return int64(num * sizeMultipliers[strings.ToUpper(match[2])])
}

// parseSeederLine scans for a trailing numeric line of the shape
// "<seeders> <size> <unit>" as produced by one of the indexers.
func parseSeederLine(text string) (int, int64) {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		match := seederLineRegex.FindStringSubmatch(line)
		if match == nil {
			return 0, 0
		}
		seeders, _ := strconv.Atoi(match[1])
		num, err := strconv.ParseFloat(strings.ReplaceAll(match[2], ",", "."), 64)
		if err != nil {
			return seeders, 0
		}
		return seeders, int64(num * sizeMultipliers[strings.ToUpper(match[3])])
	}
	return 0, 0
}

// detectLanguages returns the union of pattern and emoji-flag matches.
// A generic PT token normalizes to pt-pt unless pt-br is explicitly present.
func detectLanguages(text string) []string {
	seen := map[string]bool{}
	var result []string
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			result = append(result, code)
		}
	}

	for _, p := range languagePatterns {
		if p.re.MatchString(text) {
			add(p.code)
		}
	}

	if ptBRregex.MatchString(text) {
		add("pt-br")
	} else if ptRegex.MatchString(text) {
		add("pt-pt")
	}

	for flag, code := range flagLanguages {
		if strings.Contains(text, flag) {
			add(code)
		}
	}

	return result
}

// parseReleaseGroup extracts a trailing "-GROUP" or "[GROUP]" token.
func parseReleaseGroup(name string) string {
	name = strings.TrimSpace(name)
	if match := releaseGroupBracketRegex.FindStringSubmatch(name); match != nil {
		return match[1]
	}
	if match := releaseGroupDashRegex.FindStringSubmatch(name); match != nil {
		return match[1]
	}
	return ""
}

// NormalizeLangPref maps a user's preference token to the canonical
// lowercase form used by the classifier. "PT" means European Portuguese.
func NormalizeLangPref(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "pt" {
		return "pt-pt"
	}
	return code
}

// langMatches reports whether a detected language satisfies a preference.
// Preferences with a region subtag ("pt-br") must match exactly; preferences
// without one ("en") match any detection with the same primary subtag.
func langMatches(pref, detected string) bool {
	if pref == detected {
		return true
	}
	if strings.Contains(pref, "-") {
		return false
	}
	detPrimary, _, _ := strings.Cut(detected, "-")
	return pref == detPrimary && pref != ""
}
