package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/keypop3750/autostream/pkg/stream"
)

const (
	maxFreeTextLen = 256
	maxCookieLen   = 4096
)

// apiKeyRegex limits keys to a safe character class and a bounded length.
var apiKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-=]{4,128}$`)

// providerAliases maps each provider's canonical query key to all accepted
// spellings, in the order they're probed.
var providerAliases = map[string][]string{
	"ad": {"ad", "apikey", "alldebrid"},
	"rd": {"rd", "realdebrid"},
	"pm": {"pm", "premiumize"},
	"tb": {"tb", "torbox"},
	"oc": {"oc", "offcloud"},
}

// requestOptions are the per-request settings parsed from the query string.
// The API key lives only here, for the duration of one request.
type requestOptions struct {
	// Canonical provider query key ("ad", "rd", ...), "" when no key given
	Provider string
	APIKey   string

	AdditionalStream bool
	ResolveAll       bool
	Debug            bool
	LabelOrigin      bool

	MaxSizeBytes int64
	LangPrio     []string
	LangStrict   bool
	Blacklist    []string

	IncludeNuvio bool
	NuvioCookie  string
	Only         string
}

// parseOptions reads and validates all recognized listing query parameters.
// Invalid values are an error, unknown parameters are ignored.
func parseOptions(c *fiber.Ctx) (requestOptions, error) {
	opts := requestOptions{}

	for _, provider := range []string{"ad", "rd", "pm", "tb", "oc"} {
		for _, alias := range providerAliases[provider] {
			key := c.Query(alias, "")
			if key == "" {
				continue
			}
			if !apiKeyRegex.MatchString(key) {
				return opts, fmt.Errorf("invalid %v key format", provider)
			}
			opts.Provider = provider
			opts.APIKey = key
			break
		}
		if opts.Provider != "" {
			break
		}
	}

	opts.AdditionalStream = boolParam(c, "additionalstream") || boolParam(c, "fallback")
	opts.ResolveAll = boolParam(c, "resolveAll") || boolParam(c, "debridAll")
	opts.Debug = boolParam(c, "debug")
	opts.LabelOrigin = boolParam(c, "label_origin")
	opts.LangStrict = boolParam(c, "lang_strict")
	opts.IncludeNuvio = boolParam(c, "nuvio") || boolParam(c, "include_nuvio") || boolParam(c, "dhosts")

	if maxSize := c.Query("max_size", ""); maxSize != "" {
		bytes, err := parseMaxSize(maxSize)
		if err != nil {
			return opts, err
		}
		opts.MaxSizeBytes = bytes
	}

	if langPrio := sanitizeFreeText(c.Query("lang_prio", "")); langPrio != "" {
		for _, code := range strings.Split(langPrio, ",") {
			code = strings.TrimSpace(code)
			if code != "" {
				opts.LangPrio = append(opts.LangPrio, stream.NormalizeLangPref(code))
			}
		}
	}

	if blacklist := sanitizeFreeText(c.Query("blacklist", "")); blacklist != "" {
		for _, term := range strings.Split(blacklist, ",") {
			term = strings.TrimSpace(term)
			if term != "" {
				opts.Blacklist = append(opts.Blacklist, term)
			}
		}
	}

	for _, alias := range []string{"nuvio_cookie", "dcookie", "cookie"} {
		cookie := c.Query(alias, "")
		if cookie == "" {
			continue
		}
		if strings.ContainsAny(cookie, "\r\n") {
			return opts, fmt.Errorf("cookie must not contain line breaks")
		}
		if len(cookie) > maxCookieLen {
			return opts, fmt.Errorf("cookie exceeds %v bytes", maxCookieLen)
		}
		opts.NuvioCookie = cookie
		break
	}
	if opts.NuvioCookie != "" {
		opts.IncludeNuvio = true
	}

	if only := c.Query("only", ""); only != "" {
		switch only {
		case "torrentio", "tpb", "nuvio":
			opts.Only = only
		default:
			return opts, fmt.Errorf("unknown source %q for the only parameter", sanitizeFreeText(only))
		}
	}

	return opts, nil
}

// cacheKey is the options part of the final-response cache key: the
// provider selection and the toggles that change the response shape.
// The API key itself must never end up in a process-wide cache key.
func (o requestOptions) cacheKey() string {
	return o.Provider +
		"|" + strconv.FormatBool(o.AdditionalStream) +
		"|" + strconv.FormatBool(o.ResolveAll)
}

func boolParam(c *fiber.Ctx, name string) bool {
	val := c.Query(name, "")
	return val == "1" || val == "true"
}

// parseMaxSize accepts raw bytes (integer) or GB (float). 0 disables the cap.
func parseMaxSize(val string) (int64, error) {
	if strings.Contains(val, ".") {
		gb, err := strconv.ParseFloat(val, 64)
		if err != nil || gb < 0 {
			return 0, fmt.Errorf("invalid max_size value")
		}
		return int64(gb * float64(1024*1024*1024)), nil
	}
	bytes, err := strconv.ParseInt(val, 10, 64)
	if err != nil || bytes < 0 {
		return 0, fmt.Errorf("invalid max_size value")
	}
	return bytes, nil
}

// sanitizeFreeText caps length and strips control and HTML-sensitive
// characters from a free-text parameter.
func sanitizeFreeText(val string) string {
	if len(val) > maxFreeTextLen {
		val = val[:maxFreeTextLen]
	}
	var b strings.Builder
	b.Grow(len(val))
	for _, r := range val {
		if r < 0x20 || r == 0x7f {
			continue
		}
		switch r {
		case '<', '>', '&', '"', '\'':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
