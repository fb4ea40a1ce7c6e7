package main

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type config struct {
	BindAddr           string   `json:"bindAddr"`
	Port               int      `json:"port"`
	BaseURL            string   `json:"baseURL"`
	RootURL            string   `json:"rootURL"`
	BaseURLtorrentio   string   `json:"baseURLtorrentio"`
	TorrentioOptions   string   `json:"torrentioOptions"`
	BaseURLtpb         string   `json:"baseURLtpb"`
	SocksProxyAddrTPB  string   `json:"socksProxyAddrTPB"`
	BaseURLnuvio       string   `json:"baseURLnuvio"`
	BaseURLcinemeta    string   `json:"baseURLcinemeta"`
	BaseURLad          string   `json:"baseURLad"`
	BaseURLrd          string   `json:"baseURLrd"`
	BaseURLpm          string   `json:"baseURLpm"`
	BaseURLtb          string   `json:"baseURLtb"`
	BaseURLoc          string   `json:"baseURLoc"`
	CacheSize          int      `json:"cacheSize"`
	PremiumHosts       []string `json:"premiumHosts"`
	LogLevel           string   `json:"logLevel"`
	LogEncoding        string   `json:"logEncoding"`
	LogFoundStreams    bool     `json:"logFoundStreams"`
	SecureMode         bool     `json:"secureMode"`
	EnvPrefix          string   `json:"envPrefix"`
}

func parseConfig(logger *zap.Logger) config {
	result := config{}

	// Flags
	var (
		bindAddr          = flag.String("bindAddr", "localhost", `Local interface address to bind to. "localhost" only allows access from the local host. "0.0.0.0" binds to all network interfaces.`)
		port              = flag.Int("port", 8080, "Port to listen on")
		baseURL           = flag.String("baseURL", "http://localhost:8080", "Base URL of this service. It's used in the /play URLs that are delivered to the media client.")
		rootURL           = flag.String("rootURL", "", "Redirect target for the root. Keep empty to redirect to the /configure page.")
		baseURLtorrentio  = flag.String("baseURLtorrentio", "https://torrentio.strem.fun", "Base URL for the Torrentio-style indexer")
		torrentioOptions  = flag.String("torrentioOptions", "", `Path options for the Torrentio-style indexer, for example "sort=qualitysize|qualityfilter=scr,cam"`)
		baseURLtpb        = flag.String("baseURLtpb", "https://apibay.org", "Base URL for the TPB API")
		socksProxyAddrTPB = flag.String("socksProxyAddrTPB", "", "SOCKS5 proxy address for accessing TPB, required for accessing TPB via the TOR network (where \"127.0.0.1:9050\" would be a typical value)")
		baseURLnuvio      = flag.String("baseURLnuvio", "https://nuviostreams.hayd.uk", "Base URL for the direct-host indexer")
		baseURLcinemeta   = flag.String("baseURLcinemeta", "https://v3-cinemeta.strem.io", "Base URL for Cinemeta")
		baseURLad         = flag.String("baseURLad", "https://api.alldebrid.com", "Base URL for AllDebrid")
		baseURLrd         = flag.String("baseURLrd", "https://api.real-debrid.com", "Base URL for RealDebrid")
		baseURLpm         = flag.String("baseURLpm", "https://www.premiumize.me/api", "Base URL for Premiumize")
		baseURLtb         = flag.String("baseURLtb", "https://api.torbox.app", "Base URL for TorBox")
		baseURLoc         = flag.String("baseURLoc", "https://offcloud.com", "Base URL for Offcloud")
		cacheSize         = flag.Int("cacheSize", 10000, "Max number of entries per in-memory cache. Oldest entries are evicted when a cache is full.")
		premiumHosts      = flag.String("premiumHosts", "", "Comma-separated list of premium direct hosts that get a scoring bonus. Keep empty to use the built-in list.")
		logLevel          = flag.String("logLevel", "info", `Log level to show only logs with the given and more severe levels. Can be "debug", "info", "warn", "error".`)
		logEncoding       = flag.String("logEncoding", "console", `Log encoding. Can be "console" or "json", where "json" makes more sense when using centralized logging solutions like ELK, Graylog or Loki.`)
		logFoundStreams   = flag.Bool("logFoundStreams", false, "Set to true to log each single stream candidate that was found by one of the upstream provider clients (with DEBUG level)")
		secureMode        = flag.Bool("secureMode", false, "Refuse to start when credential-looking environment variables are set. Forced on when ENVIRONMENT=production.")
		envPrefix         = flag.String("envPrefix", "", "Prefix for environment variables")
	)

	flag.Parse()

	if *envPrefix != "" && !strings.HasSuffix(*envPrefix, "_") {
		*envPrefix += "_"
	}
	result.EnvPrefix = *envPrefix

	// Only overwrite the values by their env var counterparts that have not
	// been set (and that *are* set via env var).
	var err error
	if !isArgSet("bindAddr") {
		if val, ok := os.LookupEnv(*envPrefix + "BIND_ADDR"); ok {
			*bindAddr = val
		}
	}
	result.BindAddr = *bindAddr

	if !isArgSet("port") {
		if val, ok := os.LookupEnv(*envPrefix + "PORT"); ok {
			if *port, err = strconv.Atoi(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to int", zap.Error(err), zap.String("envVar", "PORT"))
			}
		}
	}
	result.Port = *port

	if !isArgSet("baseURL") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL"); ok {
			*baseURL = val
		}
	}
	result.BaseURL = strings.TrimSuffix(*baseURL, "/")

	if !isArgSet("rootURL") {
		if val, ok := os.LookupEnv(*envPrefix + "ROOT_URL"); ok {
			*rootURL = val
		}
	}
	result.RootURL = *rootURL

	if !isArgSet("baseURLtorrentio") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_TORRENTIO"); ok {
			*baseURLtorrentio = val
		}
	}
	result.BaseURLtorrentio = *baseURLtorrentio

	if !isArgSet("torrentioOptions") {
		if val, ok := os.LookupEnv(*envPrefix + "TORRENTIO_OPTIONS"); ok {
			*torrentioOptions = val
		}
	}
	result.TorrentioOptions = *torrentioOptions

	if !isArgSet("baseURLtpb") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_TPB"); ok {
			*baseURLtpb = val
		}
	}
	result.BaseURLtpb = *baseURLtpb

	if !isArgSet("socksProxyAddrTPB") {
		if val, ok := os.LookupEnv(*envPrefix + "SOCKS_PROXY_ADDR_TPB"); ok {
			*socksProxyAddrTPB = val
		}
	}
	result.SocksProxyAddrTPB = *socksProxyAddrTPB

	if !isArgSet("baseURLnuvio") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_NUVIO"); ok {
			*baseURLnuvio = val
		}
	}
	result.BaseURLnuvio = *baseURLnuvio

	if !isArgSet("baseURLcinemeta") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_CINEMETA"); ok {
			*baseURLcinemeta = val
		}
	}
	result.BaseURLcinemeta = *baseURLcinemeta

	if !isArgSet("baseURLad") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_AD"); ok {
			*baseURLad = val
		}
	}
	result.BaseURLad = *baseURLad

	if !isArgSet("baseURLrd") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_RD"); ok {
			*baseURLrd = val
		}
	}
	result.BaseURLrd = *baseURLrd

	if !isArgSet("baseURLpm") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_PM"); ok {
			*baseURLpm = val
		}
	}
	result.BaseURLpm = *baseURLpm

	if !isArgSet("baseURLtb") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_TB"); ok {
			*baseURLtb = val
		}
	}
	result.BaseURLtb = *baseURLtb

	if !isArgSet("baseURLoc") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_OC"); ok {
			*baseURLoc = val
		}
	}
	result.BaseURLoc = *baseURLoc

	if !isArgSet("cacheSize") {
		if val, ok := os.LookupEnv(*envPrefix + "CACHE_SIZE"); ok {
			if *cacheSize, err = strconv.Atoi(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to int", zap.Error(err), zap.String("envVar", "CACHE_SIZE"))
			}
		}
	}
	result.CacheSize = *cacheSize

	if !isArgSet("premiumHosts") {
		if val, ok := os.LookupEnv(*envPrefix + "PREMIUM_HOSTS"); ok {
			*premiumHosts = val
		}
	}
	if *premiumHosts != "" {
		for _, host := range strings.Split(*premiumHosts, ",") {
			host = strings.TrimSpace(host)
			if host != "" {
				result.PremiumHosts = append(result.PremiumHosts, host)
			}
		}
	}

	if !isArgSet("logLevel") {
		if val, ok := os.LookupEnv(*envPrefix + "LOG_LEVEL"); ok {
			*logLevel = val
		}
	}
	result.LogLevel = *logLevel

	if !isArgSet("logEncoding") {
		if val, ok := os.LookupEnv(*envPrefix + "LOG_ENCODING"); ok {
			*logEncoding = val
		}
	}
	result.LogEncoding = *logEncoding

	if !isArgSet("logFoundStreams") {
		if val, ok := os.LookupEnv(*envPrefix + "LOG_FOUND_STREAMS"); ok {
			if *logFoundStreams, err = strconv.ParseBool(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to bool", zap.Error(err), zap.String("envVar", "LOG_FOUND_STREAMS"))
			}
		}
	}
	result.LogFoundStreams = *logFoundStreams

	if !isArgSet("secureMode") {
		if val, ok := os.LookupEnv(*envPrefix + "SECURE_MODE"); ok {
			if *secureMode, err = strconv.ParseBool(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to bool", zap.Error(err), zap.String("envVar", "SECURE_MODE"))
			}
		}
	}
	result.SecureMode = *secureMode

	return result
}

// credentialEnvVars are environment variable names that look like debrid
// credentials. API keys are strictly per-request values, so in secure mode
// the process refuses to start when any of these are set.
var credentialEnvVars = []string{
	"AD_KEY", "ALLDEBRID_KEY", "ALLDEBRID_API_KEY",
	"RD_KEY", "REALDEBRID_KEY", "REALDEBRID_TOKEN",
	"PM_KEY", "PREMIUMIZE_KEY", "PREMIUMIZE_API_KEY",
	"TB_KEY", "TORBOX_KEY", "TORBOX_API_KEY",
	"OC_KEY", "OFFCLOUD_KEY", "OFFCLOUD_API_KEY",
	"API_KEY", "APIKEY",
}

func (c *config) validate(logger *zap.Logger) {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		logger.Fatal(`logLevel must be one of "debug", "info", "warn" or "error"`, zap.String("logLevel", c.LogLevel))
	}

	if c.LogEncoding != "console" && c.LogEncoding != "json" {
		logger.Fatal(`logEncoding must be one of "console" or "json"`, zap.String("logEncoding", c.LogEncoding))
	}

	// Production deployments run in secure mode whether configured or not
	if os.Getenv("ENVIRONMENT") == "production" {
		c.SecureMode = true
	}
	if c.SecureMode {
		for _, name := range credentialEnvVars {
			for _, candidate := range []string{name, c.EnvPrefix + name} {
				if _, ok := os.LookupEnv(candidate); ok {
					logger.Fatal("Secure mode forbids credential environment variables. API keys must be passed per request.", zap.String("envVar", candidate))
				}
			}
		}
	}
}

// isArgSet returns true if the argument you're looking for is actually set as command line argument.
// Pass without "-" prefix.
func isArgSet(arg string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == arg {
			found = true
		}
	})
	return found
}
