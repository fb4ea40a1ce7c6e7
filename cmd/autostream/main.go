package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keypop3750/autostream/pkg/cache"
	"github.com/keypop3750/autostream/pkg/cinemata"
	"github.com/keypop3750/autostream/pkg/debrid"
	"github.com/keypop3750/autostream/pkg/debrid/alldebrid"
	"github.com/keypop3750/autostream/pkg/debrid/offcloud"
	"github.com/keypop3750/autostream/pkg/debrid/premiumize"
	"github.com/keypop3750/autostream/pkg/debrid/realdebrid"
	"github.com/keypop3750/autostream/pkg/debrid/torbox"
	"github.com/keypop3750/autostream/pkg/reliability"
	"github.com/keypop3750/autostream/pkg/search"
	"github.com/keypop3750/autostream/pkg/stremio"
)

const version = "1.0.0"

func main() {
	// Bootstrap logger until the real one is configured
	logger := newLogger("info", "console")

	config := parseConfig(logger)
	config.validate(logger)
	logger = newLogger(config.LogLevel, config.LogEncoding)
	defer logger.Sync()
	logger.Info("Parsed config", zap.Int("port", config.Port), zap.Bool("secureMode", config.SecureMode))

	// Caches

	listingCache := cache.New[stremio.StreamResponse](config.CacheSize, time.Hour)
	debridCaches := debrid.NewCaches(config.CacheSize)
	cinemataCache := gocache.New(30*24*time.Hour, 24*time.Hour)

	// Clients

	torrentioClient := search.NewTorrentioClient(search.TorrentioOptions{
		BaseURL:     config.BaseURLtorrentio,
		PathOptions: config.TorrentioOptions,
	}, logger)
	tpbClient, err := search.NewTPBClient(search.TPBOptions{
		BaseURL:        config.BaseURLtpb,
		SocksProxyAddr: config.SocksProxyAddrTPB,
	}, logger)
	if err != nil {
		logger.Fatal("Couldn't create TPB client", zap.Error(err))
	}
	nuvioClient := search.NewNuvioClient(search.NuvioOptions{
		BaseURL: config.BaseURLnuvio,
	}, logger)
	searchClient := search.NewClient(search.DefaultClientOpts, torrentioClient, tpbClient, nuvioClient, logger)

	cinemataClient := cinemata.NewClient(cinemata.ClientOptions{
		BaseURL: config.BaseURLcinemeta,
	}, cinemataCache, logger)

	resolvers := map[string]debrid.Resolver{
		"ad": alldebrid.NewClient(alldebrid.ClientOptions{BaseURL: config.BaseURLad}, debridCaches, logger),
		"rd": realdebrid.NewClient(realdebrid.ClientOptions{BaseURL: config.BaseURLrd}, debridCaches, logger),
		"pm": premiumize.NewClient(premiumize.ClientOptions{BaseURL: config.BaseURLpm}, debridCaches, logger),
		"tb": torbox.NewClient(torbox.ClientOptions{BaseURL: config.BaseURLtb}, debridCaches, logger),
		"oc": offcloud.NewClient(offcloud.ClientOptions{BaseURL: config.BaseURLoc}, debridCaches, logger),
	}
	pool := debrid.NewPool(resolvers, logger)
	providerHosts := map[string]string{
		"ad": hostOf(config.BaseURLad),
		"rd": hostOf(config.BaseURLrd),
		"pm": hostOf(config.BaseURLpm),
		"tb": hostOf(config.BaseURLtb),
		"oc": hostOf(config.BaseURLoc),
	}

	relStore := reliability.NewStore(reliability.DefaultStoreOpts)

	svc := &streamService{
		config:       config,
		searchClient: searchClient,
		cinemata:     cinemataClient,
		pool:         pool,
		relStore:     relStore,
		listings:     listingCache,
		logger:       logger,
	}

	// Server

	logger.Info("Setting up server")
	app := fiber.New(fiber.Config{
		// Timeouts to avoid Slowloris attacks
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(fiberrecover.New())
	// Stremio doesn't show stream responses when no CORS middleware is used!
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST",
	}))
	app.Use(createLoggingMiddleware(logger))
	app.Use(createRateLimitMiddleware(logger))

	startTime := time.Now()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	app.Get("/status", createStatusHandler(relStore, cacheSizes{
		"listings":    listingCache.Len,
		"debridFiles": debridCaches.Files.Len,
		"debridLinks": debridCaches.Links.Len,
		"debridJobs":  debridCaches.Jobs.Len,
	}, startTime))

	app.Get("/manifest.json", createManifestHandler(pool, logger))
	gate := createGateMiddleware(logger)
	app.Get("/stream/:type/:id", gate, createStreamHandler(svc))
	app.Get("/stream/:id", createStreamShimHandler())
	app.Get("/play", createPlayHandler(pool, relStore, providerHosts, logger))

	app.Get("/reliability/stats", createReliabilityStatsHandler(relStore))
	app.Get("/reliability/penalties", createReliabilityPenaltiesHandler(relStore))
	app.Post("/reliability/clear", createReliabilityClearHandler(relStore, logger))

	app.Get("/configure", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(configurePage)
	})
	app.Get("/", func(c *fiber.Ctx) error {
		if config.RootURL != "" {
			return c.Redirect(config.RootURL, fiber.StatusMovedPermanently)
		}
		return c.Redirect("/configure", fiber.StatusMovedPermanently)
	})

	addr := config.BindAddr + ":" + strconv.Itoa(config.Port)
	stopping := false
	logger.Info("Starting server", zap.String("address", addr))
	go func() {
		if err := app.Listen(addr); err != nil {
			if !stopping {
				logger.Fatal("Couldn't start server", zap.Error(err))
			} else {
				logger.Error("Error during server shutdown", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown

	c := make(chan os.Signal, 1)
	// Accept SIGINT (Ctrl+C) and SIGTERM (`docker stop`)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	logger.Info("Received signal, shutting down...", zap.String("signal", sig.String()))
	stopping = true
	// `docker stop` gives us 10 seconds, leave one for the logger
	if err := app.ShutdownWithTimeout(9 * time.Second); err != nil {
		logger.Error("Error shutting down server", zap.Error(err))
	}
	logger.Info("Server shut down")
}

func newLogger(level, encoding string) *zap.Logger {
	zapLevel := zapcore.InfoLevel
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.Encoding = encoding
	if encoding == "console" {
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

const configurePage = `<!DOCTYPE html>
<html>
<head><title>AutoStream</title></head>
<body>
<h1>AutoStream</h1>
<p>Add your debrid API key as a query parameter to the manifest URL, for example:</p>
<pre>/manifest.json?rd=YOUR_KEY</pre>
<p>Supported providers: AllDebrid (ad), RealDebrid (rd), Premiumize (pm), TorBox (tb), Offcloud (oc).</p>
</body>
</html>`
