package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/enigma-arcade/portalrun/internal/config"
	"github.com/enigma-arcade/portalrun/internal/game"
	"github.com/enigma-arcade/portalrun/internal/httpapi"
	"github.com/enigma-arcade/portalrun/internal/storage/sqlite"
	"github.com/enigma-arcade/portalrun/internal/ws"
	staticserver "github.com/enigma-arcade/portalrun/static"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Portal Run - Timed arcade-trivia session server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT                       Port to listen on (default: 8080)
  PORTALRUN_DB_PATH          SQLite database path (default: ./portalrun.db)
  PORTALRUN_JWT_SECRET       HMAC secret for verifying player credentials
  PORTALRUN_UPDATES_PER_MIN  Per-player state-push rate limit (default: 120)
  PORTALRUN_UPDATE_BURST     Rate limit burst allowance (default: 20)
  PORTALRUN_LOG_PRETTY       Human-friendly console logging (default: true)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Portal Run %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		zerologlog.Logger = zerologlog.Output(cw)
	}
	logger := zerologlog.Logger

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		logger.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	// Healthcheck
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	// Persistent session store
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open store")
	}
	defer store.Close()

	// Domain services
	projector := game.NewProjector(store)
	feed := ws.NewFeed(projector, logger)
	controller := game.NewController(store, logger).WithNotifier(feed)
	engine := game.NewEngine(store, logger)

	io := feed.Mount(r)
	defer io.Close()

	httpapi.Register(r, httpapi.Deps{
		Controller:    controller,
		Engine:        engine,
		Projector:     projector,
		JWTSecret:     []byte(cfg.JWTSecret),
		UpdatesPerMin: cfg.UpdatesPerMin,
		UpdateBurst:   cfg.UpdateBurst,
		Log:           logger,
	})

	// Serve frontend (if embedded build is present) for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
