// Command streambot is the main entrypoint for the chat bot. It:
//   - Loads configuration and initializes structured logging.
//   - Opens and validates the credentials file (fatal when the token is bad).
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts background jobs: the OAuth token refresher, the EventSub session
//     supervisor, and the idle autopost scheduler.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/streambot/bot"
	"github.com/onnwee/streambot/config"
	"github.com/onnwee/streambot/content"
	"github.com/onnwee/streambot/credentials"
	"github.com/onnwee/streambot/crypto"
	"github.com/onnwee/streambot/db"
	"github.com/onnwee/streambot/eventsub"
	"github.com/onnwee/streambot/oauth"
	"github.com/onnwee/streambot/responder"
	"github.com/onnwee/streambot/server"
	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("streambot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Optional at-rest encryption of the token fields in the credentials file.
	var sealer crypto.Sealer
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		s, err := crypto.NewAESSealer(key)
		if err != nil {
			slog.Error("encryption key invalid", slog.Any("err", err))
			os.Exit(1)
		}
		sealer = s
		slog.Info("credentials token encryption enabled (AES-256-GCM)")
	} else {
		slog.Warn("ENCRYPTION_KEY not set, credential tokens stored in plaintext (not recommended for production)")
	}

	store, err := credentials.Open(cfg.CredentialsFile, sealer)
	if err != nil {
		slog.Error("failed to open credentials file", slog.Any("err", err), slog.String("file", cfg.CredentialsFile))
		os.Exit(1)
	}

	api := &twitchapi.Client{Creds: store}

	// Startup validation is the one fatal path in the token lifecycle: a bot
	// with a dead token cannot open a session, so fail loud before anything
	// else starts.
	refresher := &oauth.Refresher{Store: store, API: api, Interval: cfg.RefreshInterval}
	validateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = refresher.ValidateNow(validateCtx)
	cancel()
	if err != nil {
		slog.Error("credential validation failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("credentials validated", slog.String("bot", store.Snapshot().BotUsername))

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx, database)
	cancel()
	if err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := &bot.Manager{
		Creds:     store,
		Sender:    api,
		Responder: responder.New(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIModel),
		Memory:    &db.Store{DB: database},
		Source:    buildContentSource(cfg),
		Autopost: bot.AutopostConfig{
			Enabled:          cfg.AutopostEnabled,
			InactivityWindow: cfg.InactivityWindow,
			MinSpacing:       cfg.MinPostSpacing,
			Interval:         cfg.AutopostInterval,
		},
	}

	go refresher.Run(ctx)
	go manager.RunAutopost(ctx)
	go pruneMemoryJob(ctx, database)

	session := &eventsub.Session{Subscriber: api, Handler: manager.HandleChatMessage}
	go superviseSession(ctx, session)

	handlers := &server.Handlers{DB: database, Session: session, Bot: manager, Creds: store}
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	session.Close()
	slog.Info("shutting down")
}

// setupLogging configures the default slog handler from LOG_LEVEL and
// LOG_FORMAT. Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}

// buildContentSource assembles the autopost content pipeline from config.
// Unknown source names are logged and skipped; no sources means autopost
// silently never finds a candidate.
func buildContentSource(cfg *config.Config) content.Source {
	var sources []content.Source
	for _, name := range cfg.ContentSources {
		switch name {
		case "static":
			lines, err := loadStaticLines(cfg.StaticContentFile)
			if err != nil {
				slog.Warn("static content source disabled", slog.Any("err", err))
				continue
			}
			sources = append(sources, &content.Static{Name: "static", Lines: lines})
		case "youtube":
			sources = append(sources, &content.YouTube{
				ChannelID:   cfg.YouTubeChannelID,
				APIKey:      cfg.YouTubeAPIKey,
				AccessToken: cfg.YouTubeAccessToken,
			})
		default:
			slog.Warn("unknown content source", slog.String("name", name))
		}
	}
	if len(sources) == 0 {
		return nil
	}
	if len(sources) == 1 {
		return sources[0]
	}
	return &content.Multi{Sources: sources}
}

func loadStaticLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(raw), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// superviseSession owns the reconnect policy. The session itself never
// redials: every exit lands here and the supervisor decides when to dial
// again, backing off on consecutive failures.
func superviseSession(ctx context.Context, session *eventsub.Session) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := session.Start(ctx); err != nil {
			slog.Error("session start failed", slog.Any("err", err))
		} else {
			err = <-session.Done()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.Warn("session ended", slog.Any("err", err))
			}
			// A session that got as far as connecting resets the backoff.
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
}

// pruneMemoryJob trims conversation memory past the retention horizon once a
// day. Failures are advisory.
func pruneMemoryJob(ctx context.Context, database *sql.DB) {
	retention := 30 * 24 * time.Hour
	if v := os.Getenv("MEMORY_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			retention = d
		} else {
			slog.Warn("invalid MEMORY_RETENTION, using default", slog.String("value", v))
		}
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PruneMemory(ctx, database, time.Now().Add(-retention))
			if err != nil {
				slog.Warn("memory prune failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				slog.Info("memory pruned", slog.Int64("rows", n))
			}
		}
	}
}
