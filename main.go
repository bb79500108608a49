// Command live-herald watches a list of short-video accounts for live
// sessions and announces them in a chat channel.
// It:
//   - Loads configuration and initializes structured logging.
//   - Logs in to the chat platform (Discord or Telegram).
//   - Opens one telemetry socket per tracked account, bounded by a daily
//     request quota, and turns live/offline reports into announcements.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/live-herald/config"
	"github.com/onnwee/live-herald/discord"
	"github.com/onnwee/live-herald/feed"
	"github.com/onnwee/live-herald/notify"
	"github.com/onnwee/live-herald/quota"
	"github.com/onnwee/live-herald/relay"
	"github.com/onnwee/live-herald/server"
	"github.com/onnwee/live-herald/store"
	"github.com/onnwee/live-herald/stream"
	"github.com/onnwee/live-herald/telegram"
	"github.com/onnwee/live-herald/telemetry"
)

var version = "dev"

// platform is a chat backend: the announcement channel plus owner DMs.
type platform interface {
	notify.Channel
	notify.DirectMessenger
	Ready() bool
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("live-herald", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chat, closeChat, err := openPlatform(cfg)
	if err != nil {
		slog.Error("chat platform login failed", slog.String("backend", cfg.Backend), slog.Any("err", err))
		os.Exit(1)
	}
	defer closeChat()

	st := store.Open(cfg.StatePath())
	owner := notify.NewOwner(chat, cfg.OwnerID)
	if !owner.Enabled() {
		slog.Info("owner alerts disabled (OWNER_ID not set)")
	}
	q := quota.New(store.QuotaFile{Path: cfg.QuotaPath()}, cfg.DailyRequestLimit, cfg.WarningThreshold, owner)
	machine := stream.NewMachine(st, notify.NewRouter(chat, st))
	dialer := &feed.WSDialer{URL: cfg.FeedURL, APIKey: cfg.FeedAPIKey}
	mgr := relay.NewManager(dialer, q, machine, st, owner, relay.Options{
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay,
	})

	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		deps := server.Deps{Store: st, Connections: mgr, Quota: q, Accounts: cfg.Accounts, Ready: chat.Ready}
		if err := server.Start(ctx, cfg.HTTPAddr, deps); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("tracking accounts", slog.Int("count", len(cfg.Accounts)), slog.Any("accounts", cfg.Accounts),
		slog.Int("max_reconnect_attempts", cfg.MaxReconnectAttempts), slog.Duration("reconnect_delay", cfg.ReconnectDelay))
	mgr.Run(ctx, cfg.Accounts)

	slog.Info("shutting down")
	if err := st.Save(); err != nil {
		slog.Error("final state save failed", slog.Any("err", err))
	}
}

// openPlatform logs in to the configured chat backend.
func openPlatform(cfg *config.Config) (platform, func(), error) {
	switch cfg.Backend {
	case config.BackendTelegram:
		chatID, err := strconv.ParseInt(cfg.AlertChannelID, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram chat id: %w", err)
		}
		c, err := telegram.New(cfg.TelegramBotToken, chatID)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	default:
		c, err := discord.New(cfg.DiscordToken, cfg.AlertChannelID)
		if err != nil {
			return nil, nil, err
		}
		if err := c.Open(); err != nil {
			return nil, nil, err
		}
		return c, func() {
			if err := c.Close(); err != nil {
				slog.Error("discord close failed", slog.Any("err", err))
			}
		}, nil
	}
}
