// Command twirc is the IRC-to-Twitter gateway binary. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, runs idempotent migrations, and restores the
//     persisted roster.
//   - Starts the chat relay, the streaming supervisor, and the command
//     router inside a single gateway session.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and
//     /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/simbabque/twirc/chat"
	"github.com/simbabque/twirc/config"
	"github.com/simbabque/twirc/db"
	"github.com/simbabque/twirc/gateway"
	"github.com/simbabque/twirc/server"
	"github.com/simbabque/twirc/telemetry"
	"github.com/simbabque/twirc/twitterapi"
)

func main() {
	// .env is local dev convenience only; production relies on real env.
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("chat config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("twirc", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence is best-effort: without a database the gateway still runs,
	// it just starts cold and forgets the roster on exit.
	var store *db.Store
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Warn("db open failed, running without persistence", slog.Any("err", err))
	} else {
		conn := database
		defer func() {
			if err := conn.Close(); err != nil {
				slog.Error("db close failed", slog.Any("err", err))
			}
		}()
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = db.Migrate(migrateCtx, database)
		cancel()
		if err != nil {
			slog.Warn("db migrate failed, running without persistence", slog.Any("err", err))
			database = nil
		} else {
			store = db.NewStore(database)
		}
	}

	token := resolveAccessToken(ctx, cfg, store)
	if token == "" {
		slog.Error("no access token available: set TWITTER_ACCESS_TOKEN")
		os.Exit(1)
	}

	apiClient := twitterapi.NewClient(cfg.APIBaseURL, token)
	streamClient := &twitterapi.StreamClient{URL: cfg.StreamURL, HTTPClient: apiClient.HTTPClient}

	relay := chat.NewRelay(chat.Config{
		Nick:       cfg.ChatNick,
		OAuthToken: cfg.ChatOAuthToken,
		Channel:    cfg.ChatChannel,
	})

	var storeOpt gateway.StateStore
	if store != nil {
		storeOpt = store
	}
	sess := gateway.New(gateway.Options{
		Config:  cfg,
		Chat:    relay,
		API:     apiClient,
		Opener:  streamClient,
		Store:   storeOpt,
		Channel: cfg.ChatChannel,
	})

	relay.OnChatLine = sess.HandleChatLine
	relay.OnJoin = sess.HandleJoin
	relay.OnPart = sess.HandlePart
	relay.OnWhisper = func(speaker, text string) {
		// Whispers carry "<nick> <message>" and become direct messages.
		parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
		if len(parts) < 2 {
			return
		}
		sess.HandlePrivateMessage(strings.TrimPrefix(parts[0], "@"), speaker, parts[1])
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			slog.Error("chat relay exited", slog.Any("err", err))
			stop()
		}
	}()

	opsSrv := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           server.NewMux(database, sess, relay),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		slog.Info("ops http server listening", slog.String("addr", cfg.OpsAddr))
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops http server exited", slog.Any("err", err))
		}
	}()

	err = sess.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := opsSrv.Shutdown(closeCtx); serr != nil {
		slog.Error("ops http shutdown failed", slog.Any("err", serr))
	}
	cancel()

	if err != nil {
		slog.Error("gateway exited", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("bye")
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT. Defaults:
// level=info, format=text.
func initLogging() {
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
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

const accessTokenCredential = "twitter_access_token"

// resolveAccessToken prefers the environment and keeps the store in sync with
// it; with no env token it falls back to the stored credential so a rotated
// token survives restarts without re-exporting it.
func resolveAccessToken(ctx context.Context, cfg *config.Config, store *db.Store) string {
	if cfg.AccessToken != "" {
		if store != nil {
			if err := store.SaveCredential(ctx, accessTokenCredential, cfg.AccessToken); err != nil {
				slog.Warn("access token save failed", slog.Any("err", err))
			}
		}
		return cfg.AccessToken
	}
	if store == nil {
		return ""
	}
	token, err := store.LoadCredential(ctx, accessTokenCredential)
	if err != nil {
		slog.Warn("stored access token load failed", slog.Any("err", err))
		return ""
	}
	if token != "" {
		slog.Info("using stored access token")
	}
	return token
}
