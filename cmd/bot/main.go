package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/gitwatch/internal/config"
	"github.com/user/gitwatch/internal/notify"
	"github.com/user/gitwatch/internal/platform"
	"github.com/user/gitwatch/internal/schedule"
	"github.com/user/gitwatch/internal/storage"
	"github.com/user/gitwatch/internal/telegram"
	"github.com/user/gitwatch/internal/watch"
	"github.com/user/gitwatch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("debug", "")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logger.Info().Msg("Starting gitwatch")

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	store := storage.NewStore(db)
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	clients, err := buildClients(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize platform clients")
	}

	engine := watch.NewEngine(store, clients)
	manager := watch.NewManager(store, clients)

	handlers := telegram.NewHandlers(manager)
	bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.Debug, handlers)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	grouper := notify.NewGrouper(telegram.NewMessageBuilder(), telegram.NewSender(bot.API()))
	scheduler := schedule.New(engine, grouper)
	handlers.AttachScheduler(scheduler)

	schedules := []struct {
		platform platform.Platform
		cron     string
		hasToken bool
	}{
		{platform.GitHub, cfg.GitHub.Cron, cfg.GitHub.Token != ""},
		{platform.Gitee, cfg.Gitee.Cron, cfg.Gitee.Token != ""},
		{platform.GitCode, cfg.GitCode.Cron, cfg.GitCode.Token != ""},
		{platform.Cnb, cfg.Cnb.Cron, cfg.Cnb.Token != ""},
		{platform.Codeberg, cfg.Codeberg.Cron, cfg.Codeberg.Token != ""},
	}
	for _, s := range schedules {
		if err := scheduler.Register(s.platform, s.cron, s.hasToken); err != nil {
			logger.Fatal().Err(err).Str("platform", string(s.platform)).Msg("Failed to register schedule")
		}
	}
	scheduler.Start()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Manual trigger: ?platform=github&kind=push runs one pass,
	// ?group_id=123 replays the stored state for that chat.
	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if groupID := r.URL.Query().Get("group_id"); groupID != "" {
			dest := watch.Destination{BotID: bot.BotID(), GroupID: groupID}
			if err := scheduler.PushNow(ctx, dest); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		p, err := platform.Parse(r.URL.Query().Get("platform"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind, err := storage.ParseKind(r.URL.Query().Get("kind"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := scheduler.TriggerPass(ctx, p, kind); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.ServerAddress(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("address", cfg.ServerAddress()).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	bot.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	bot.Stop()

	logger.Info().Msg("Shutdown complete")
}

// buildClients creates one API client per platform with a configured
// token. Platforms without a token stay absent from the map.
func buildClients(cfg *config.Config) (map[platform.Platform]platform.Client, error) {
	clients := make(map[platform.Platform]platform.Client)

	if cfg.GitHub.Token != "" {
		c, err := platform.NewGitHub(cfg.GitHub.Token, cfg.GitHub.Proxy, cfg.GitHub.ReverseProxy)
		if err != nil {
			return nil, err
		}
		clients[platform.GitHub] = c
	}
	if cfg.Gitee.Token != "" {
		c, err := platform.NewGitee(cfg.Gitee.Token, cfg.Gitee.Proxy)
		if err != nil {
			return nil, err
		}
		clients[platform.Gitee] = c
	}
	if cfg.GitCode.Token != "" {
		c, err := platform.NewGitCode(cfg.GitCode.Token, cfg.GitCode.Proxy)
		if err != nil {
			return nil, err
		}
		clients[platform.GitCode] = c
	}
	if cfg.Cnb.Token != "" {
		c, err := platform.NewCnb(cfg.Cnb.Token, cfg.Cnb.Proxy)
		if err != nil {
			return nil, err
		}
		clients[platform.Cnb] = c
	}
	if cfg.Codeberg.Token != "" {
		c, err := platform.NewCodeberg(cfg.Codeberg.Token, cfg.Codeberg.Proxy, cfg.Codeberg.BaseURL)
		if err != nil {
			return nil, err
		}
		clients[platform.Codeberg] = c
	}

	logger.Info().Int("count", len(clients)).Msg("Platform clients initialized")
	return clients, nil
}
