package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/config"
	"tush00nka/teledrive/internal/gallery"
	"tush00nka/teledrive/internal/handler"
	"tush00nka/teledrive/internal/pkg/auth"
	"tush00nka/teledrive/internal/pkg/metrics"
	"tush00nka/teledrive/internal/pkg/tg"
	"tush00nka/teledrive/internal/repository"
	"tush00nka/teledrive/internal/service"
	"tush00nka/teledrive/internal/ws"
)

const sessionSweepInterval = time.Minute

// Run wires the service from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionRepo, err := newSessionRepository(ctx, cfg, log)
	if err != nil {
		return err
	}

	uploadOpts := gallery.UploadOptions{
		MaxBytes:     cfg.UploadMaxBytes,
		AllowedTypes: cfg.AllowedTypes(),
	}

	var history handler.UploadHistory
	if cfg.DSN != "" {
		db, err := repository.NewDB(cfg.DSN, cfg.IsDevelopment())
		if err != nil {
			return err
		}
		uploads := repository.NewUploadRepository(db)
		uploadOpts.Journal = uploads
		history = uploads
		log.Info("upload journal enabled")
	}

	if cfg.S3BucketName != "" {
		previews, err := service.NewS3Service(cfg, log)
		if err != nil {
			return err
		}
		if err := previews.HealthCheck(ctx); err != nil {
			// не фатально: без превью загрузки всё равно работают
			log.Warnw("preview storage is not reachable", "error", err)
		}
		uploadOpts.Stager = previews
	}

	var ranker gallery.Ranker
	if cfg.RankingURL != "" {
		ranker = backend.NewRankingClient(cfg.RankingURL, cfg.RankingTimeout, log)
		log.Infow("search ranking enabled", "url", cfg.RankingURL)
	}
	query := gallery.NewQueryEngine(ranker, log)

	hub := ws.NewHub(log)
	defer hub.Shutdown()
	if err := metrics.RegisterNoticeHub(prometheus.DefaultRegisterer, hub); err != nil {
		log.Warnw("notice hub metrics are not exported", "error", err)
	}

	// сервис сессий создаётся позже, а уведомлениям нужен телефон сессии
	var sessions *service.SessionService
	notifiers := service.Notifiers{hub}
	if cfg.TelegramBotToken != "" {
		bot, err := tg.NewTelegramAdapter(cfg.TelegramBotToken, log)
		if err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
		go bot.Listen(ctx)
		notifiers = append(notifiers, service.NewTelegramNotifier(bot, func(sessionID string) string {
			return sessions.PhoneOf(sessionID)
		}, log))
		log.Info("telegram notice mirror enabled")
	}

	tokens := auth.NewTokens(cfg.JWTKey, cfg.SessionTTL)
	sessions = service.NewSessionService(service.SessionConfig{
		BackendURL:         cfg.BackendURL,
		BackendTimeout:     cfg.BackendTimeout,
		SessionTTL:         cfg.SessionTTL,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Upload:             uploadOpts,
	}, sessionRepo, tokens, query, notifiers, log)
	go sessions.Run(ctx, sessionSweepInterval)

	server := NewServer(ServerOptions{
		Sessions:       handler.NewSessionMiddleware(sessions, tokens.TTL(), !cfg.IsDevelopment(), log),
		Auth:           handler.NewAuthHandler(sessions, hub),
		Media:          handler.NewMediaHandler(sessions, history, cfg.UploadMaxBytes),
		Notices:        handler.NewNoticeHandler(hub, cfg.AllowedOrigins(), log),
		AllowedOrigins: cfg.AllowedOrigins(),
		AccessLog:      os.Stdout,
		Log:            log,
	})
	return server.Run(ctx, cfg.ServerPort)
}

func newSessionRepository(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (repository.SessionRepository, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR is empty, sessions are kept in memory")
		return repository.NewMemorySessionRepository(), nil
	}

	rdb, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return repository.NewRedisSessionRepository(rdb), nil
}
