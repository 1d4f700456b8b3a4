package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/creditoya/whatsapp-gateway/internal/api"
	"github.com/creditoya/whatsapp-gateway/internal/cache"
	"github.com/creditoya/whatsapp-gateway/internal/config"
	"github.com/creditoya/whatsapp-gateway/internal/dispatch"
	"github.com/creditoya/whatsapp-gateway/internal/events"
	"github.com/creditoya/whatsapp-gateway/internal/mail"
	"github.com/creditoya/whatsapp-gateway/internal/provider"
	"github.com/creditoya/whatsapp-gateway/internal/registry"
	"github.com/creditoya/whatsapp-gateway/internal/store"
	"github.com/creditoya/whatsapp-gateway/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var creds store.CredentialStore
	if cfg.Database.PostgresURL != "" {
		db, err := sql.Open("pgx", cfg.Database.PostgresURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		creds = store.NewPostgresStore(db)
	} else {
		logger.Warn("POSTGRES_URL not set, credentials will not survive restarts")
		creds = store.NewMemoryStore()
	}

	pub := events.NewRedisPublisher(rdb, cfg.Redis.EventsChannel)
	bridge := provider.NewBridgeClient(cfg.Bridge.URL, rdb, logger)
	sessions := registry.New(bridge, creds, pub, logger)

	engine := dispatch.NewEngine(
		sessions, pub, logger,
		cfg.Dispatch.CountryPrefix,
		cfg.Dispatch.AddressSuffix,
		cfg.Dispatch.Concurrency,
	)

	reports := cache.NewRedisReportCache(rdb, cfg.Redis.ReportTTL)
	engine.WithReportSink(reports)

	if cfg.Mail.Enabled {
		renderer := mail.NewMJMLClient(cfg.Mail.MJMLURL, cfg.Mail.MJMLAppID, cfg.Mail.MJMLSecretKey)
		mailer := mail.NewSMTPMailer(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.Email, cfg.Mail.AppKey)
		notifier := mail.NewNotifier(renderer, mailer, cfg.Mail.Subject, logger)
		engine.WithSentHook(notifier.NotifySent)
	}

	if cfg.Sweep.Enabled {
		sw, err := sweeper.New(cfg.Sweep.Interval, cfg.Sweep.QRMaxAge, sessions, logger)
		if err != nil {
			log.Fatal(err)
		}
		sw.Start()
		defer sw.Stop()
	}

	handler := api.NewHandler(sessions, engine, reports)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.Router(handler),
	}

	go func() {
		logger.Info("gateway listening",
			"addr", cfg.Server.Address,
			"bridge", cfg.Bridge.URL,
			"dispatch_concurrency", cfg.Dispatch.Concurrency,
			"mail", cfg.Mail.Enabled,
			"sweep", cfg.Sweep.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	sessions.Close(ctx)
}
