package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openletter/api/pkg/cache"
	"github.com/openletter/api/pkg/config"
	"github.com/openletter/api/pkg/database"
	applogger "github.com/openletter/api/pkg/logger"
	"github.com/openletter/api/pkg/mail"
	"github.com/openletter/api/pkg/metrics"
	"github.com/openletter/api/pkg/routes"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "openletter",
		Short:         "Open letter signature API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile, true)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile, false)
		},
	}

	root.AddCommand(serve, migrate)
	root.RunE = serve.RunE

	return root
}

func run(ctx context.Context, envFile string, serve bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	log, err := applogger.NewLogger(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return err
	}
	defer log.Sync()

	d, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Error("failed to connect to postgres", zap.Error(err))
		return err
	}

	if err := database.Migrate(d); err != nil {
		log.Error("failed to migrate database", zap.Error(err))
		return err
	}

	if !serve {
		log.Info("database migrated")
		return nil
	}

	return serveHTTP(ctx, cfg, log, d)
}

func serveHTTP(ctx context.Context, cfg *config.Config, log *zap.Logger, d *gorm.DB) error {
	store := database.NewSignatureStore(d)

	var listingCache routes.SignatoryCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()

		listingCache = cache.NewSignatoriesCache(redisClient, cfg.ListingCacheTTL)
	}

	mailer := mail.NewClient(cfg.ResendAPIKey, cfg.MailFrom, cfg.ResendAPIURL)
	if !cfg.MailConfigured() {
		log.Warn("RESEND_API_KEY or MAIL_FROM is not set, signature submissions will be rejected")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	signatureRoutes := routes.NewSignatureRoutes(
		store,
		mailer,
		listingCache,
		routes.Options{
			VerifyURL:     cfg.SiteURL + "/api/verify",
			ReturnURL:     cfg.SiteURL + "/",
			LetterTitle:   cfg.LetterTitle,
			ExposeDetails: cfg.IsDevelopment(),
		},
		log,
		metrics.New(reg),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(routes.RequestLogger(log))
	r.Use(routes.Recoverer(log))

	r.Mount("/api", signatureRoutes.Routes())
	r.Get("/healthz", routes.Health(store))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.String("address", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
