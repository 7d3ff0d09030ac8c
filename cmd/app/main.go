package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-billing/internal/config"
	"course-billing/internal/infra/catalog"
	pg "course-billing/internal/infra/db/postgres"
	httpapi "course-billing/internal/infra/http"
	"course-billing/internal/infra/logging"
	"course-billing/internal/infra/metrics"
	"course-billing/internal/infra/payment"
	red "course-billing/internal/infra/redis"
	"course-billing/internal/infra/sched"
	"course-billing/internal/infra/security"
	"course-billing/internal/infra/web"
	"course-billing/internal/infra/worker"
	"course-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed checks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption init failed")
	}

	// ---- Catalog ----
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog load failed")
	}

	// ---- Repositories ----
	orderRepo := pg.NewOrderRepo(pool)
	cartRepo := pg.NewCartRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)
	accessRepo := pg.NewAccessRepo(pool)
	linkRepo := pg.NewPaymentLinkRepo(pool, encSvc)
	txMgr := pg.NewTxManager(pool)

	// ---- Payment provider ----
	provider, err := payment.NewTBankClient(payment.TBankOptions{
		TerminalKey:     cfg.Payment.TBank.TerminalKey,
		Secret:          cfg.Payment.TBank.SecretKey,
		BaseURL:         cfg.Payment.TBank.BaseURL,
		SuccessURL:      cfg.Payment.TBank.SuccessURL,
		FailURL:         cfg.Payment.TBank.FailURL,
		NotificationURL: cfg.Payment.TBank.NotificationURL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment provider init failed")
	}
	verifier := payment.NewNotificationVerifier(provider.Secret())

	// ---- Use cases ----
	accessUC := usecase.NewAccessUseCase(accessRepo, cat, logger)
	fulfillmentUC := usecase.NewFulfillmentUseCase(orderRepo, cartRepo, linkRepo, txRepo, accessUC, logger)
	paymentUC := usecase.NewPaymentUseCase(orderRepo, txRepo, linkRepo, provider, fulfillmentUC, usecase.PaymentPolicy{
		SBPMinAmount:      cfg.Payment.SBPMinAmount,
		QRTTL:             cfg.Payment.QRTTL,
		DescriptionMaxLen: cfg.Payment.DescriptionMaxLen,
	}, logger)
	orderUC := usecase.NewOrderUseCase(orderRepo, cartRepo, cat, txMgr, logger)
	linkUC := usecase.NewPaymentLinkUseCase(linkRepo, paymentUC, logger)
	webhookUC := usecase.NewWebhookUseCase(verifier, txRepo, paymentUC, logger)
	ledgerUC := usecase.NewLedgerUseCase(txRepo)

	// ---- Workers ----
	workerPool := worker.NewPool(8, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	poller := sched.NewStatusPoller(paymentUC, workerPool,
		cfg.Payment.PollInterval, cfg.Payment.PollMaxAttempts, cfg.Payment.QRTTL+time.Minute, logger)

	reconciler := sched.NewPaymentReconciler(paymentUC, txRepo, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- Public API ----
	auth := httpapi.NewSessionAuth(cfg.Auth.JWTSecret)
	apiSrv := httpapi.NewServer(orderUC, paymentUC, linkUC, accessUC, webhookUC, poller, locker, rateLimiter, auth, logger)
	publicServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: apiSrv.Router(),
	}
	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("public api listening")
		if err := publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("public api server error")
		}
	}()

	// ---- Admin API ----
	adminSrv := web.NewServer(linkUC, paymentUC, ledgerUC, cfg.Admin.APIKey, logger)
	adminMux := http.NewServeMux()
	adminSrv.RegisterRoutes(adminMux)
	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: adminMux,
	}
	go func() {
		logger.Info().Int("port", cfg.Admin.Port).Msg("admin api listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin api server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = publicServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
	cancel()
}
