package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/harbor-wms/harbor-wms/internal/app"
	"github.com/harbor-wms/harbor-wms/internal/auth"
	"github.com/harbor-wms/harbor-wms/internal/catalog"
	"github.com/harbor-wms/harbor-wms/internal/issuance"
	"github.com/harbor-wms/harbor-wms/internal/platform/cache"
	"github.com/harbor-wms/harbor-wms/internal/platform/db"
	"github.com/harbor-wms/harbor-wms/internal/procurement"
	"github.com/harbor-wms/harbor-wms/internal/rbac"
	"github.com/harbor-wms/harbor-wms/internal/request"
	"github.com/harbor-wms/harbor-wms/internal/shared"
	"github.com/harbor-wms/harbor-wms/internal/transfer"
	"github.com/harbor-wms/harbor-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "harbor_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	accessPolicy := rbac.NewPolicy(rbacService)
	if err := rbacService.SeedPermissions(ctx); err != nil {
		logger.Warn("seed permissions", slog.Any("error", err))
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, auditLogger)
	catalogHandler := catalog.NewHandler(logger, catalogService, rbacMiddleware)

	requestRepo := request.NewRepository(dbpool)
	requestService := request.NewService(requestRepo, accessPolicy, approvalRecorder, auditLogger)
	requestHandler := request.NewHandler(logger, requestService, rbacMiddleware)

	issuanceRepo := issuance.NewRepository(dbpool)
	issuanceService := issuance.NewService(issuanceRepo, auditLogger, idempotencyStore)
	issuanceHandler := issuance.NewHandler(logger, issuanceService, rbacMiddleware)

	transferRepo := transfer.NewRepository(dbpool)
	transferService := transfer.NewService(transferRepo, auditLogger)
	transferHandler := transfer.NewHandler(logger, transferService, rbacMiddleware)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, approvalRecorder, auditLogger, idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService, rbacMiddleware)

	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Pool:               dbpool,
		AuthHandler:        authHandler,
		CatalogHandler:     catalogHandler,
		RequestHandler:     requestHandler,
		IssuanceHandler:    issuanceHandler,
		TransferHandler:    transferHandler,
		ProcurementHandler: procurementHandler,
		RBACHandler:        rbacHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
