package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harbor-wms/harbor-wms/internal/app"
	"github.com/harbor-wms/harbor-wms/internal/catalog"
	"github.com/harbor-wms/harbor-wms/internal/platform/cache"
	"github.com/harbor-wms/harbor-wms/internal/platform/db"
	"github.com/harbor-wms/harbor-wms/internal/procurement"
	"github.com/harbor-wms/harbor-wms/internal/shared"
	"github.com/harbor-wms/harbor-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, approvalRecorder, auditLogger, idempotencyStore)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger)

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	mailer := &jobs.Mailer{
		Host:   cfg.SMTPHost,
		Port:   cfg.SMTPPort,
		From:   cfg.SMTPFrom,
		Logger: logger,
	}

	expiryJob := jobs.NewQuotationExpiryJob(procurementService, redisClient, logger)
	digestJob := jobs.NewLowStockDigestJob(catalogService, mailClient, logger)

	expiryTask, err := jobs.NewQuotationExpiryTask(time.Time{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}

	cron := []jobs.CronRegistration{
		{Spec: cfg.QuotationSweepCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}
	if cfg.LowStockRecipient != "" {
		digestTask, err := jobs.NewLowStockDigestTask(cfg.LowStockRecipient)
		if err != nil {
			logger.Error("build digest task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.LowStockDigestCron, Task: digestTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(mailer, logger)},
			{Type: jobs.TaskQuotationExpiry, Handler: expiryJob.Handle},
			{Type: jobs.TaskLowStockDigest, Handler: digestJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
