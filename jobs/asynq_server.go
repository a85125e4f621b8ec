package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
)

const defaultConcurrency = 5

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its Asynq handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker. Task failures are logged through the
// configured slog logger so retries leave a trace.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			if cfg.Logger != nil {
				cfg.Logger.Error("task failed",
					slog.String("type", task.Type()),
					slog.Any("error", err),
				)
			}
		}),
	})

	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run processes jobs until the context is cancelled or the server fails.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSendEmail enqueues a send-email task.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := queueHealth{Queue: QueueDefault}
	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(QueueDefault)
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		if info != nil {
			status.Queue = info.Queue
			status.Pending = int(info.Pending)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
