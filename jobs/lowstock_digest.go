package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/harbor-wms/harbor-wms/internal/catalog"
)

const (
	// TaskLowStockDigest emails a summary of products at or below reorder level.
	TaskLowStockDigest = "catalog:lowstock_digest"
)

// LowStockDigestPayload configures a single digest run.
type LowStockDigestPayload struct {
	Recipient string `json:"recipient"`
}

// NewLowStockDigestTask constructs an Asynq task for the digest.
func NewLowStockDigestTask(recipient string) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockDigestPayload{Recipient: recipient})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockDigest, body, asynq.Queue(QueueDefault)), nil
}

// LowStockLister reports products needing replenishment.
type LowStockLister interface {
	ListLowStock(ctx context.Context) ([]catalog.Product, error)
}

// MailEnqueuer submits mail:send tasks.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// LowStockDigestJob builds and enqueues the daily replenishment digest.
type LowStockDigestJob struct {
	Catalog LowStockLister
	Mail    MailEnqueuer
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewLowStockDigestJob initialises the digest handler.
func NewLowStockDigestJob(lister LowStockLister, mail MailEnqueuer, logger *slog.Logger) *LowStockDigestJob {
	return &LowStockDigestJob{
		Catalog: lister,
		Mail:    mail,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle lists low-stock products and queues the summary email.
func (j *LowStockDigestJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil || j.Mail == nil {
		return errors.New("lowstock digest: handler not configured")
	}
	var payload LowStockDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Recipient == "" {
		return asynq.SkipRetry
	}

	products, err := j.Catalog.ListLowStock(ctx)
	if err != nil {
		j.logger().Error("list low stock", slog.Any("error", err))
		return err
	}
	if len(products) == 0 {
		j.logger().Info("no low-stock products, digest skipped")
		return nil
	}

	subject := fmt.Sprintf("Low stock digest: %d products below reorder level", len(products))
	if _, err := j.Mail.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      payload.Recipient,
		Subject: subject,
		Body:    j.renderBody(products),
	}); err != nil {
		j.logger().Error("enqueue digest mail", slog.Any("error", err))
		return err
	}
	j.logger().Info("low stock digest queued",
		slog.String("recipient", payload.Recipient),
		slog.Int("products", len(products)),
	)
	return nil
}

func (j *LowStockDigestJob) renderBody(products []catalog.Product) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "Low stock report for %s\n\n", j.now().Format("2006-01-02"))
	for _, prod := range products {
		p.Fprintf(&b, "%s  %s: %d on hand (reorder at %d)\n",
			prod.SKU, prod.Name, prod.Quantity, prod.ReorderLevel)
	}
	p.Fprintf(&b, "\n%d products need replenishment.\n", len(products))
	return b.String()
}

func (j *LowStockDigestJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LowStockDigestJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
