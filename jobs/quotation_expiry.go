package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

const (
	// TaskQuotationExpiry sweeps quotations past their validity date.
	TaskQuotationExpiry = "procurement:quotation_expiry"

	quotationExpiryLockTTL = 5 * time.Minute
)

// QuotationExpiryPayload carries scheduling metadata for the sweep.
type QuotationExpiryPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewQuotationExpiryTask constructs an Asynq task for the expiry sweep.
func NewQuotationExpiryTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(QuotationExpiryPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationExpiry, body, asynq.Queue(QueueDefault)), nil
}

// QuotationExpirer marks stale quotations as expired and reports how many changed.
type QuotationExpirer interface {
	ExpireQuotations(ctx context.Context, asOf time.Time) (int64, error)
}

// QuotationExpiryJob runs the expiry sweep behind a redis lock so overlapping
// schedules do not double-run.
type QuotationExpiryJob struct {
	Expirer QuotationExpirer
	Redis   *redis.Client
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewQuotationExpiryJob initialises the expiry handler.
func NewQuotationExpiryJob(expirer QuotationExpirer, redisClient *redis.Client, logger *slog.Logger) *QuotationExpiryJob {
	return &QuotationExpiryJob{
		Expirer: expirer,
		Redis:   redisClient,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *QuotationExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Expirer == nil {
		return errors.New("quotation expiry: handler not configured")
	}
	var payload QuotationExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.ScheduledFor
	if asOf.IsZero() {
		asOf = j.now()
	}

	if j.Redis != nil {
		key := shared.TaskLockKey(TaskQuotationExpiry)
		locked, err := j.Redis.SetNX(ctx, key, asOf.Format(time.RFC3339), quotationExpiryLockTTL).Result()
		if err != nil {
			j.logger().Warn("expiry lock unavailable", slog.Any("error", err))
		} else if !locked {
			j.logger().Info("expiry sweep already running, skipping")
			return nil
		} else {
			defer func() {
				_ = j.Redis.Del(context.WithoutCancel(ctx), key).Err()
			}()
		}
	}

	expired, err := j.Expirer.ExpireQuotations(ctx, asOf)
	if err != nil {
		j.logger().Error("expiry sweep failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("quotation expiry sweep completed",
		slog.Time("as_of", asOf),
		slog.Int64("expired", expired),
	)
	return nil
}

func (j *QuotationExpiryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *QuotationExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
