package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harbor-wms/harbor-wms/internal/catalog"
	"github.com/harbor-wms/harbor-wms/internal/shared"
)

type fakeExpirer struct {
	calls int
	asOf  time.Time
	count int64
	err   error
}

func (f *fakeExpirer) ExpireQuotations(ctx context.Context, asOf time.Time) (int64, error) {
	f.calls++
	f.asOf = asOf
	return f.count, f.err
}

func TestQuotationExpirySweepRuns(t *testing.T) {
	expirer := &fakeExpirer{count: 3}
	job := NewQuotationExpiryJob(expirer, nil, nil)

	scheduled := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)
	task, err := NewQuotationExpiryTask(scheduled)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, expirer.calls)
	require.True(t, expirer.asOf.Equal(scheduled))
}

func TestQuotationExpirySkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, mr.Set(shared.TaskLockKey(TaskQuotationExpiry), "held"))

	expirer := &fakeExpirer{}
	job := NewQuotationExpiryJob(expirer, redisClient, nil)

	task, err := NewQuotationExpiryTask(time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, expirer.calls)
}

func TestQuotationExpiryReleasesLock(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	expirer := &fakeExpirer{count: 1}
	job := NewQuotationExpiryJob(expirer, redisClient, nil)

	task, err := NewQuotationExpiryTask(time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, expirer.calls)
	require.False(t, mr.Exists(shared.TaskLockKey(TaskQuotationExpiry)))
}

type fakeLister struct {
	products []catalog.Product
	err      error
}

func (f *fakeLister) ListLowStock(ctx context.Context) ([]catalog.Product, error) {
	return f.products, f.err
}

type captureMail struct {
	sent []SendEmailPayload
}

func (c *captureMail) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	c.sent = append(c.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func TestLowStockDigestQueuesMail(t *testing.T) {
	lister := &fakeLister{products: []catalog.Product{
		{SKU: "SKU-0001", Name: "Stretch Wrap", Quantity: 2, ReorderLevel: 10},
		{SKU: "SKU-0002", Name: "Pallet Jack Wheels", Quantity: 0, ReorderLevel: 4},
	}}
	mail := &captureMail{}
	job := NewLowStockDigestJob(lister, mail, nil)

	task, err := NewLowStockDigestTask("ops@example.com")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, mail.sent, 1)
	require.Equal(t, "ops@example.com", mail.sent[0].To)
	require.Contains(t, mail.sent[0].Subject, "2 products")
	require.Contains(t, mail.sent[0].Body, "SKU-0001")
	require.Contains(t, mail.sent[0].Body, "reorder at 10")
}

func TestLowStockDigestSkipsWhenHealthy(t *testing.T) {
	mail := &captureMail{}
	job := NewLowStockDigestJob(&fakeLister{}, mail, nil)

	task, err := NewLowStockDigestTask("ops@example.com")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, mail.sent)
}

func TestLowStockDigestRequiresRecipient(t *testing.T) {
	mail := &captureMail{}
	job := NewLowStockDigestJob(&fakeLister{products: []catalog.Product{{SKU: "SKU-0001"}}}, mail, nil)

	task, err := NewLowStockDigestTask("")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
	require.Empty(t, mail.sent)
}
