package request

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

type memoryRequestRepo struct {
	requests map[int64]ItemRequest
	lines    map[int64][]Line
	managers map[int64]int64
	counter  int64
	nextID   int64
}

type memoryRequestTx struct {
	repo *memoryRequestRepo
}

func newMemoryRequestRepo() *memoryRequestRepo {
	return &memoryRequestRepo{
		requests: make(map[int64]ItemRequest),
		lines:    make(map[int64][]Line),
		managers: make(map[int64]int64),
	}
}

func (r *memoryRequestRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryRequestTx{repo: r})
}

func (r *memoryRequestRepo) Get(ctx context.Context, id int64) (ItemRequest, []Line, error) {
	req, ok := r.requests[id]
	if !ok {
		return ItemRequest{}, nil, ErrNotFound
	}
	return req, append([]Line(nil), r.lines[id]...), nil
}

func (r *memoryRequestRepo) List(ctx context.Context, limit, offset int, f ListFilters) ([]ItemRequest, int, error) {
	var out []ItemRequest
	for _, req := range r.requests {
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		out = append(out, req)
	}
	return out, len(out), nil
}

func (r *memoryRequestRepo) DepartmentManagerID(ctx context.Context, id int64) (int64, error) {
	return r.managers[id], nil
}

func (tx *memoryRequestTx) NextNumber(ctx context.Context) (string, error) {
	tx.repo.counter++
	return fmt.Sprintf("REQ-%d-%04d", time.Now().Year(), tx.repo.counter), nil
}

func (tx *memoryRequestTx) Insert(ctx context.Context, req ItemRequest) (int64, error) {
	tx.repo.nextID++
	req.ID = tx.repo.nextID
	tx.repo.requests[req.ID] = req
	return req.ID, nil
}

func (tx *memoryRequestTx) InsertLine(ctx context.Context, line Line) error {
	lines := tx.repo.lines[line.RequestID]
	line.ID = int64(len(lines) + 1)
	tx.repo.lines[line.RequestID] = append(lines, line)
	return nil
}

func (tx *memoryRequestTx) UpdateInfo(ctx context.Context, req ItemRequest) error {
	stored, ok := tx.repo.requests[req.ID]
	if !ok {
		return ErrNotFound
	}
	stored.DepartmentID = req.DepartmentID
	stored.SiteID = req.SiteID
	stored.Notes = req.Notes
	tx.repo.requests[req.ID] = stored
	return nil
}

func (tx *memoryRequestTx) DeleteLines(ctx context.Context, requestID int64) error {
	delete(tx.repo.lines, requestID)
	return nil
}

func (tx *memoryRequestTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	stored, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	stored.Status = status
	tx.repo.requests[id] = stored
	return nil
}

func (tx *memoryRequestTx) SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time, reason string) error {
	stored, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	stored.ApprovedBy = approvedBy
	stored.ApprovedDate = approvedAt
	stored.RejectionReason = reason
	tx.repo.requests[id] = stored
	return nil
}

func (tx *memoryRequestTx) ApproveLines(ctx context.Context, requestID int64) error {
	lines := tx.repo.lines[requestID]
	for i := range lines {
		lines[i].QtyApproved = lines[i].QtyRequested
	}
	tx.repo.lines[requestID] = lines
	return nil
}

func (tx *memoryRequestTx) Delete(ctx context.Context, id int64) error {
	delete(tx.repo.lines, id)
	delete(tx.repo.requests, id)
	return nil
}

type denyAllPolicy struct{}

func (denyAllPolicy) Authorize(ctx context.Context, actorID int64, capability string) error {
	return shared.ErrPermissionDenied
}

func TestCreateAssignsNumberAndPendingStatus(t *testing.T) {
	repo := newMemoryRequestRepo()
	svc := NewService(repo, shared.AllowAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{DepartmentID: 2, Lines: []LineInput{{ProductID: 10, Qty: 5}}})
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("REQ-%d-0001", time.Now().Year()), req.Number)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, int64(7), req.RequestedBy)
	require.Equal(t, PriorityMedium, req.Priority)

	_, lines, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, int64(5), lines[0].QtyRequested)
	require.Zero(t, lines[0].QtyApproved)
}

func TestCreateRejectsEmptyAndNonPositiveLines(t *testing.T) {
	repo := newMemoryRequestRepo()
	svc := NewService(repo, shared.AllowAllPolicy{}, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 7, CreateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, 7, CreateInput{Lines: []LineInput{{ProductID: 10, Qty: 0}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, 7, CreateInput{Priority: "someday", Lines: []LineInput{{ProductID: 10, Qty: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApproveStampsApproverAndFillsLines(t *testing.T) {
	repo := newMemoryRequestRepo()
	repo.managers[2] = 9
	svc := NewService(repo, denyAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{DepartmentID: 2, Lines: []LineInput{{ProductID: 10, Qty: 5}, {ProductID: 11, Qty: 2}}})
	require.NoError(t, err)

	require.NoError(t, svc.Approve(ctx, 9, req.ID))

	stored, lines, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)
	require.Equal(t, int64(9), stored.ApprovedBy)
	require.False(t, stored.ApprovedDate.IsZero())
	for _, line := range lines {
		require.Equal(t, line.QtyRequested, line.QtyApproved)
	}
}

func TestApproveNonPendingFails(t *testing.T) {
	repo := newMemoryRequestRepo()
	repo.managers[2] = 9
	svc := NewService(repo, shared.AllowAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{DepartmentID: 2, Lines: []LineInput{{ProductID: 10, Qty: 5}}})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, 9, req.ID))

	err = svc.Approve(ctx, 9, req.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestApproveRequiresManagerOrCapability(t *testing.T) {
	repo := newMemoryRequestRepo()
	repo.managers[2] = 9
	svc := NewService(repo, denyAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{DepartmentID: 2, Lines: []LineInput{{ProductID: 10, Qty: 5}}})
	require.NoError(t, err)

	err = svc.Approve(ctx, 7, req.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	stored, _, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestRejectRequiresReason(t *testing.T) {
	repo := newMemoryRequestRepo()
	repo.managers[2] = 9
	svc := NewService(repo, shared.AllowAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{DepartmentID: 2, Lines: []LineInput{{ProductID: 10, Qty: 5}}})
	require.NoError(t, err)

	err = svc.Reject(ctx, 9, req.ID, "   ")
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.Reject(ctx, 9, req.ID, "budget frozen"))
	stored, _, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, stored.Status)
	require.Equal(t, "budget frozen", stored.RejectionReason)
}

func TestCancelAllowedForRequesterOnly(t *testing.T) {
	repo := newMemoryRequestRepo()
	svc := NewService(repo, denyAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{Lines: []LineInput{{ProductID: 10, Qty: 5}}})
	require.NoError(t, err)

	err = svc.Cancel(ctx, 8, req.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	require.NoError(t, svc.Cancel(ctx, 7, req.ID))
	stored, _, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
}

func TestUpdateReplacesLinesWhilePending(t *testing.T) {
	repo := newMemoryRequestRepo()
	svc := NewService(repo, shared.AllowAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{Lines: []LineInput{{ProductID: 10, Qty: 5}}})
	require.NoError(t, err)

	err = svc.Update(ctx, 7, req.ID, CreateInput{Notes: "urgent", Lines: []LineInput{{ProductID: 11, Qty: 3}, {ProductID: 12, Qty: 1}}})
	require.NoError(t, err)

	stored, lines, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "urgent", stored.Notes)
	require.Len(t, lines, 2)
	require.Equal(t, int64(11), lines[0].ProductID)
}

func TestDeleteOnlyPending(t *testing.T) {
	repo := newMemoryRequestRepo()
	repo.managers[2] = 9
	svc := NewService(repo, shared.AllowAllPolicy{}, nil, nil)
	ctx := context.Background()

	req, err := svc.Create(ctx, 7, CreateInput{DepartmentID: 2, Lines: []LineInput{{ProductID: 10, Qty: 5}}})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, 9, req.ID))

	err = svc.Delete(ctx, 7, req.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	second, err := svc.Create(ctx, 7, CreateInput{Lines: []LineInput{{ProductID: 10, Qty: 1}}})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 7, second.ID))
	_, _, err = svc.Get(ctx, second.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
