package issuance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harbor-wms/harbor-wms/internal/request"
	"github.com/harbor-wms/harbor-wms/internal/shared"
)

type memoryIssuanceRepo struct {
	requests  map[int64]request.ItemRequest
	reqLines  map[int64]request.Line
	stock     map[int64]int64
	issuances map[int64]Issuance
	issLines  map[int64][]Line
	counter   int64
	nextID    int64
}

type memoryIssuanceTx struct {
	repo *memoryIssuanceRepo
}

func newMemoryIssuanceRepo() *memoryIssuanceRepo {
	return &memoryIssuanceRepo{
		requests:  make(map[int64]request.ItemRequest),
		reqLines:  make(map[int64]request.Line),
		stock:     make(map[int64]int64),
		issuances: make(map[int64]Issuance),
		issLines:  make(map[int64][]Line),
	}
}

func (r *memoryIssuanceRepo) snapshot() *memoryIssuanceRepo {
	clone := newMemoryIssuanceRepo()
	for k, v := range r.requests {
		clone.requests[k] = v
	}
	for k, v := range r.reqLines {
		clone.reqLines[k] = v
	}
	for k, v := range r.stock {
		clone.stock[k] = v
	}
	for k, v := range r.issuances {
		clone.issuances[k] = v
	}
	for k, v := range r.issLines {
		clone.issLines[k] = append([]Line(nil), v...)
	}
	clone.counter = r.counter
	clone.nextID = r.nextID
	return clone
}

// WithTx restores the pre-transaction state when fn fails, mirroring a
// database rollback.
func (r *memoryIssuanceRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := r.snapshot()
	if err := fn(ctx, &memoryIssuanceTx{repo: r}); err != nil {
		*r = *saved
		return err
	}
	return nil
}

func (r *memoryIssuanceRepo) Get(ctx context.Context, id int64) (Issuance, []Line, error) {
	iss, ok := r.issuances[id]
	if !ok {
		return Issuance{}, nil, ErrNotFound
	}
	return iss, append([]Line(nil), r.issLines[id]...), nil
}

func (r *memoryIssuanceRepo) List(ctx context.Context, limit, offset int, f ListFilters) ([]Issuance, int, error) {
	var out []Issuance
	for _, iss := range r.issuances {
		if f.RequestID != 0 && iss.RequestID != f.RequestID {
			continue
		}
		out = append(out, iss)
	}
	return out, len(out), nil
}

func (tx *memoryIssuanceTx) NextNumber(ctx context.Context) (string, error) {
	tx.repo.counter++
	return fmt.Sprintf("ISS-%d-%04d", time.Now().Year(), tx.repo.counter), nil
}

func (tx *memoryIssuanceTx) GetRequestForUpdate(ctx context.Context, id int64) (request.ItemRequest, error) {
	req, ok := tx.repo.requests[id]
	if !ok {
		return request.ItemRequest{}, request.ErrNotFound
	}
	return req, nil
}

func (tx *memoryIssuanceTx) GetRequestLinesForUpdate(ctx context.Context, requestID int64) ([]request.Line, error) {
	var lines []request.Line
	for _, line := range tx.repo.reqLines {
		if line.RequestID == requestID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (tx *memoryIssuanceTx) GetProductStockForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	qty, ok := tx.repo.stock[productID]
	if !ok {
		return ProductStock{}, ErrNotFound
	}
	return ProductStock{ID: productID, Quantity: qty}, nil
}

func (tx *memoryIssuanceTx) Insert(ctx context.Context, iss Issuance) (int64, error) {
	tx.repo.nextID++
	iss.ID = tx.repo.nextID
	tx.repo.issuances[iss.ID] = iss
	return iss.ID, nil
}

func (tx *memoryIssuanceTx) InsertLine(ctx context.Context, line Line) error {
	tx.repo.issLines[line.IssuanceID] = append(tx.repo.issLines[line.IssuanceID], line)
	return nil
}

func (tx *memoryIssuanceTx) AddLineIssued(ctx context.Context, requestLineID, qty int64) error {
	line, ok := tx.repo.reqLines[requestLineID]
	if !ok {
		return request.ErrNotFound
	}
	line.QtyIssued += qty
	tx.repo.reqLines[requestLineID] = line
	return nil
}

func (tx *memoryIssuanceTx) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	tx.repo.stock[productID] = quantity
	return nil
}

func (tx *memoryIssuanceTx) UpdateRequestStatus(ctx context.Context, requestID int64, status request.Status) error {
	req, ok := tx.repo.requests[requestID]
	if !ok {
		return request.ErrNotFound
	}
	req.Status = status
	tx.repo.requests[requestID] = req
	return nil
}

func seedApprovedRequest(repo *memoryIssuanceRepo) {
	repo.requests[1] = request.ItemRequest{ID: 1, Number: "REQ-2026-0001", Status: request.StatusApproved}
	repo.reqLines[10] = request.Line{ID: 10, RequestID: 1, ProductID: 100, QtyRequested: 5, QtyApproved: 5}
	repo.reqLines[11] = request.Line{ID: 11, RequestID: 1, ProductID: 101, QtyRequested: 2, QtyApproved: 2}
	repo.stock[100] = 8
	repo.stock[101] = 2
}

func TestCreatePartialIssuanceMovesRequestToIssued(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	iss, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 3}}})
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ISS-%d-0001", time.Now().Year()), iss.Number)
	require.Equal(t, StatusCompleted, iss.Status)

	require.Equal(t, int64(5), repo.stock[100])
	require.Equal(t, int64(3), repo.reqLines[10].QtyIssued)
	require.Equal(t, request.StatusIssued, repo.requests[1].Status)
}

func TestCreateFullIssuanceCompletesRequest(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 5}, {RequestLineID: 11, Qty: 2}}})
	require.NoError(t, err)

	require.Equal(t, int64(3), repo.stock[100])
	require.Equal(t, int64(0), repo.stock[101])
	require.Equal(t, request.StatusCompleted, repo.requests[1].Status)
}

func TestCreateRejectsOverIssuance(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 6}}})
	require.ErrorIs(t, err, shared.ErrQuantityExceeded)
	require.Equal(t, int64(8), repo.stock[100])
}

func TestCreateRejectsInsufficientStock(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	repo.stock[100] = 2
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 3}}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(2), repo.stock[100])
}

func TestCreateRequiresApprovedRequest(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for _, status := range []request.Status{request.StatusPending, request.StatusIssued, request.StatusCompleted, request.StatusRejected} {
		req := repo.requests[1]
		req.Status = status
		repo.requests[1] = req

		_, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 1}}})
		require.ErrorIs(t, err, shared.ErrInvalidState, "status %s", status)
	}
	require.Empty(t, repo.issuances)
}

func TestCreateSkipsZeroQuantityLines(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// Clients submit the full line set; blank lines mean nothing issued.
	iss, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 5}, {RequestLineID: 11, Qty: 0}}})
	require.NoError(t, err)

	_, lines, err := svc.Get(ctx, iss.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, int64(2), repo.stock[101])
	require.Zero(t, repo.reqLines[11].QtyIssued)
	require.Equal(t, request.StatusIssued, repo.requests[1].Status)
}

func TestCreateRejectsAllZeroQuantities(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 0}, {RequestLineID: 11, Qty: 0}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.issuances)
	require.Equal(t, request.StatusApproved, repo.requests[1].Status)
}

func TestCreateFailureRollsBackEverything(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// First item drains, second over-issues so the whole document fails.
	_, err := svc.Create(ctx, 3, CreateInput{RequestID: 1, Items: []ItemInput{{RequestLineID: 10, Qty: 5}, {RequestLineID: 11, Qty: 3}}})
	require.ErrorIs(t, err, shared.ErrQuantityExceeded)

	require.Equal(t, int64(8), repo.stock[100])
	require.Zero(t, repo.reqLines[10].QtyIssued)
	require.Equal(t, request.StatusApproved, repo.requests[1].Status)
	require.Empty(t, repo.issuances)
}

func TestCreateRejectsForeignLine(t *testing.T) {
	repo := newMemoryIssuanceRepo()
	seedApprovedRequest(repo)
	repo.requests[2] = request.ItemRequest{ID: 2, Number: "REQ-2026-0002", Status: request.StatusApproved}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 3, CreateInput{RequestID: 2, Items: []ItemInput{{RequestLineID: 10, Qty: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}
