package request

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harbor-wms/harbor-wms/internal/platform/db"
	"github.com/harbor-wms/harbor-wms/internal/sequence"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextNumber(ctx context.Context) (string, error)
	Insert(ctx context.Context, req ItemRequest) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	UpdateInfo(ctx context.Context, req ItemRequest) error
	DeleteLines(ctx context.Context, requestID int64) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time, reason string) error
	ApproveLines(ctx context.Context, requestID int64) error
	Delete(ctx context.Context, id int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const headerSelect = `SELECT id, request_number, COALESCE(department_id,0), COALESCE(site_id,0), requested_by, priority,
requested_date, COALESCE(required_by,'epoch'::timestamptz), COALESCE(approved_by,0), COALESCE(approved_date,'epoch'::timestamptz),
COALESCE(rejection_reason,''), status, COALESCE(notes,''), created_at FROM item_requests`

// Get returns request header and lines.
func (r *Repository) Get(ctx context.Context, id int64) (ItemRequest, []Line, error) {
	var req ItemRequest
	err := r.pool.QueryRow(ctx, headerSelect+` WHERE id=$1`, id).
		Scan(&req.ID, &req.Number, &req.DepartmentID, &req.SiteID, &req.RequestedBy, &req.Priority, &req.RequestedDate,
			&req.RequiredBy, &req.ApprovedBy, &req.ApprovedDate, &req.RejectionReason, &req.Status, &req.Notes, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemRequest{}, nil, ErrNotFound
		}
		return ItemRequest{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, product_id, quantity_requested, quantity_approved, quantity_issued, COALESCE(site_id,0), COALESCE(notes,'')
FROM item_request_lines WHERE request_id=$1 ORDER BY id`, id)
	if err != nil {
		return ItemRequest{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ProductID, &line.QtyRequested, &line.QtyApproved, &line.QtyIssued, &line.SiteID, &line.Notes); err != nil {
			return ItemRequest{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return ItemRequest{}, nil, err
	}
	return req, lines, nil
}

// List returns filtered request headers, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int, f ListFilters) ([]ItemRequest, int, error) {
	query := headerSelect + ` WHERE 1=1`
	count := `SELECT COUNT(*) FROM item_requests WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		clause := ` AND status=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.DepartmentID != 0 {
		args = append(args, f.DepartmentID)
		clause := ` AND department_id=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.RequestedBy != 0 {
		args = append(args, f.RequestedBy)
		clause := ` AND requested_by=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	var total int
	if err := r.pool.QueryRow(ctx, count, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var requests []ItemRequest
	for rows.Next() {
		var req ItemRequest
		if err := rows.Scan(&req.ID, &req.Number, &req.DepartmentID, &req.SiteID, &req.RequestedBy, &req.Priority, &req.RequestedDate,
			&req.RequiredBy, &req.ApprovedBy, &req.ApprovedDate, &req.RejectionReason, &req.Status, &req.Notes, &req.CreatedAt); err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// DepartmentManagerID resolves the manager of a department, 0 when unset.
func (r *Repository) DepartmentManagerID(ctx context.Context, id int64) (int64, error) {
	var managerID int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(manager_id,0) FROM departments WHERE id=$1`, id).Scan(&managerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return managerID, nil
}

func (tx *txRepo) NextNumber(ctx context.Context) (string, error) {
	return sequence.NextDocNumber(ctx, tx.tx, sequence.PrefixRequest, time.Now())
}

func (tx *txRepo) Insert(ctx context.Context, req ItemRequest) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO item_requests (request_number, department_id, site_id, requested_by, priority, requested_date, required_by, status, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		req.Number, nullInt(req.DepartmentID), nullInt(req.SiteID), req.RequestedBy, req.Priority, req.RequestedDate, nullTime(req.RequiredBy), req.Status, req.Notes).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertLine(ctx context.Context, line Line) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO item_request_lines (request_id, product_id, quantity_requested, quantity_approved, quantity_issued, site_id, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, line.RequestID, line.ProductID, line.QtyRequested, line.QtyApproved, line.QtyIssued, nullInt(line.SiteID), line.Notes)
	return err
}

func (tx *txRepo) UpdateInfo(ctx context.Context, req ItemRequest) error {
	_, err := tx.tx.Exec(ctx, `UPDATE item_requests SET department_id=$1, site_id=$2, priority=$3, required_by=$4, notes=$5 WHERE id=$6`,
		nullInt(req.DepartmentID), nullInt(req.SiteID), req.Priority, nullTime(req.RequiredBy), req.Notes, req.ID)
	return err
}

func (tx *txRepo) DeleteLines(ctx context.Context, requestID int64) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM item_request_lines WHERE request_id=$1`, requestID)
	return err
}

func (tx *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := tx.tx.Exec(ctx, `UPDATE item_requests SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (tx *txRepo) SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time, reason string) error {
	_, err := tx.tx.Exec(ctx, `UPDATE item_requests SET approved_by=$1, approved_date=$2, rejection_reason=$3 WHERE id=$4`,
		nullInt(approvedBy), approvedAt, reason, id)
	return err
}

func (tx *txRepo) ApproveLines(ctx context.Context, requestID int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE item_request_lines SET quantity_approved=quantity_requested WHERE request_id=$1`, requestID)
	return err
}

func (tx *txRepo) Delete(ctx context.Context, id int64) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM item_request_lines WHERE request_id=$1`, id); err != nil {
		return err
	}
	_, err := tx.tx.Exec(ctx, `DELETE FROM item_requests WHERE id=$1`, id)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}
