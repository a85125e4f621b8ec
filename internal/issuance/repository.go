package issuance

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harbor-wms/harbor-wms/internal/platform/db"
	"github.com/harbor-wms/harbor-wms/internal/request"
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

// TxRepository exposes transactional operations. Request and product rows
// are locked FOR UPDATE so concurrent issuances serialize on them.
type TxRepository interface {
	NextNumber(ctx context.Context) (string, error)
	GetRequestForUpdate(ctx context.Context, id int64) (request.ItemRequest, error)
	GetRequestLinesForUpdate(ctx context.Context, requestID int64) ([]request.Line, error)
	GetProductStockForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	Insert(ctx context.Context, iss Issuance) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	AddLineIssued(ctx context.Context, requestLineID, qty int64) error
	UpdateProductQuantity(ctx context.Context, productID, quantity int64) error
	UpdateRequestStatus(ctx context.Context, requestID int64, status request.Status) error
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

const issuanceSelect = `SELECT id, issuance_number, request_id, issued_by, COALESCE(issued_to,0), issued_date, status, COALESCE(notes,''), created_at FROM issuances`

// Get returns issuance header and lines.
func (r *Repository) Get(ctx context.Context, id int64) (Issuance, []Line, error) {
	var iss Issuance
	err := r.pool.QueryRow(ctx, issuanceSelect+` WHERE id=$1`, id).
		Scan(&iss.ID, &iss.Number, &iss.RequestID, &iss.IssuedBy, &iss.IssuedTo, &iss.IssuedDate, &iss.Status, &iss.Notes, &iss.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issuance{}, nil, ErrNotFound
		}
		return Issuance{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, issuance_id, product_id, request_line_id, quantity FROM issuance_lines WHERE issuance_id=$1 ORDER BY id`, id)
	if err != nil {
		return Issuance{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.IssuanceID, &line.ProductID, &line.RequestLineID, &line.Qty); err != nil {
			return Issuance{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return Issuance{}, nil, err
	}
	return iss, lines, nil
}

// List returns filtered issuance headers, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int, f ListFilters) ([]Issuance, int, error) {
	query := issuanceSelect + ` WHERE 1=1`
	count := `SELECT COUNT(*) FROM issuances WHERE 1=1`
	args := []any{}
	if f.RequestID != 0 {
		args = append(args, f.RequestID)
		clause := ` AND request_id=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.IssuedBy != 0 {
		args = append(args, f.IssuedBy)
		clause := ` AND issued_by=$` + strconv.Itoa(len(args))
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
	var issuances []Issuance
	for rows.Next() {
		var iss Issuance
		if err := rows.Scan(&iss.ID, &iss.Number, &iss.RequestID, &iss.IssuedBy, &iss.IssuedTo, &iss.IssuedDate, &iss.Status, &iss.Notes, &iss.CreatedAt); err != nil {
			return nil, 0, err
		}
		issuances = append(issuances, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return issuances, total, nil
}

func (tx *txRepo) NextNumber(ctx context.Context) (string, error) {
	return sequence.NextDocNumber(ctx, tx.tx, sequence.PrefixIssuance, time.Now())
}

func (tx *txRepo) GetRequestForUpdate(ctx context.Context, id int64) (request.ItemRequest, error) {
	var req request.ItemRequest
	err := tx.tx.QueryRow(ctx, `SELECT id, request_number, COALESCE(department_id,0), requested_by, status FROM item_requests WHERE id=$1 FOR UPDATE`, id).
		Scan(&req.ID, &req.Number, &req.DepartmentID, &req.RequestedBy, &req.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return request.ItemRequest{}, request.ErrNotFound
		}
		return request.ItemRequest{}, err
	}
	return req, nil
}

func (tx *txRepo) GetRequestLinesForUpdate(ctx context.Context, requestID int64) ([]request.Line, error) {
	rows, err := tx.tx.Query(ctx, `SELECT id, request_id, product_id, quantity_requested, quantity_approved, quantity_issued, COALESCE(notes,'')
FROM item_request_lines WHERE request_id=$1 ORDER BY id FOR UPDATE`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []request.Line
	for rows.Next() {
		var line request.Line
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ProductID, &line.QtyRequested, &line.QtyApproved, &line.QtyIssued, &line.Notes); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (tx *txRepo) GetProductStockForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	var stock ProductStock
	err := tx.tx.QueryRow(ctx, `SELECT id, quantity FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&stock.ID, &stock.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, ErrNotFound
		}
		return ProductStock{}, err
	}
	return stock, nil
}

func (tx *txRepo) Insert(ctx context.Context, iss Issuance) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO issuances (issuance_number, request_id, issued_by, issued_to, issued_date, status, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`, iss.Number, iss.RequestID, iss.IssuedBy, nullInt(iss.IssuedTo), iss.IssuedDate, iss.Status, iss.Notes).Scan(&id)
	return id, err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func (tx *txRepo) InsertLine(ctx context.Context, line Line) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO issuance_lines (issuance_id, product_id, request_line_id, quantity)
VALUES ($1,$2,$3,$4)`, line.IssuanceID, line.ProductID, line.RequestLineID, line.Qty)
	return err
}

func (tx *txRepo) AddLineIssued(ctx context.Context, requestLineID, qty int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE item_request_lines SET quantity_issued=quantity_issued+$1 WHERE id=$2`, qty, requestLineID)
	return err
}

func (tx *txRepo) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE products SET quantity=$1, updated_at=NOW() WHERE id=$2`, quantity, productID)
	return err
}

func (tx *txRepo) UpdateRequestStatus(ctx context.Context, requestID int64, status request.Status) error {
	_, err := tx.tx.Exec(ctx, `UPDATE item_requests SET status=$1 WHERE id=$2`, status, requestID)
	return err
}
