package transfer

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

// ProductPlacement is the locked product row consulted by transfers.
type ProductPlacement struct {
	ID         int64
	LocationID int64
	Quantity   int64
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextNumber(ctx context.Context) (string, error)
	GetProductForUpdate(ctx context.Context, productID int64) (ProductPlacement, error)
	Insert(ctx context.Context, t Transfer) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	SetCompletion(ctx context.Context, id, transferredBy int64, at time.Time) error
	UpdateProductLocation(ctx context.Context, productID, locationID int64) error
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

const transferSelect = `SELECT id, transfer_number, product_id, from_location_id, to_location_id, quantity, status,
requested_by, COALESCE(transferred_by,0), COALESCE(transfer_date,'epoch'::timestamptz), COALESCE(notes,''), created_at FROM stock_transfers`

// Get returns one transfer.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	var t Transfer
	err := r.pool.QueryRow(ctx, transferSelect+` WHERE id=$1`, id).
		Scan(&t.ID, &t.Number, &t.ProductID, &t.FromLocationID, &t.ToLocationID, &t.Qty, &t.Status,
			&t.RequestedBy, &t.TransferredBy, &t.TransferDate, &t.Notes, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	return t, nil
}

// List returns filtered transfers, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int, f ListFilters) ([]Transfer, int, error) {
	query := transferSelect + ` WHERE 1=1`
	count := `SELECT COUNT(*) FROM stock_transfers WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		clause := ` AND status=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.ProductID != 0 {
		args = append(args, f.ProductID)
		clause := ` AND product_id=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.LocationID != 0 {
		args = append(args, f.LocationID)
		placeholder := `$` + strconv.Itoa(len(args))
		clause := ` AND (from_location_id=` + placeholder + ` OR to_location_id=` + placeholder + `)`
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
	var transfers []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.Number, &t.ProductID, &t.FromLocationID, &t.ToLocationID, &t.Qty, &t.Status,
			&t.RequestedBy, &t.TransferredBy, &t.TransferDate, &t.Notes, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}

func (tx *txRepo) NextNumber(ctx context.Context) (string, error) {
	return sequence.NextDocNumber(ctx, tx.tx, sequence.PrefixTransfer, time.Now())
}

func (tx *txRepo) GetProductForUpdate(ctx context.Context, productID int64) (ProductPlacement, error) {
	var p ProductPlacement
	err := tx.tx.QueryRow(ctx, `SELECT id, COALESCE(location_id,0), quantity FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.LocationID, &p.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductPlacement{}, ErrNotFound
		}
		return ProductPlacement{}, err
	}
	return p, nil
}

func (tx *txRepo) Insert(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO stock_transfers (transfer_number, product_id, from_location_id, to_location_id, quantity, status, requested_by, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		t.Number, t.ProductID, t.FromLocationID, t.ToLocationID, t.Qty, t.Status, t.RequestedBy, t.Notes).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := tx.tx.Exec(ctx, `UPDATE stock_transfers SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (tx *txRepo) SetCompletion(ctx context.Context, id, transferredBy int64, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE stock_transfers SET transferred_by=$1, transfer_date=$2 WHERE id=$3`, transferredBy, at, id)
	return err
}

func (tx *txRepo) UpdateProductLocation(ctx context.Context, productID, locationID int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE products SET location_id=$1, updated_at=NOW() WHERE id=$2`, locationID, productID)
	return err
}
