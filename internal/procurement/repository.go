package procurement

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

// ProductStock is the locked stock row bumped by receivings.
type ProductStock struct {
	ID       int64
	Quantity int64
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextQuotationNumber(ctx context.Context) (string, error)
	NextPONumber(ctx context.Context) (string, error)
	NextReceivingNumber(ctx context.Context) (string, error)

	InsertQuotation(ctx context.Context, q Quotation) (int64, error)
	UpdateQuotationInfo(ctx context.Context, q Quotation) error
	DeleteQuotationItems(ctx context.Context, quotationID int64) error
	InsertQuotationItem(ctx context.Context, item QuotationItem) error
	UpdateQuotationStatus(ctx context.Context, id int64, status QuotationStatus) error
	DeleteQuotation(ctx context.Context, id int64) error

	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	UpdatePOInfo(ctx context.Context, po PurchaseOrder) error
	DeletePOItems(ctx context.Context, poID int64) error
	InsertPOItem(ctx context.Context, item POItem) error
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	SetPOApproval(ctx context.Context, id, approvedBy int64, at time.Time) error
	DeletePO(ctx context.Context, id int64) error

	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	GetPOItemsForUpdate(ctx context.Context, poID int64) ([]POItem, error)
	InsertReceiving(ctx context.Context, r Receiving) (int64, error)
	InsertReceivingItem(ctx context.Context, item ReceivingItem) error
	AddItemReceived(ctx context.Context, poItemID, qty int64) error
	GetProductStockForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	UpdateProductQuantity(ctx context.Context, productID, quantity int64) error
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

const quotationSelect = `SELECT id, quotation_number, vendor_id, COALESCE(currency_id,0), status, request_date,
COALESCE(valid_until,'epoch'::timestamptz), COALESCE(quotation_date,'epoch'::timestamptz), COALESCE(note,''), created_at FROM quotations`

// GetQuotation returns quotation header and items.
func (r *Repository) GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationItem, error) {
	var q Quotation
	err := r.pool.QueryRow(ctx, quotationSelect+` WHERE id=$1`, id).
		Scan(&q.ID, &q.Number, &q.VendorID, &q.CurrencyID, &q.Status, &q.RequestDate, &q.ValidUntil, &q.QuotationDate, &q.Note, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, nil, ErrNotFound
		}
		return Quotation{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, quotation_id, product_id, qty, unit_price, COALESCE(vendor_sku,''), COALESCE(lead_time_days,0), COALESCE(note,'')
FROM quotation_items WHERE quotation_id=$1 ORDER BY id`, id)
	if err != nil {
		return Quotation{}, nil, err
	}
	defer rows.Close()
	var items []QuotationItem
	for rows.Next() {
		var item QuotationItem
		if err := rows.Scan(&item.ID, &item.QuotationID, &item.ProductID, &item.Qty, &item.UnitPrice, &item.VendorSKU, &item.LeadTimeDays, &item.Note); err != nil {
			return Quotation{}, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return Quotation{}, nil, err
	}
	return q, items, nil
}

// ListQuotations returns filtered quotation headers, newest first.
func (r *Repository) ListQuotations(ctx context.Context, limit, offset int, f QuotationFilters) ([]Quotation, int, error) {
	query := quotationSelect + ` WHERE 1=1`
	count := `SELECT COUNT(*) FROM quotations WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		clause := ` AND status=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.VendorID != 0 {
		args = append(args, f.VendorID)
		clause := ` AND vendor_id=$` + strconv.Itoa(len(args))
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
	var quotations []Quotation
	for rows.Next() {
		var q Quotation
		if err := rows.Scan(&q.ID, &q.Number, &q.VendorID, &q.CurrencyID, &q.Status, &q.RequestDate, &q.ValidUntil, &q.QuotationDate, &q.Note, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		quotations = append(quotations, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return quotations, total, nil
}

// MarkExpiredQuotations flips every stale non-terminal quotation to expired
// and reports how many rows changed. Used by the nightly sweep.
func (r *Repository) MarkExpiredQuotations(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE quotations SET status=$1
WHERE valid_until IS NOT NULL AND valid_until < $2 AND status IN ($3,$4,$5)`,
		QuotationExpired, asOf, QuotationDraft, QuotationSent, QuotationReceived)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const poSelect = `SELECT id, po_number, COALESCE(vendor_id,0), COALESCE(supplier_name,''), COALESCE(currency_id,0), status,
order_date, COALESCE(expected_delivery,'epoch'::timestamptz), COALESCE(approved_by,0), COALESCE(approved_at,'epoch'::timestamptz),
COALESCE(note,''), created_at FROM purchase_orders`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.VendorID, &po.SupplierName, &po.CurrencyID, &po.Status,
		&po.OrderDate, &po.ExpectedDelivery, &po.ApprovedBy, &po.ApprovedAt, &po.Note, &po.CreatedAt)
	return po, err
}

// GetPO returns purchase order header and items.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POItem, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, poSelect+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrNotFound
		}
		return PurchaseOrder{}, nil, err
	}
	items, err := r.poItems(ctx, r.pool, id, false)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, items, nil
}

// ListPOs returns filtered purchase order headers, newest first.
func (r *Repository) ListPOs(ctx context.Context, limit, offset int, f POFilters) ([]PurchaseOrder, int, error) {
	query := poSelect + ` WHERE 1=1`
	count := `SELECT COUNT(*) FROM purchase_orders WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		clause := ` AND status=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.VendorID != 0 {
		args = append(args, f.VendorID)
		clause := ` AND vendor_id=$` + strconv.Itoa(len(args))
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
	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) poItems(ctx context.Context, q querier, poID int64, forUpdate bool) ([]POItem, error) {
	sql := `SELECT id, po_id, product_id, qty_ordered, qty_received, unit_price FROM purchase_order_items WHERE po_id=$1 ORDER BY id`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.QtyOrdered, &item.QtyReceived, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const receivingSelect = `SELECT id, receiving_number, po_id, received_at, received_by, status, COALESCE(note,''), created_at FROM receivings`

// GetReceiving returns receiving header and items.
func (r *Repository) GetReceiving(ctx context.Context, id int64) (Receiving, []ReceivingItem, error) {
	var rec Receiving
	err := r.pool.QueryRow(ctx, receivingSelect+` WHERE id=$1`, id).
		Scan(&rec.ID, &rec.Number, &rec.POID, &rec.ReceivedAt, &rec.ReceivedBy, &rec.Status, &rec.Note, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receiving{}, nil, ErrNotFound
		}
		return Receiving{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, receiving_id, po_item_id, qty_received, COALESCE(condition_note,'')
FROM receiving_items WHERE receiving_id=$1 ORDER BY id`, id)
	if err != nil {
		return Receiving{}, nil, err
	}
	defer rows.Close()
	var items []ReceivingItem
	for rows.Next() {
		var item ReceivingItem
		if err := rows.Scan(&item.ID, &item.ReceivingID, &item.POItemID, &item.Qty, &item.ConditionNote); err != nil {
			return Receiving{}, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return Receiving{}, nil, err
	}
	return rec, items, nil
}

// ListReceivings returns receivings for one purchase order, newest first.
func (r *Repository) ListReceivings(ctx context.Context, poID int64) ([]Receiving, error) {
	rows, err := r.pool.Query(ctx, receivingSelect+` WHERE po_id=$1 ORDER BY created_at DESC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receivings []Receiving
	for rows.Next() {
		var rec Receiving
		if err := rows.Scan(&rec.ID, &rec.Number, &rec.POID, &rec.ReceivedAt, &rec.ReceivedBy, &rec.Status, &rec.Note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		receivings = append(receivings, rec)
	}
	return receivings, rows.Err()
}

func (tx *txRepo) NextQuotationNumber(ctx context.Context) (string, error) {
	return sequence.NextDocNumber(ctx, tx.tx, sequence.PrefixQuotation, time.Now())
}

func (tx *txRepo) NextPONumber(ctx context.Context) (string, error) {
	return sequence.NextDocNumber(ctx, tx.tx, sequence.PrefixPO, time.Now())
}

func (tx *txRepo) NextReceivingNumber(ctx context.Context) (string, error) {
	return sequence.NextDocNumber(ctx, tx.tx, sequence.PrefixReceiving, time.Now())
}

func (tx *txRepo) InsertQuotation(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO quotations (quotation_number, vendor_id, currency_id, status, request_date, valid_until, quotation_date, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		q.Number, q.VendorID, nullInt(q.CurrencyID), q.Status, q.RequestDate, nullTime(q.ValidUntil), nullTime(q.QuotationDate), q.Note).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateQuotationInfo(ctx context.Context, q Quotation) error {
	_, err := tx.tx.Exec(ctx, `UPDATE quotations SET vendor_id=$1, currency_id=$2, valid_until=$3, quotation_date=$4, note=$5 WHERE id=$6`,
		q.VendorID, nullInt(q.CurrencyID), nullTime(q.ValidUntil), nullTime(q.QuotationDate), q.Note, q.ID)
	return err
}

func (tx *txRepo) DeleteQuotationItems(ctx context.Context, quotationID int64) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id=$1`, quotationID)
	return err
}

func (tx *txRepo) InsertQuotationItem(ctx context.Context, item QuotationItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO quotation_items (quotation_id, product_id, qty, unit_price, vendor_sku, lead_time_days, note)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, item.QuotationID, item.ProductID, item.Qty, item.UnitPrice, item.VendorSKU, item.LeadTimeDays, item.Note)
	return err
}

func (tx *txRepo) UpdateQuotationStatus(ctx context.Context, id int64, status QuotationStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE quotations SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (tx *txRepo) DeleteQuotation(ctx context.Context, id int64) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id=$1`, id); err != nil {
		return err
	}
	_, err := tx.tx.Exec(ctx, `DELETE FROM quotations WHERE id=$1`, id)
	return err
}

func (tx *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders (po_number, vendor_id, supplier_name, currency_id, status, order_date, expected_delivery, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		po.Number, nullInt(po.VendorID), po.SupplierName, nullInt(po.CurrencyID), po.Status, po.OrderDate, nullTime(po.ExpectedDelivery), po.Note).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdatePOInfo(ctx context.Context, po PurchaseOrder) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET vendor_id=$1, supplier_name=$2, currency_id=$3, expected_delivery=$4, note=$5 WHERE id=$6`,
		nullInt(po.VendorID), po.SupplierName, nullInt(po.CurrencyID), nullTime(po.ExpectedDelivery), po.Note, po.ID)
	return err
}

func (tx *txRepo) DeletePOItems(ctx context.Context, poID int64) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id=$1`, poID)
	return err
}

func (tx *txRepo) InsertPOItem(ctx context.Context, item POItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO purchase_order_items (po_id, product_id, qty_ordered, qty_received, unit_price)
VALUES ($1,$2,$3,$4,$5)`, item.POID, item.ProductID, item.QtyOrdered, item.QtyReceived, item.UnitPrice)
	return err
}

func (tx *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (tx *txRepo) SetPOApproval(ctx context.Context, id, approvedBy int64, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET approved_by=$1, approved_at=$2 WHERE id=$3`, approvedBy, at, id)
	return err
}

func (tx *txRepo) DeletePO(ctx context.Context, id int64) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id=$1`, id); err != nil {
		return err
	}
	_, err := tx.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1`, id)
	return err
}

func (tx *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(tx.tx.QueryRow(ctx, poSelect+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (tx *txRepo) GetPOItemsForUpdate(ctx context.Context, poID int64) ([]POItem, error) {
	rows, err := tx.tx.Query(ctx, `SELECT id, po_id, product_id, qty_ordered, qty_received, unit_price
FROM purchase_order_items WHERE po_id=$1 ORDER BY id FOR UPDATE`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.QtyOrdered, &item.QtyReceived, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (tx *txRepo) InsertReceiving(ctx context.Context, r Receiving) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO receivings (receiving_number, po_id, received_at, received_by, status, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`, r.Number, r.POID, r.ReceivedAt, r.ReceivedBy, r.Status, r.Note).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertReceivingItem(ctx context.Context, item ReceivingItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO receiving_items (receiving_id, po_item_id, qty_received, condition_note)
VALUES ($1,$2,$3,$4)`, item.ReceivingID, item.POItemID, item.Qty, item.ConditionNote)
	return err
}

func (tx *txRepo) AddItemReceived(ctx context.Context, poItemID, qty int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_order_items SET qty_received=qty_received+$1 WHERE id=$2`, qty, poItemID)
	return err
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

func (tx *txRepo) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE products SET quantity=$1, updated_at=NOW() WHERE id=$2`, quantity, productID)
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
