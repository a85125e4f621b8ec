package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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
	NextProductSKU(ctx context.Context) (string, error)
	NextVendorCode(ctx context.Context) (string, error)
	InsertProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, p Product) error
	InsertVendor(ctx context.Context, v Vendor) (int64, error)
	UpdateVendor(ctx context.Context, v Vendor) error
	UpsertVendorProduct(ctx context.Context, vp VendorProduct) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return translateErr(db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	}))
}

// GetProduct fetches a product by ID.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, productSelect+` WHERE id=$1`, id))
}

// GetProductBySKU fetches a product by business code.
func (r *Repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, productSelect+` WHERE sku=$1`, sku))
}

const productSelect = `SELECT id, sku, name, COALESCE(description,''), quantity, reorder_level, COALESCE(unit_price,0),
COALESCE(location_id,0), COALESCE(uom_id,0), is_active, created_at, updated_at FROM products`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Quantity, &p.ReorderLevel, &p.UnitPrice,
		&p.LocationID, &p.UOMID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns a filtered page of products plus the total count.
func (r *Repository) ListProducts(ctx context.Context, limit, offset int, f ListFilters) ([]Product, int, error) {
	query := productSelect + ` WHERE 1=1`
	count := `SELECT COUNT(*) FROM products WHERE 1=1`
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		clause := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR sku ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += clause
		count += clause
	}
	if f.LocationID != 0 {
		args = append(args, f.LocationID)
		clause := ` AND location_id=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		clause := ` AND is_active=$` + strconv.Itoa(len(args))
		query += clause
		count += clause
	}
	var total int
	if err := r.pool.QueryRow(ctx, count, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query += ` ORDER BY ` + sortColumn(f.SortBy) + ` ` + sortOrder(f.SortDir)
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Quantity, &p.ReorderLevel, &p.UnitPrice,
			&p.LocationID, &p.UOMID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// ListLowStock returns active products at or below their reorder level.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, productSelect+` WHERE is_active AND quantity <= reorder_level ORDER BY quantity ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Quantity, &p.ReorderLevel, &p.UnitPrice,
			&p.LocationID, &p.UOMID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetVendor fetches a vendor by ID.
func (r *Repository) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, COALESCE(contact_person,''), COALESCE(email,''),
COALESCE(phone,''), COALESCE(address,''), COALESCE(payment_terms,''), COALESCE(currency_id,0), is_active, created_at FROM vendors WHERE id=$1`, id).
		Scan(&v.ID, &v.Code, &v.Name, &v.ContactPerson, &v.Email, &v.Phone, &v.Address, &v.PaymentTerms, &v.CurrencyID, &v.IsActive, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, ErrNotFound
		}
		return Vendor{}, err
	}
	return v, nil
}

// ListVendors returns vendors ordered by name.
func (r *Repository) ListVendors(ctx context.Context, activeOnly bool) ([]Vendor, error) {
	query := `SELECT id, code, name, COALESCE(contact_person,''), COALESCE(email,''),
COALESCE(phone,''), COALESCE(address,''), COALESCE(payment_terms,''), COALESCE(currency_id,0), is_active, created_at FROM vendors`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Code, &v.Name, &v.ContactPerson, &v.Email, &v.Phone, &v.Address, &v.PaymentTerms, &v.CurrencyID, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// ListVendorProducts returns a vendor's price list.
func (r *Repository) ListVendorProducts(ctx context.Context, vendorID int64) ([]VendorProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, vendor_id, product_id, COALESCE(vendor_sku,''), unit_price,
COALESCE(currency_id,0), min_order_qty, lead_time_days, is_active FROM vendor_products WHERE vendor_id=$1 ORDER BY product_id`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []VendorProduct
	for rows.Next() {
		var vp VendorProduct
		if err := rows.Scan(&vp.ID, &vp.VendorID, &vp.ProductID, &vp.VendorSKU, &vp.UnitPrice, &vp.CurrencyID, &vp.MinOrderQty, &vp.LeadTimeDays, &vp.IsActive); err != nil {
			return nil, err
		}
		items = append(items, vp)
	}
	return items, rows.Err()
}

// ListLocations returns active storage locations ordered by code.
func (r *Repository) ListLocations(ctx context.Context) ([]StorageLocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, is_active FROM storage_locations WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locations []StorageLocation
	for rows.Next() {
		var l StorageLocation
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.IsActive); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// ListUOMs returns units of measure.
func (r *Repository) ListUOMs(ctx context.Context) ([]UOM, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name FROM uoms ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var uoms []UOM
	for rows.Next() {
		var u UOM
		if err := rows.Scan(&u.ID, &u.Code, &u.Name); err != nil {
			return nil, err
		}
		uoms = append(uoms, u)
	}
	return uoms, rows.Err()
}

// ListCurrencies returns supported currencies.
func (r *Repository) ListCurrencies(ctx context.Context) ([]Currency, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, COALESCE(symbol,'') FROM currencies ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var currencies []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Symbol); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

// ListDepartments returns active departments.
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(manager_id,0), is_active FROM departments WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var departments []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.ManagerID, &d.IsActive); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// ListSites returns active sites.
func (r *Repository) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, is_active FROM sites WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sites []Site
	for rows.Next() {
		var s Site
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.IsActive); err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// DepartmentManagerID resolves the manager of a department, 0 when unset.
func (r *Repository) DepartmentManagerID(ctx context.Context, id int64) (int64, error) {
	var managerID int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(manager_id,0) FROM departments WHERE id=$1`, id).Scan(&managerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return managerID, nil
}

func (tx *txRepo) NextProductSKU(ctx context.Context) (string, error) {
	return sequence.NextCode(ctx, tx.tx, sequence.PrefixProduct)
}

func (tx *txRepo) NextVendorCode(ctx context.Context) (string, error) {
	return sequence.NextCode(ctx, tx.tx, sequence.PrefixVendor)
}

func (tx *txRepo) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO products (sku, name, description, quantity, reorder_level, unit_price, location_id, uom_id, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		p.SKU, p.Name, p.Description, p.Quantity, p.ReorderLevel, p.UnitPrice, nullInt(p.LocationID), nullInt(p.UOMID), p.IsActive).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE products SET name=$1, description=$2, reorder_level=$3, unit_price=$4, location_id=$5, uom_id=$6, is_active=$7, updated_at=NOW() WHERE id=$8`,
		p.Name, p.Description, p.ReorderLevel, p.UnitPrice, nullInt(p.LocationID), nullInt(p.UOMID), p.IsActive, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *txRepo) InsertVendor(ctx context.Context, v Vendor) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO vendors (code, name, contact_person, email, phone, address, payment_terms, currency_id, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		v.Code, v.Name, v.ContactPerson, v.Email, v.Phone, v.Address, v.PaymentTerms, nullInt(v.CurrencyID), v.IsActive).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateVendor(ctx context.Context, v Vendor) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE vendors SET name=$1, contact_person=$2, email=$3, phone=$4, address=$5, payment_terms=$6, currency_id=$7, is_active=$8 WHERE id=$9`,
		v.Name, v.ContactPerson, v.Email, v.Phone, v.Address, v.PaymentTerms, nullInt(v.CurrencyID), v.IsActive, v.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *txRepo) UpsertVendorProduct(ctx context.Context, vp VendorProduct) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO vendor_products (vendor_id, product_id, vendor_sku, unit_price, currency_id, min_order_qty, lead_time_days, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (vendor_id, product_id) DO UPDATE SET vendor_sku=EXCLUDED.vendor_sku, unit_price=EXCLUDED.unit_price, currency_id=EXCLUDED.currency_id, min_order_qty=EXCLUDED.min_order_qty, lead_time_days=EXCLUDED.lead_time_days, is_active=EXCLUDED.is_active`,
		vp.VendorID, vp.ProductID, vp.VendorSKU, vp.UnitPrice, nullInt(vp.CurrencyID), vp.MinOrderQty, vp.LeadTimeDays, vp.IsActive)
	return err
}

func sortColumn(by string) string {
	switch by {
	case "name", "sku", "quantity", "updated_at":
		return by
	default:
		return "name"
	}
}

func sortOrder(dir string) string {
	if dir == "desc" {
		return "DESC"
	}
	return "ASC"
}

func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
