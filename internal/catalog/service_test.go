package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harbor-wms/harbor-wms/internal/sequence"
)

type memoryCatalogRepo struct {
	products       map[int64]Product
	vendors        map[int64]Vendor
	vendorProducts map[int64][]VendorProduct
	counters       map[string]int64
	nextID         int64
}

type memoryCatalogTx struct {
	repo *memoryCatalogRepo
}

func newMemoryCatalogRepo() *memoryCatalogRepo {
	return &memoryCatalogRepo{
		products:       make(map[int64]Product),
		vendors:        make(map[int64]Vendor),
		vendorProducts: make(map[int64][]VendorProduct),
		counters:       make(map[string]int64),
	}
}

func (r *memoryCatalogRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryCatalogTx{repo: r})
}

func (r *memoryCatalogRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryCatalogRepo) ListProducts(ctx context.Context, limit, offset int, f ListFilters) ([]Product, int, error) {
	var products []Product
	for _, p := range r.products {
		products = append(products, p)
	}
	return products, len(products), nil
}

func (r *memoryCatalogRepo) ListLowStock(ctx context.Context) ([]Product, error) {
	var low []Product
	for _, p := range r.products {
		if p.IsActive && p.Quantity <= p.ReorderLevel {
			low = append(low, p)
		}
	}
	return low, nil
}

func (r *memoryCatalogRepo) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	v, ok := r.vendors[id]
	if !ok {
		return Vendor{}, ErrNotFound
	}
	return v, nil
}

func (r *memoryCatalogRepo) ListVendors(ctx context.Context, activeOnly bool) ([]Vendor, error) {
	var vendors []Vendor
	for _, v := range r.vendors {
		if activeOnly && !v.IsActive {
			continue
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

func (r *memoryCatalogRepo) ListVendorProducts(ctx context.Context, vendorID int64) ([]VendorProduct, error) {
	return append([]VendorProduct(nil), r.vendorProducts[vendorID]...), nil
}

func (r *memoryCatalogRepo) ListLocations(ctx context.Context) ([]StorageLocation, error) { return nil, nil }
func (r *memoryCatalogRepo) ListUOMs(ctx context.Context) ([]UOM, error)                  { return nil, nil }
func (r *memoryCatalogRepo) ListCurrencies(ctx context.Context) ([]Currency, error)       { return nil, nil }
func (r *memoryCatalogRepo) ListDepartments(ctx context.Context) ([]Department, error)    { return nil, nil }
func (r *memoryCatalogRepo) ListSites(ctx context.Context) ([]Site, error)                { return nil, nil }

func (tx *memoryCatalogTx) next(prefix string) string {
	tx.repo.counters[prefix]++
	return sequence.FormatCode(prefix, tx.repo.counters[prefix])
}

func (tx *memoryCatalogTx) NextProductSKU(ctx context.Context) (string, error) {
	return tx.next(sequence.PrefixProduct), nil
}

func (tx *memoryCatalogTx) NextVendorCode(ctx context.Context) (string, error) {
	return tx.next(sequence.PrefixVendor), nil
}

func (tx *memoryCatalogTx) InsertProduct(ctx context.Context, p Product) (int64, error) {
	for _, existing := range tx.repo.products {
		if existing.SKU == p.SKU {
			return 0, ErrDuplicate
		}
	}
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	tx.repo.products[p.ID] = p
	return p.ID, nil
}

func (tx *memoryCatalogTx) UpdateProduct(ctx context.Context, p Product) error {
	stored, ok := tx.repo.products[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.Quantity = stored.Quantity
	tx.repo.products[p.ID] = p
	return nil
}

func (tx *memoryCatalogTx) InsertVendor(ctx context.Context, v Vendor) (int64, error) {
	tx.repo.nextID++
	v.ID = tx.repo.nextID
	tx.repo.vendors[v.ID] = v
	return v.ID, nil
}

func (tx *memoryCatalogTx) UpdateVendor(ctx context.Context, v Vendor) error {
	if _, ok := tx.repo.vendors[v.ID]; !ok {
		return ErrNotFound
	}
	tx.repo.vendors[v.ID] = v
	return nil
}

func (tx *memoryCatalogTx) UpsertVendorProduct(ctx context.Context, vp VendorProduct) error {
	items := tx.repo.vendorProducts[vp.VendorID]
	for i, item := range items {
		if item.ProductID == vp.ProductID {
			items[i] = vp
			return nil
		}
	}
	tx.repo.vendorProducts[vp.VendorID] = append(items, vp)
	return nil
}

func TestCreateProductAssignsSKU(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.CreateProduct(ctx, 1, ProductInput{Name: "Pallet Jack", Quantity: 4, ReorderLevel: 1, IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "SKU-0001", first.SKU)

	second, err := svc.CreateProduct(ctx, 1, ProductInput{Name: "Hand Truck", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "SKU-0002", second.SKU)

	explicit, err := svc.CreateProduct(ctx, 1, ProductInput{SKU: "SKU-9000", Name: "Shrink Wrap", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "SKU-9000", explicit.SKU)

	_, err = svc.CreateProduct(ctx, 1, ProductInput{Name: "Banding Kit", UnitPrice: -0.5, IsActive: true})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, 1, ProductInput{SKU: "SKU-0100", Name: "Tape Gun", IsActive: true})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, 1, ProductInput{SKU: "SKU-0100", Name: "Tape Gun Pro", IsActive: true})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateProductKeepsQuantity(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, 1, ProductInput{Name: "Label Printer", Quantity: 7, ReorderLevel: 2, IsActive: true})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, 1, p.ID, ProductInput{Name: "Label Printer v2", ReorderLevel: 3, IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "Label Printer v2", updated.Name)

	stored, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), stored.Quantity)
}

func TestCreateVendorAssignsCode(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	v, err := svc.CreateVendor(ctx, 1, VendorInput{Name: "Acme Supply", PaymentTerms: "net 30", CurrencyID: 2, IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "VEN-0001", v.Code)
	require.Equal(t, "net 30", v.PaymentTerms)
	require.Equal(t, int64(2), v.CurrencyID)

	_, err = svc.CreateVendor(ctx, 1, VendorInput{Name: ""})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSetVendorProduct(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	v, err := svc.CreateVendor(ctx, 1, VendorInput{Name: "Acme Supply", IsActive: true})
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, 1, ProductInput{Name: "Stretch Film", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.SetVendorProduct(ctx, 1, VendorProduct{VendorID: v.ID, ProductID: p.ID, UnitPrice: 12.5, LeadTimeDays: 3, IsActive: true}))
	require.NoError(t, svc.SetVendorProduct(ctx, 1, VendorProduct{VendorID: v.ID, ProductID: p.ID, UnitPrice: 11.0, MinOrderQty: 12, LeadTimeDays: 2, IsActive: true}))

	items, err := svc.ListVendorProducts(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 11.0, items[0].UnitPrice)
	require.Equal(t, int64(12), items[0].MinOrderQty)

	err = svc.SetVendorProduct(ctx, 1, VendorProduct{VendorID: v.ID, ProductID: p.ID, UnitPrice: -1})
	require.ErrorIs(t, err, ErrValidation)

	err = svc.SetVendorProduct(ctx, 1, VendorProduct{VendorID: v.ID, ProductID: p.ID, UnitPrice: 1, MinOrderQty: -5})
	require.ErrorIs(t, err, ErrValidation)
}
