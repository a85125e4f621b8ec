package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, limit, offset int, f ListFilters) ([]Product, int, error)
	ListLowStock(ctx context.Context) ([]Product, error)
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	ListVendors(ctx context.Context, activeOnly bool) ([]Vendor, error)
	ListVendorProducts(ctx context.Context, vendorID int64) ([]VendorProduct, error)
	ListLocations(ctx context.Context) ([]StorageLocation, error)
	ListUOMs(ctx context.Context) ([]UOM, error)
	ListCurrencies(ctx context.Context) ([]Currency, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	ListSites(ctx context.Context) ([]Site, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages reference data.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs catalog service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ProductInput carries product create/update fields.
type ProductInput struct {
	SKU          string
	Name         string
	Description  string
	Quantity     int64
	ReorderLevel int64
	UnitPrice    float64
	LocationID   int64
	UOMID        int64
	IsActive     bool
}

// VendorInput carries vendor create/update fields.
type VendorInput struct {
	Name          string
	ContactPerson string
	Email         string
	Phone         string
	Address       string
	PaymentTerms  string
	CurrencyID    int64
	IsActive      bool
}

// CreateProduct stores a new product. A blank SKU is assigned from the
// SKU counter inside the same transaction as the insert.
func (s *Service) CreateProduct(ctx context.Context, actorID int64, input ProductInput) (Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Product{}, ErrValidation
	}
	if input.Quantity < 0 || input.ReorderLevel < 0 || input.UnitPrice < 0 {
		return Product{}, ErrValidation
	}
	p := Product{
		SKU:          strings.TrimSpace(input.SKU),
		Name:         input.Name,
		Description:  input.Description,
		Quantity:     input.Quantity,
		ReorderLevel: input.ReorderLevel,
		UnitPrice:    input.UnitPrice,
		LocationID:   input.LocationID,
		UOMID:        input.UOMID,
		IsActive:     input.IsActive,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if p.SKU == "" {
			sku, err := tx.NextProductSKU(ctx)
			if err != nil {
				return err
			}
			p.SKU = sku
		}
		id, err := tx.InsertProduct(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "PRODUCT_CREATE", "product", p.ID, map[string]any{"sku": p.SKU})
	return p, nil
}

// UpdateProduct modifies mutable product fields. Quantity is excluded: stock
// only moves through issuance and receiving.
func (s *Service) UpdateProduct(ctx context.Context, actorID, id int64, input ProductInput) (Product, error) {
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Product{}, ErrValidation
	}
	if input.ReorderLevel < 0 || input.UnitPrice < 0 {
		return Product{}, ErrValidation
	}
	current.Name = input.Name
	current.Description = input.Description
	current.ReorderLevel = input.ReorderLevel
	current.UnitPrice = input.UnitPrice
	current.LocationID = input.LocationID
	current.UOMID = input.UOMID
	current.IsActive = input.IsActive
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateProduct(ctx, current)
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "PRODUCT_UPDATE", "product", id, map[string]any{"sku": current.SKU})
	return current, nil
}

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a filtered page of products.
func (s *Service) ListProducts(ctx context.Context, limit, offset int, f ListFilters) ([]Product, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListProducts(ctx, limit, offset, f)
}

// ListLowStock returns products at or below their reorder level.
func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

// CreateVendor stores a new vendor with a generated VEN- code.
func (s *Service) CreateVendor(ctx context.Context, actorID int64, input VendorInput) (Vendor, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Vendor{}, ErrValidation
	}
	v := Vendor{
		Name:          input.Name,
		ContactPerson: input.ContactPerson,
		Email:         input.Email,
		Phone:         input.Phone,
		Address:       input.Address,
		PaymentTerms:  input.PaymentTerms,
		CurrencyID:    input.CurrencyID,
		IsActive:      input.IsActive,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextVendorCode(ctx)
		if err != nil {
			return err
		}
		v.Code = code
		id, err := tx.InsertVendor(ctx, v)
		if err != nil {
			return err
		}
		v.ID = id
		return nil
	})
	if err != nil {
		return Vendor{}, err
	}
	s.recordAudit(ctx, actorID, "VENDOR_CREATE", "vendor", v.ID, map[string]any{"code": v.Code})
	return v, nil
}

// UpdateVendor modifies vendor contact fields. The code is immutable.
func (s *Service) UpdateVendor(ctx context.Context, actorID, id int64, input VendorInput) (Vendor, error) {
	current, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Vendor{}, ErrValidation
	}
	current.Name = input.Name
	current.ContactPerson = input.ContactPerson
	current.Email = input.Email
	current.Phone = input.Phone
	current.Address = input.Address
	current.PaymentTerms = input.PaymentTerms
	current.CurrencyID = input.CurrencyID
	current.IsActive = input.IsActive
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateVendor(ctx, current)
	})
	if err != nil {
		return Vendor{}, err
	}
	s.recordAudit(ctx, actorID, "VENDOR_UPDATE", "vendor", id, map[string]any{"code": current.Code})
	return current, nil
}

// GetVendor fetches one vendor.
func (s *Service) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

// ListVendors returns vendors.
func (s *Service) ListVendors(ctx context.Context, activeOnly bool) ([]Vendor, error) {
	return s.repo.ListVendors(ctx, activeOnly)
}

// SetVendorProduct upserts one entry of a vendor's price list.
func (s *Service) SetVendorProduct(ctx context.Context, actorID int64, vp VendorProduct) error {
	if vp.VendorID == 0 || vp.ProductID == 0 {
		return ErrValidation
	}
	if vp.UnitPrice < 0 || vp.MinOrderQty < 0 || vp.LeadTimeDays < 0 {
		return ErrValidation
	}
	if _, err := s.repo.GetVendor(ctx, vp.VendorID); err != nil {
		return err
	}
	if _, err := s.repo.GetProduct(ctx, vp.ProductID); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertVendorProduct(ctx, vp)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "VENDOR_PRODUCT_SET", "vendor", vp.VendorID, map[string]any{"product_id": vp.ProductID})
	return nil
}

// ListVendorProducts returns a vendor's price list.
func (s *Service) ListVendorProducts(ctx context.Context, vendorID int64) ([]VendorProduct, error) {
	return s.repo.ListVendorProducts(ctx, vendorID)
}

// Lookup passthroughs for dropdown data.

func (s *Service) ListLocations(ctx context.Context) ([]StorageLocation, error) {
	return s.repo.ListLocations(ctx)
}

func (s *Service) ListUOMs(ctx context.Context) ([]UOM, error) {
	return s.repo.ListUOMs(ctx)
}

func (s *Service) ListCurrencies(ctx context.Context) ([]Currency, error) {
	return s.repo.ListCurrencies(ctx)
}

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.repo.ListDepartments(ctx)
}

func (s *Service) ListSites(ctx context.Context) ([]Site, error) {
	return s.repo.ListSites(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
