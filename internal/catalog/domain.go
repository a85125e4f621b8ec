package catalog

import (
	"fmt"
	"time"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Product is a stocked item. Quantity and Location describe the single
// on-hand position the warehouse tracks per SKU.
type Product struct {
	ID           int64
	SKU          string
	Name         string
	Description  string
	Quantity     int64
	ReorderLevel int64
	UnitPrice    float64
	LocationID   int64
	UOMID        int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StorageLocation is a named bin or rack position.
type StorageLocation struct {
	ID       int64
	Code     string
	Name     string
	IsActive bool
}

// UOM is a unit of measure.
type UOM struct {
	ID   int64
	Code string
	Name string
}

// Currency used on procurement documents.
type Currency struct {
	ID     int64
	Code   string
	Name   string
	Symbol string
}

// Department groups requesters under a manager.
type Department struct {
	ID        int64
	Name      string
	ManagerID int64
	IsActive  bool
}

// Site is a physical facility requests deliver to.
type Site struct {
	ID       int64
	Code     string
	Name     string
	IsActive bool
}

// Vendor is a supplier with a VEN- business code.
type Vendor struct {
	ID            int64
	Code          string
	Name          string
	ContactPerson string
	Email         string
	Phone         string
	Address       string
	PaymentTerms  string
	CurrencyID    int64
	IsActive      bool
	CreatedAt     time.Time
}

// VendorProduct links a vendor's catalog entry to a product.
type VendorProduct struct {
	ID           int64
	VendorID     int64
	ProductID    int64
	VendorSKU    string
	UnitPrice    float64
	CurrencyID   int64
	MinOrderQty  int64
	LeadTimeDays int
	IsActive     bool
}

// ListFilters narrow product listings.
type ListFilters struct {
	Search     string
	LocationID int64
	IsActive   *bool
	SortBy     string
	SortDir    string
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("catalog: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("catalog: %w", shared.ErrValidation)
	// ErrDuplicate indicates a SKU or code collision.
	ErrDuplicate = fmt.Errorf("catalog: %w", shared.ErrDuplicateIdentifier)
)
