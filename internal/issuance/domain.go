package issuance

import (
	"fmt"
	"time"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Issuance document statuses. Posting always writes completed in one
// transaction; pending and cancelled exist for data imported from systems
// that staged issuances before posting them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Issuance records stock leaving the warehouse against an approved item
// request.
type Issuance struct {
	ID         int64
	Number     string
	RequestID  int64
	IssuedBy   int64
	IssuedTo   int64
	IssuedDate time.Time
	Status     Status
	Notes      string
	CreatedAt  time.Time
}

// Line is one issued quantity, tied back to the request line it fulfils.
type Line struct {
	ID            int64
	IssuanceID    int64
	ProductID     int64
	RequestLineID int64
	Qty           int64
}

// ProductStock is the locked stock row consulted during issuance.
type ProductStock struct {
	ID       int64
	Quantity int64
}

// ListFilters narrow issuance listings.
type ListFilters struct {
	RequestID int64
	IssuedBy  int64
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("issuance: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("issuance: %w", shared.ErrValidation)
	// ErrInvalidState occurs when the request is not issuable.
	ErrInvalidState = fmt.Errorf("issuance: %w", shared.ErrInvalidState)
	// ErrInsufficientStock occurs when on-hand quantity cannot cover a line.
	ErrInsufficientStock = fmt.Errorf("issuance: %w", shared.ErrInsufficientStock)
	// ErrQuantityExceeded occurs when a line would overrun its approved quantity.
	ErrQuantityExceeded = fmt.Errorf("issuance: %w", shared.ErrQuantityExceeded)
)
