package transfer

import (
	"fmt"
	"time"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Stock transfer lifecycle statuses.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Transitions declares every legal status move.
var Transitions = shared.Transitions[Status]{
	StatusPending: {StatusCompleted, StatusCancelled},
}

// Transfer relocates a product between storage locations. Quantity is
// informational, the on-hand figure never changes; only the product's
// location moves, and only when the transfer completes.
type Transfer struct {
	ID             int64
	Number         string
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Qty            int64
	Status         Status
	RequestedBy    int64
	TransferredBy  int64
	TransferDate   time.Time
	Notes          string
	CreatedAt      time.Time
}

// ListFilters narrow transfer listings.
type ListFilters struct {
	Status     Status
	ProductID  int64
	LocationID int64
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("transfer: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("transfer: %w", shared.ErrValidation)
	// ErrInvalidState occurs when action violates the status workflow.
	ErrInvalidState = fmt.Errorf("transfer: %w", shared.ErrInvalidState)
	// ErrInsufficientStock occurs when on-hand quantity cannot cover the move.
	ErrInsufficientStock = fmt.Errorf("transfer: %w", shared.ErrInsufficientStock)
	// ErrInvalidLocation occurs when the product is not at the stated source.
	ErrInvalidLocation = fmt.Errorf("transfer: %w", shared.ErrInvalidLocation)
	// ErrConcurrentModification occurs when the product moved since the
	// transfer was raised.
	ErrConcurrentModification = fmt.Errorf("transfer: %w", shared.ErrConcurrentModification)
)
