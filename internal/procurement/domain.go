package procurement

import (
	"fmt"
	"time"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Quotation lifecycle statuses.
type QuotationStatus string

const (
	QuotationDraft    QuotationStatus = "draft"
	QuotationSent     QuotationStatus = "sent"
	QuotationReceived QuotationStatus = "received"
	QuotationAccepted QuotationStatus = "accepted"
	QuotationRejected QuotationStatus = "rejected"
	QuotationExpired  QuotationStatus = "expired"
)

// QuotationTransitions declares every legal quotation status move.
// Accepted is reached only through conversion to a purchase order.
var QuotationTransitions = shared.Transitions[QuotationStatus]{
	QuotationDraft:    {QuotationSent, QuotationRejected, QuotationExpired},
	QuotationSent:     {QuotationReceived, QuotationRejected, QuotationExpired},
	QuotationReceived: {QuotationAccepted, QuotationExpired},
}

// Purchase order lifecycle statuses.
type POStatus string

const (
	PODraft             POStatus = "draft"
	POSubmitted         POStatus = "submitted"
	POApproved          POStatus = "approved"
	POOrdered           POStatus = "ordered"
	POPartiallyReceived POStatus = "partially_received"
	POReceived          POStatus = "received"
	POCancelled         POStatus = "cancelled"
)

// POTransitions declares every legal purchase order status move.
// Cancellation is only possible before goods are ordered.
var POTransitions = shared.Transitions[POStatus]{
	PODraft:             {POSubmitted, POCancelled},
	POSubmitted:         {POApproved, POCancelled},
	POApproved:          {POOrdered, POCancelled},
	POOrdered:           {POPartiallyReceived, POReceived},
	POPartiallyReceived: {POReceived},
}

// Receiving statuses. Receivings are created in their final state.
type ReceivingStatus string

const (
	ReceivingPending   ReceivingStatus = "pending"
	ReceivingPartial   ReceivingStatus = "partial"
	ReceivingCompleted ReceivingStatus = "completed"
)

// Quotation is a vendor price inquiry.
type Quotation struct {
	ID            int64
	Number        string
	VendorID      int64
	CurrencyID    int64
	Status        QuotationStatus
	RequestDate   time.Time
	ValidUntil    time.Time
	QuotationDate time.Time
	Note          string
	CreatedAt     time.Time
}

// QuotationItem is one quoted product price.
type QuotationItem struct {
	ID           int64
	QuotationID  int64
	ProductID    int64
	Qty          int64
	UnitPrice    float64
	VendorSKU    string
	LeadTimeDays int64
	Note         string
}

// Total sums qty times unit price over items.
func QuotationTotal(items []QuotationItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Qty) * item.UnitPrice
	}
	return total
}

// PurchaseOrder is a commitment to buy from a vendor.
type PurchaseOrder struct {
	ID               int64
	Number           string
	VendorID         int64
	SupplierName     string
	CurrencyID       int64
	Status           POStatus
	OrderDate        time.Time
	ExpectedDelivery time.Time
	ApprovedBy       int64
	ApprovedAt       time.Time
	Note             string
	CreatedAt        time.Time
}

// POItem is one ordered product. QtyReceived accumulates through receivings.
type POItem struct {
	ID          int64
	POID        int64
	ProductID   int64
	QtyOrdered  int64
	QtyReceived int64
	UnitPrice   float64
}

// Remaining is the quantity still receivable against this item.
func (i POItem) Remaining() int64 {
	return i.QtyOrdered - i.QtyReceived
}

// Receiving records goods arriving against a purchase order.
type Receiving struct {
	ID         int64
	Number     string
	POID       int64
	ReceivedAt time.Time
	ReceivedBy int64
	Status     ReceivingStatus
	Note       string
	CreatedAt  time.Time
}

// ReceivingItem is one received quantity, tied to a purchase order item.
type ReceivingItem struct {
	ID            int64
	ReceivingID   int64
	POItemID      int64
	Qty           int64
	ConditionNote string
}

// QuotationFilters narrow quotation listings.
type QuotationFilters struct {
	Status   QuotationStatus
	VendorID int64
}

// POFilters narrow purchase order listings.
type POFilters struct {
	Status   POStatus
	VendorID int64
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("procurement: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("procurement: %w", shared.ErrValidation)
	// ErrInvalidState occurs when action violates a status workflow.
	ErrInvalidState = fmt.Errorf("procurement: %w", shared.ErrInvalidState)
	// ErrOverReceipt occurs when a receipt would exceed the ordered quantity.
	ErrOverReceipt = fmt.Errorf("procurement: %w", shared.ErrOverReceipt)
)
