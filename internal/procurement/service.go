package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationItem, error)
	ListQuotations(ctx context.Context, limit, offset int, f QuotationFilters) ([]Quotation, int, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []POItem, error)
	ListPOs(ctx context.Context, limit, offset int, f POFilters) ([]PurchaseOrder, int, error)
	GetReceiving(ctx context.Context, id int64) (Receiving, []ReceivingItem, error)
	ListReceivings(ctx context.Context, poID int64) ([]Receiving, error)
	MarkExpiredQuotations(ctx context.Context, asOf time.Time) (int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates quotations, purchase orders and receivings.
type Service struct {
	repo        RepositoryPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit, idempotency: idem}
}

// QuotationItemInput describes one quoted line.
type QuotationItemInput struct {
	ProductID    int64
	Qty          int64
	UnitPrice    float64
	VendorSKU    string
	LeadTimeDays int64
	Note         string
}

// QuotationInput describes quotation creation or edit.
type QuotationInput struct {
	VendorID      int64
	CurrencyID    int64
	ValidUntil    time.Time
	QuotationDate time.Time
	Note          string
	Items         []QuotationItemInput
}

// POItemInput describes one ordered line.
type POItemInput struct {
	ProductID int64
	Qty       int64
	UnitPrice float64
}

// POInput describes purchase order creation or edit.
type POInput struct {
	VendorID         int64
	SupplierName     string
	CurrencyID       int64
	ExpectedDelivery time.Time
	Note             string
	Items            []POItemInput
}

// ReceiveItemInput names a purchase order item and the quantity arriving.
type ReceiveItemInput struct {
	POItemID      int64
	Qty           int64
	ConditionNote string
}

// ReceiveInput describes one receiving event.
type ReceiveInput struct {
	Note           string
	IdempotencyKey string
	Items          []ReceiveItemInput
}

func validateQuotationItems(items []QuotationItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for _, item := range items {
		if item.ProductID == 0 || item.Qty <= 0 || item.UnitPrice < 0 {
			return fmt.Errorf("%w: product, positive quantity and non-negative price required", ErrValidation)
		}
	}
	return nil
}

// CreateQuotation persists a draft quotation with its items.
func (s *Service) CreateQuotation(ctx context.Context, actorID int64, input QuotationInput) (Quotation, error) {
	if input.VendorID == 0 {
		return Quotation{}, fmt.Errorf("%w: vendor required", ErrValidation)
	}
	if err := validateQuotationItems(input.Items); err != nil {
		return Quotation{}, err
	}
	q := Quotation{
		VendorID:      input.VendorID,
		CurrencyID:    input.CurrencyID,
		Status:        QuotationDraft,
		RequestDate:   time.Now(),
		ValidUntil:    input.ValidUntil,
		QuotationDate: input.QuotationDate,
		Note:          input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextQuotationNumber(ctx)
		if err != nil {
			return err
		}
		q.Number = number
		id, err := tx.InsertQuotation(ctx, q)
		if err != nil {
			return err
		}
		q.ID = id
		return insertQuotationItems(ctx, tx, id, input.Items)
	})
	if err != nil {
		return Quotation{}, err
	}
	s.recordAudit(ctx, actorID, "QTN_CREATE", "quotation", q.ID, map[string]any{"number": q.Number})
	return q, nil
}

// UpdateQuotation replaces header info and items while the quotation is
// still draft, sent or received.
func (s *Service) UpdateQuotation(ctx context.Context, actorID, id int64, input QuotationInput) error {
	q, _, err := s.repo.GetQuotation(ctx, id)
	if err != nil {
		return err
	}
	switch q.Status {
	case QuotationDraft, QuotationSent, QuotationReceived:
	default:
		return fmt.Errorf("%w: quotation %s is %s", ErrInvalidState, q.Number, q.Status)
	}
	if input.VendorID == 0 {
		return fmt.Errorf("%w: vendor required", ErrValidation)
	}
	if err := validateQuotationItems(input.Items); err != nil {
		return err
	}
	q.VendorID = input.VendorID
	q.CurrencyID = input.CurrencyID
	q.ValidUntil = input.ValidUntil
	q.QuotationDate = input.QuotationDate
	q.Note = input.Note
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateQuotationInfo(ctx, q); err != nil {
			return err
		}
		if err := tx.DeleteQuotationItems(ctx, id); err != nil {
			return err
		}
		return insertQuotationItems(ctx, tx, id, input.Items)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "QTN_UPDATE", "quotation", id, map[string]any{"number": q.Number})
	return nil
}

// ChangeQuotationStatus moves the quotation along its lifecycle. Accepted
// is reserved for ConvertToPO.
func (s *Service) ChangeQuotationStatus(ctx context.Context, actorID, id int64, to QuotationStatus) error {
	if to == QuotationAccepted {
		return fmt.Errorf("%w: quotations are accepted by converting them to a purchase order", ErrInvalidState)
	}
	q, _, err := s.repo.GetQuotation(ctx, id)
	if err != nil {
		return err
	}
	if err := QuotationTransitions.Guard(q.Status, to); err != nil {
		return fmt.Errorf("procurement: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateQuotationStatus(ctx, id, to)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "QTN_STATUS", "quotation", id, map[string]any{"number": q.Number, "to": to})
	return nil
}

// DeleteQuotation removes a draft quotation entirely.
func (s *Service) DeleteQuotation(ctx context.Context, actorID, id int64) error {
	q, _, err := s.repo.GetQuotation(ctx, id)
	if err != nil {
		return err
	}
	if q.Status != QuotationDraft {
		return fmt.Errorf("%w: only draft quotations can be deleted", ErrInvalidState)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteQuotation(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "QTN_DELETE", "quotation", id, map[string]any{"number": q.Number})
	return nil
}

// ConvertToPO turns a received quotation into a draft purchase order,
// copying vendor, currency and every item, and marks the quotation
// accepted. Both documents change in one transaction.
func (s *Service) ConvertToPO(ctx context.Context, actorID, quotationID int64) (PurchaseOrder, error) {
	q, items, err := s.repo.GetQuotation(ctx, quotationID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := QuotationTransitions.Guard(q.Status, QuotationAccepted); err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: %w", err)
	}
	if len(items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: quotation %s has no items", ErrValidation, q.Number)
	}
	po := PurchaseOrder{
		VendorID:   q.VendorID,
		CurrencyID: q.CurrencyID,
		Status:     PODraft,
		OrderDate:  time.Now(),
		Note:       fmt.Sprintf("from quotation %s", q.Number),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextPONumber(ctx)
		if err != nil {
			return err
		}
		po.Number = number
		id, err := tx.InsertPO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for _, item := range items {
			if err := tx.InsertPOItem(ctx, POItem{POID: id, ProductID: item.ProductID, QtyOrdered: item.Qty, UnitPrice: item.UnitPrice}); err != nil {
				return err
			}
		}
		return tx.UpdateQuotationStatus(ctx, quotationID, QuotationAccepted)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actorID, "QTN_CONVERT", "quotation", quotationID, map[string]any{"number": q.Number, "po": po.Number})
	return po, nil
}

func validatePOItems(items []POItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for _, item := range items {
		if item.ProductID == 0 || item.Qty <= 0 || item.UnitPrice < 0 {
			return fmt.Errorf("%w: product, positive quantity and non-negative price required", ErrValidation)
		}
	}
	return nil
}

// CreatePO persists a draft purchase order with its items.
func (s *Service) CreatePO(ctx context.Context, actorID int64, input POInput) (PurchaseOrder, error) {
	if input.VendorID == 0 && input.SupplierName == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: vendor or supplier name required", ErrValidation)
	}
	if err := validatePOItems(input.Items); err != nil {
		return PurchaseOrder{}, err
	}
	po := PurchaseOrder{
		VendorID:         input.VendorID,
		SupplierName:     input.SupplierName,
		CurrencyID:       input.CurrencyID,
		Status:           PODraft,
		OrderDate:        time.Now(),
		ExpectedDelivery: input.ExpectedDelivery,
		Note:             input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextPONumber(ctx)
		if err != nil {
			return err
		}
		po.Number = number
		id, err := tx.InsertPO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for _, item := range input.Items {
			if err := tx.InsertPOItem(ctx, POItem{POID: id, ProductID: item.ProductID, QtyOrdered: item.Qty, UnitPrice: item.UnitPrice}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actorID, "PO_CREATE", "purchase_order", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// UpdatePO replaces header info and items while the order is draft or
// submitted. Items are deleted and recreated, so received quantities are
// only editable before anything has arrived.
func (s *Service) UpdatePO(ctx context.Context, actorID, id int64, input POInput) error {
	po, _, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != PODraft && po.Status != POSubmitted {
		return fmt.Errorf("%w: order %s is %s", ErrInvalidState, po.Number, po.Status)
	}
	if err := validatePOItems(input.Items); err != nil {
		return err
	}
	po.VendorID = input.VendorID
	po.SupplierName = input.SupplierName
	po.CurrencyID = input.CurrencyID
	po.ExpectedDelivery = input.ExpectedDelivery
	po.Note = input.Note
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdatePOInfo(ctx, po); err != nil {
			return err
		}
		if err := tx.DeletePOItems(ctx, id); err != nil {
			return err
		}
		for _, item := range input.Items {
			if err := tx.InsertPOItem(ctx, POItem{POID: id, ProductID: item.ProductID, QtyOrdered: item.Qty, UnitPrice: item.UnitPrice}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_UPDATE", "purchase_order", id, map[string]any{"number": po.Number})
	return nil
}

// ChangePOStatus moves the order along its lifecycle. Entering approved
// without a recorded approver stamps the acting user. The received states
// are normally driven by receivings; this is the manual override path.
func (s *Service) ChangePOStatus(ctx context.Context, actorID, id int64, to POStatus) error {
	po, _, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return err
	}
	if err := POTransitions.Guard(po.Status, to); err != nil {
		return fmt.Errorf("procurement: %w", err)
	}
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdatePOStatus(ctx, id, to); err != nil {
			return err
		}
		if to == POApproved && po.ApprovedBy == 0 {
			return tx.SetPOApproval(ctx, id, actorID, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PO:%d", id)))
		switch to {
		case POSubmitted:
			_ = s.approvals.EnsureSubmit(ctx, shared.ApprovalModuleProcurement, refID, actorID, fmt.Sprintf("PO %s submitted", po.Number))
		case POApproved:
			_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: shared.ApprovalModuleProcurement, RefID: refID, ActorID: actorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("PO %s approved", po.Number)})
		}
	}
	s.recordAudit(ctx, actorID, "PO_STATUS", "purchase_order", id, map[string]any{"number": po.Number, "to": to})
	return nil
}

// DeletePO removes a draft purchase order entirely.
func (s *Service) DeletePO(ctx context.Context, actorID, id int64) error {
	po, _, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != PODraft {
		return fmt.Errorf("%w: only draft orders can be deleted", ErrInvalidState)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePO(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_DELETE", "purchase_order", id, map[string]any{"number": po.Number})
	return nil
}

// Receive books arriving goods against a purchase order in one transaction:
// per-item over-receipt guard, stock increment under row lock, receiving
// document insert and PO status recompute. An optional idempotency key
// protects against double submission.
func (s *Service) Receive(ctx context.Context, actorID, poID int64, input ReceiveInput) (Receiving, error) {
	if len(input.Items) == 0 {
		return Receiving{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for _, item := range input.Items {
		if item.POItemID == 0 || item.Qty <= 0 {
			return Receiving{}, fmt.Errorf("%w: order item and positive quantity required", ErrValidation)
		}
	}

	inserted := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "procurement.receiving"); err != nil {
			return Receiving{}, err
		}
		inserted = true
	}

	rec := Receiving{
		POID:       poID,
		ReceivedAt: time.Now(),
		ReceivedBy: actorID,
		Note:       input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POOrdered && po.Status != POPartiallyReceived {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, po.Number, po.Status)
		}
		items, err := tx.GetPOItemsForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*POItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		number, err := tx.NextReceivingNumber(ctx)
		if err != nil {
			return err
		}
		rec.Number = number

		for _, item := range input.Items {
			poItem, ok := byID[item.POItemID]
			if !ok {
				return fmt.Errorf("%w: item %d does not belong to order %s", ErrValidation, item.POItemID, po.Number)
			}
			if poItem.QtyReceived+item.Qty > poItem.QtyOrdered {
				return fmt.Errorf("%w: item %d ordered %d, received %d, asked %d",
					ErrOverReceipt, poItem.ID, poItem.QtyOrdered, poItem.QtyReceived, item.Qty)
			}
			stock, err := tx.GetProductStockForUpdate(ctx, poItem.ProductID)
			if err != nil {
				return err
			}
			if err := tx.UpdateProductQuantity(ctx, poItem.ProductID, stock.Quantity+item.Qty); err != nil {
				return err
			}
			if err := tx.AddItemReceived(ctx, poItem.ID, item.Qty); err != nil {
				return err
			}
			poItem.QtyReceived += item.Qty
		}

		full := true
		for _, poItem := range items {
			if poItem.Remaining() > 0 {
				full = false
				break
			}
		}
		if full {
			rec.Status = ReceivingCompleted
		} else {
			rec.Status = ReceivingPartial
		}

		id, err := tx.InsertReceiving(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		for _, item := range input.Items {
			if err := tx.InsertReceivingItem(ctx, ReceivingItem{ReceivingID: id, POItemID: item.POItemID, Qty: item.Qty, ConditionNote: item.ConditionNote}); err != nil {
				return err
			}
		}

		next := POPartiallyReceived
		if full {
			next = POReceived
		}
		if po.Status != next {
			if err := POTransitions.Guard(po.Status, next); err != nil {
				return fmt.Errorf("procurement: %w", err)
			}
			return tx.UpdatePOStatus(ctx, poID, next)
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Receiving{}, err
	}
	s.recordAudit(ctx, actorID, "RCV_CREATE", "receiving", rec.ID, map[string]any{"number": rec.Number, "po_id": poID})
	return rec, nil
}

// ExpireQuotations flips stale non-terminal quotations to expired.
func (s *Service) ExpireQuotations(ctx context.Context, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	return s.repo.MarkExpiredQuotations(ctx, asOf)
}

// GetQuotation returns the quotation and its items.
func (s *Service) GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationItem, error) {
	return s.repo.GetQuotation(ctx, id)
}

// ListQuotations returns filtered quotation headers.
func (s *Service) ListQuotations(ctx context.Context, limit, offset int, f QuotationFilters) ([]Quotation, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListQuotations(ctx, limit, offset, f)
}

// GetPO returns the purchase order and its items.
func (s *Service) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POItem, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPOs returns filtered purchase order headers.
func (s *Service) ListPOs(ctx context.Context, limit, offset int, f POFilters) ([]PurchaseOrder, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListPOs(ctx, limit, offset, f)
}

// GetReceiving returns the receiving and its items.
func (s *Service) GetReceiving(ctx context.Context, id int64) (Receiving, []ReceivingItem, error) {
	return s.repo.GetReceiving(ctx, id)
}

// ListReceivings returns receivings for one purchase order.
func (s *Service) ListReceivings(ctx context.Context, poID int64) ([]Receiving, error) {
	return s.repo.ListReceivings(ctx, poID)
}

func insertQuotationItems(ctx context.Context, tx TxRepository, quotationID int64, items []QuotationItemInput) error {
	for _, item := range items {
		qi := QuotationItem{
			QuotationID:  quotationID,
			ProductID:    item.ProductID,
			Qty:          item.Qty,
			UnitPrice:    item.UnitPrice,
			VendorSKU:    item.VendorSKU,
			LeadTimeDays: item.LeadTimeDays,
			Note:         item.Note,
		}
		if err := tx.InsertQuotationItem(ctx, qi); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
