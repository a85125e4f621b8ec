package issuance

import (
	"context"
	"fmt"
	"time"

	"github.com/harbor-wms/harbor-wms/internal/request"
	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Issuance, []Line, error)
	List(ctx context.Context, limit, offset int, f ListFilters) ([]Issuance, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service issues stock against approved item requests.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs issuance service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// ItemInput names a request line and the quantity to issue against it.
type ItemInput struct {
	RequestLineID int64
	Qty           int64
}

// CreateInput describes a new issuance. IssuedTo defaults to the request's
// requester when left zero.
type CreateInput struct {
	RequestID      int64
	IssuedTo       int64
	Notes          string
	IdempotencyKey string
	Items          []ItemInput
}

// Create issues stock in one transaction. Every touched row is locked, the
// per-line approved balance and the on-hand quantity are both enforced, and
// the parent request moves to issued or completed depending on whether any
// balance remains. A failure anywhere rolls the whole document back.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (Issuance, error) {
	if input.RequestID == 0 {
		return Issuance{}, fmt.Errorf("%w: request required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Issuance{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for _, item := range input.Items {
		if item.RequestLineID == 0 {
			return Issuance{}, fmt.Errorf("%w: request line required", ErrValidation)
		}
	}

	inserted := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "issuance.create"); err != nil {
			return Issuance{}, err
		}
		inserted = true
	}

	iss := Issuance{
		RequestID:  input.RequestID,
		IssuedBy:   actorID,
		IssuedTo:   input.IssuedTo,
		IssuedDate: time.Now(),
		Status:     StatusCompleted,
		Notes:      input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequestForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if req.Status != request.StatusApproved {
			return fmt.Errorf("%w: request %s is %s, only approved requests can be issued", ErrInvalidState, req.Number, req.Status)
		}
		if iss.IssuedTo == 0 {
			iss.IssuedTo = req.RequestedBy
		}
		lines, err := tx.GetRequestLinesForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*request.Line, len(lines))
		for i := range lines {
			byID[lines[i].ID] = &lines[i]
		}

		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		iss.Number = number
		id, err := tx.Insert(ctx, iss)
		if err != nil {
			return err
		}
		iss.ID = id

		issued := false
		for _, item := range input.Items {
			line, ok := byID[item.RequestLineID]
			if !ok {
				return fmt.Errorf("%w: line %d does not belong to request %s", ErrValidation, item.RequestLineID, req.Number)
			}
			// Zero and blank quantities mean "nothing against this line".
			if item.Qty <= 0 {
				continue
			}
			if item.Qty > line.Remaining() {
				return fmt.Errorf("%w: line %d has %d approved remaining, asked %d", ErrQuantityExceeded, line.ID, line.Remaining(), item.Qty)
			}
			stock, err := tx.GetProductStockForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if stock.Quantity < item.Qty {
				return fmt.Errorf("%w: product %d has %d on hand, asked %d", ErrInsufficientStock, line.ProductID, stock.Quantity, item.Qty)
			}
			if err := tx.UpdateProductQuantity(ctx, line.ProductID, stock.Quantity-item.Qty); err != nil {
				return err
			}
			if err := tx.AddLineIssued(ctx, line.ID, item.Qty); err != nil {
				return err
			}
			line.QtyIssued += item.Qty
			if err := tx.InsertLine(ctx, Line{IssuanceID: id, ProductID: line.ProductID, RequestLineID: line.ID, Qty: item.Qty}); err != nil {
				return err
			}
			issued = true
		}
		if !issued {
			return fmt.Errorf("%w: no items to issue", ErrValidation)
		}

		next := request.StatusCompleted
		for _, line := range lines {
			if line.Remaining() > 0 {
				next = request.StatusIssued
				break
			}
		}
		if req.Status != next {
			if err := request.Transitions.Guard(req.Status, next); err != nil {
				return fmt.Errorf("issuance: %w", err)
			}
			if err := tx.UpdateRequestStatus(ctx, req.ID, next); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Issuance{}, err
	}
	s.recordAudit(ctx, actorID, "ISSUANCE_CREATE", iss.ID, map[string]any{"number": iss.Number, "request_id": iss.RequestID})
	return iss, nil
}

// Get returns the issuance and its lines.
func (s *Service) Get(ctx context.Context, id int64) (Issuance, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns filtered issuance headers.
func (s *Service) List(ctx context.Context, limit, offset int, f ListFilters) ([]Issuance, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit, offset, f)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "issuance", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
