package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, limit, offset int, f ListFilters) ([]Transfer, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates stock transfers between storage locations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs transfer service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes a new transfer.
type CreateInput struct {
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Qty            int64
	Notes          string
}

// Create raises a pending transfer. The product must currently sit at the
// stated source location, which must differ from the destination.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (Transfer, error) {
	if input.ProductID == 0 || input.FromLocationID == 0 || input.ToLocationID == 0 {
		return Transfer{}, fmt.Errorf("%w: product, source and destination required", ErrValidation)
	}
	if input.FromLocationID == input.ToLocationID {
		return Transfer{}, fmt.Errorf("%w: source and destination must differ", ErrValidation)
	}
	if input.Qty <= 0 {
		return Transfer{}, fmt.Errorf("%w: positive quantity required", ErrValidation)
	}
	t := Transfer{
		ProductID:      input.ProductID,
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		Qty:            input.Qty,
		Status:         StatusPending,
		RequestedBy:    actorID,
		Notes:          input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.LocationID != input.FromLocationID {
			return fmt.Errorf("%w: product %d is not at location %d", ErrInvalidLocation, input.ProductID, input.FromLocationID)
		}
		if product.Quantity < input.Qty {
			return fmt.Errorf("%w: product %d has %d on hand, asked %d", ErrInsufficientStock, input.ProductID, product.Quantity, input.Qty)
		}
		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		t.Number = number
		id, err := tx.Insert(ctx, t)
		if err != nil {
			return err
		}
		t.ID = id
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actorID, "TRANSFER_CREATE", t.ID, map[string]any{"number": t.Number})
	return t, nil
}

// Complete moves the product to the destination. The product's location is
// re-read under lock; if it no longer matches the transfer's source the
// product moved in the meantime and completion is refused.
func (s *Service) Complete(ctx context.Context, actorID, id int64) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Transitions.Guard(t.Status, StatusCompleted); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, t.ProductID)
		if err != nil {
			return err
		}
		if product.LocationID != t.FromLocationID {
			return fmt.Errorf("%w: product %d moved to location %d since transfer %s was raised",
				ErrConcurrentModification, t.ProductID, product.LocationID, t.Number)
		}
		if err := tx.UpdateProductLocation(ctx, t.ProductID, t.ToLocationID); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, StatusCompleted); err != nil {
			return err
		}
		return tx.SetCompletion(ctx, id, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "TRANSFER_COMPLETE", id, map[string]any{"number": t.Number})
	return nil
}

// Cancel withdraws a pending transfer.
func (s *Service) Cancel(ctx context.Context, actorID, id int64) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Transitions.Guard(t.Status, StatusCancelled); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "TRANSFER_CANCEL", id, map[string]any{"number": t.Number})
	return nil
}

// Get returns one transfer.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// List returns filtered transfers.
func (s *Service) List(ctx context.Context, limit, offset int, f ListFilters) ([]Transfer, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit, offset, f)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "stock_transfer", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
