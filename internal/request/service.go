package request

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (ItemRequest, []Line, error)
	List(ctx context.Context, limit, offset int, f ListFilters) ([]ItemRequest, int, error)
	DepartmentManagerID(ctx context.Context, id int64) (int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the item request lifecycle.
type Service struct {
	repo      RepositoryPort
	policy    shared.AccessPolicy
	approvals *shared.ApprovalRecorder
	audit     AuditPort
}

// NewService constructs request service.
func NewService(repo RepositoryPort, policy shared.AccessPolicy, approvals *shared.ApprovalRecorder, audit AuditPort) *Service {
	return &Service{repo: repo, policy: policy, approvals: approvals, audit: audit}
}

// CreateInput describes a new request. Priority defaults to medium when
// left blank.
type CreateInput struct {
	DepartmentID int64
	SiteID       int64
	Priority     Priority
	RequiredBy   time.Time
	Notes        string
	Lines        []LineInput
}

// LineInput describes one requested item. SiteID optionally overrides the
// request's delivery site for this line.
type LineInput struct {
	ProductID int64
	Qty       int64
	SiteID    int64
	Notes     string
}

// Create persists the request header and lines in one transaction. The
// REQ- number is drawn inside that transaction.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (ItemRequest, error) {
	if len(input.Lines) == 0 {
		return ItemRequest{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty <= 0 {
			return ItemRequest{}, fmt.Errorf("%w: product and positive quantity required", ErrValidation)
		}
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !input.Priority.Valid() {
		return ItemRequest{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}
	req := ItemRequest{
		DepartmentID:  input.DepartmentID,
		SiteID:        input.SiteID,
		RequestedBy:   actorID,
		Priority:      input.Priority,
		RequestedDate: time.Now(),
		RequiredBy:    input.RequiredBy,
		Status:        StatusPending,
		Notes:         input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		req.Number = number
		id, err := tx.Insert(ctx, req)
		if err != nil {
			return err
		}
		req.ID = id
		for _, line := range input.Lines {
			if err := tx.InsertLine(ctx, Line{RequestID: id, ProductID: line.ProductID, QtyRequested: line.Qty, SiteID: line.SiteID, Notes: line.Notes}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ItemRequest{}, err
	}
	s.recordAudit(ctx, actorID, "REQUEST_CREATE", req.ID, map[string]any{"number": req.Number})
	return req, nil
}

// Update replaces header info and lines while the request is still pending.
// Only the requester, the department manager or a requests editor may do so.
func (s *Service) Update(ctx context.Context, actorID, id int64, input CreateInput) error {
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return fmt.Errorf("%w: only pending requests can be edited", ErrInvalidState)
	}
	if err := s.authorizeOwner(ctx, actorID, req); err != nil {
		return err
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty <= 0 {
			return fmt.Errorf("%w: product and positive quantity required", ErrValidation)
		}
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !input.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}
	req.DepartmentID = input.DepartmentID
	req.SiteID = input.SiteID
	req.Priority = input.Priority
	req.RequiredBy = input.RequiredBy
	req.Notes = input.Notes
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateInfo(ctx, req); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := tx.InsertLine(ctx, Line{RequestID: id, ProductID: line.ProductID, QtyRequested: line.Qty, SiteID: line.SiteID, Notes: line.Notes}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "REQUEST_UPDATE", id, map[string]any{"number": req.Number})
	return nil
}

// Approve moves a pending request to approved. Every line's approved
// quantity is set to its requested quantity.
func (s *Service) Approve(ctx context.Context, actorID, id int64) error {
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Transitions.Guard(req.Status, StatusApproved); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if err := s.authorizeApprover(ctx, actorID, req); err != nil {
		return err
	}
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, StatusApproved); err != nil {
			return err
		}
		if err := tx.SetApproval(ctx, id, actorID, now, ""); err != nil {
			return err
		}
		return tx.ApproveLines(ctx, id)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("REQ:%d", id)))
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: shared.ApprovalModuleRequest, RefID: refID, ActorID: actorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("request %s approved", req.Number)})
	}
	s.recordAudit(ctx, actorID, "REQUEST_APPROVE", id, map[string]any{"number": req.Number})
	return nil
}

// Reject moves a pending request to rejected. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, actorID, id int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: rejection reason required", ErrValidation)
	}
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Transitions.Guard(req.Status, StatusRejected); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if err := s.authorizeApprover(ctx, actorID, req); err != nil {
		return err
	}
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, StatusRejected); err != nil {
			return err
		}
		return tx.SetApproval(ctx, id, actorID, now, reason)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("REQ:%d", id)))
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: shared.ApprovalModuleRequest, RefID: refID, ActorID: actorID, Action: shared.ApprovalReject, Note: reason})
	}
	s.recordAudit(ctx, actorID, "REQUEST_REJECT", id, map[string]any{"number": req.Number, "reason": reason})
	return nil
}

// Cancel withdraws a pending request.
func (s *Service) Cancel(ctx context.Context, actorID, id int64) error {
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := Transitions.Guard(req.Status, StatusCancelled); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if err := s.authorizeOwner(ctx, actorID, req); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "REQUEST_CANCEL", id, map[string]any{"number": req.Number})
	return nil
}

// Delete removes a pending request entirely.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return fmt.Errorf("%w: only pending requests can be deleted", ErrInvalidState)
	}
	if err := s.authorizeOwner(ctx, actorID, req); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "REQUEST_DELETE", id, map[string]any{"number": req.Number})
	return nil
}

// Get returns the request and its lines.
func (s *Service) Get(ctx context.Context, id int64) (ItemRequest, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns filtered request headers.
func (s *Service) List(ctx context.Context, limit, offset int, f ListFilters) ([]ItemRequest, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit, offset, f)
}

// authorizeOwner allows the requester and the department manager, then
// falls back to the requests.edit capability.
func (s *Service) authorizeOwner(ctx context.Context, actorID int64, req ItemRequest) error {
	if actorID != 0 && actorID == req.RequestedBy {
		return nil
	}
	if req.DepartmentID != 0 {
		managerID, err := s.repo.DepartmentManagerID(ctx, req.DepartmentID)
		if err == nil && managerID != 0 && managerID == actorID {
			return nil
		}
	}
	if s.policy == nil {
		return ErrPermissionDenied
	}
	if err := s.policy.Authorize(ctx, actorID, shared.PermRequestsEdit); err != nil {
		return ErrPermissionDenied
	}
	return nil
}

// authorizeApprover allows the department manager, then falls back to the
// requests.approve capability.
func (s *Service) authorizeApprover(ctx context.Context, actorID int64, req ItemRequest) error {
	if req.DepartmentID != 0 {
		managerID, err := s.repo.DepartmentManagerID(ctx, req.DepartmentID)
		if err == nil && managerID != 0 && managerID == actorID {
			return nil
		}
	}
	if s.policy == nil {
		return ErrPermissionDenied
	}
	if err := s.policy.Authorize(ctx, actorID, shared.PermRequestsApprove); err != nil {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "item_request", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
