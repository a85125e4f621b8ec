package rbac

import (
	"context"
	"strings"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// PermissionSource resolves what an actor may do. Satisfied by *Service.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	IsSuperuser(ctx context.Context, userID int64) (bool, error)
}

// Policy implements shared.AccessPolicy on top of role assignments.
// Superusers bypass the permission check entirely.
type Policy struct {
	source PermissionSource
}

// NewPolicy constructs a Policy.
func NewPolicy(source PermissionSource) *Policy {
	return &Policy{source: source}
}

// Authorize returns nil when the actor holds the capability.
func (p *Policy) Authorize(ctx context.Context, actorID int64, capability string) error {
	if actorID == 0 {
		return shared.ErrPermissionDenied
	}
	if super, err := p.source.IsSuperuser(ctx, actorID); err == nil && super {
		return nil
	}
	granted, err := p.source.EffectivePermissions(ctx, actorID)
	if err != nil {
		return err
	}
	want := strings.ToLower(strings.TrimSpace(capability))
	for _, g := range granted {
		if strings.ToLower(g) == want {
			return nil
		}
	}
	return shared.ErrPermissionDenied
}

var _ shared.AccessPolicy = (*Policy)(nil)
