package shared

import "context"

// Warehouse capabilities. Permission codes follow the module.action form.
const (
	PermCatalogView = "catalog.view"
	PermCatalogEdit = "catalog.edit"

	PermRequestsView    = "requests.view"
	PermRequestsEdit    = "requests.edit"
	PermRequestsApprove = "requests.approve"

	PermIssuancesView   = "issuances.view"
	PermIssuancesCreate = "issuances.create"

	PermTransfersView = "transfers.view"
	PermTransfersEdit = "transfers.edit"

	PermProcurementView = "procurement.view"
	PermProcurementEdit = "procurement.edit"

	PermReceivingEdit = "receiving.edit"
)

// WarehouseScopes lists every warehouse permission code.
func WarehouseScopes() []string {
	return []string{
		PermCatalogView,
		PermCatalogEdit,
		PermRequestsView,
		PermRequestsEdit,
		PermRequestsApprove,
		PermIssuancesView,
		PermIssuancesCreate,
		PermTransfersView,
		PermTransfersEdit,
		PermProcurementView,
		PermProcurementEdit,
		PermReceivingEdit,
	}
}

// AccessPolicy answers whether an actor may exercise a capability. Services
// depend on this port instead of inspecting role rows themselves.
type AccessPolicy interface {
	// Authorize returns nil when allowed, ErrPermissionDenied otherwise.
	Authorize(ctx context.Context, actorID int64, capability string) error
}

// AllowAllPolicy grants every capability. Used by tests and local tooling.
type AllowAllPolicy struct{}

// Authorize always permits.
func (AllowAllPolicy) Authorize(context.Context, int64, string) error { return nil }
