package request

import (
	"fmt"
	"time"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// Item request lifecycle statuses.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusIssued    Status = "issued"
	StatusCompleted Status = "completed"
)

// Transitions declares every legal status move. The issued and completed
// states are reached only through stock issuance, never directly.
var Transitions = shared.Transitions[Status]{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusIssued, StatusCompleted},
	StatusIssued:   {StatusCompleted},
}

// Priority ranks how urgently a request needs fulfilment.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ItemRequest is the demand document a department raises against the
// warehouse.
type ItemRequest struct {
	ID              int64
	Number          string
	DepartmentID    int64
	SiteID          int64
	RequestedBy     int64
	Priority        Priority
	RequestedDate   time.Time
	RequiredBy      time.Time
	ApprovedBy      int64
	ApprovedDate    time.Time
	RejectionReason string
	Status          Status
	Notes           string
	CreatedAt       time.Time
}

// Line is one requested item. QtyApproved stays zero until approval,
// QtyIssued accumulates as the warehouse fulfils the line.
type Line struct {
	ID           int64
	RequestID    int64
	ProductID    int64
	QtyRequested int64
	QtyApproved  int64
	QtyIssued    int64
	SiteID       int64
	Notes        string
}

// Remaining is the quantity still issuable against this line.
func (l Line) Remaining() int64 {
	return l.QtyApproved - l.QtyIssued
}

// ListFilters narrow request listings.
type ListFilters struct {
	Status       Status
	DepartmentID int64
	RequestedBy  int64
}

var (
	// ErrInvalidState occurs when action violates the status workflow.
	ErrInvalidState = fmt.Errorf("request: %w", shared.ErrInvalidState)
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("request: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("request: %w", shared.ErrValidation)
	// ErrPermissionDenied indicates the actor may not act on this request.
	ErrPermissionDenied = fmt.Errorf("request: %w", shared.ErrPermissionDenied)
)
