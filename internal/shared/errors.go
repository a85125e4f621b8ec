package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an operation on a document whose status forbids it.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrInsufficientStock indicates on-hand quantity below the requested amount.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrQuantityExceeded indicates an issuance above the approved remainder.
	ErrQuantityExceeded = errors.New("quantity exceeds approved remainder")
	// ErrInvalidLocation indicates the product is not at the stated location.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrOverReceipt indicates a receipt above the ordered remainder.
	ErrOverReceipt = errors.New("receipt exceeds ordered quantity")
	// ErrDuplicateIdentifier indicates a unique business identifier collision.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrPermissionDenied indicates the actor lacks the required capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConcurrentModification indicates state changed between read and write.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
