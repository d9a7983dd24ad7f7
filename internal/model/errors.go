package model

import "errors"

// ErrorKind classifies failures so the HTTP boundary can pick a status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindNoOp
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindNoOp:
		return "no_op"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// TaskError represents a domain error for tasks.
type TaskError struct {
	Kind    ErrorKind
	Message string
}

func (e TaskError) Error() string {
	return e.Message
}

// NewValidationError builds a validation failure with a caller-facing message.
func NewValidationError(msg string) error {
	return TaskError{Kind: KindValidation, Message: msg}
}

// KindOf returns the kind of the first TaskError in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var te TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

var (
	// Absent and not-owned are deliberately the same error.
	ErrTaskNotFound = TaskError{Kind: KindNotFound, Message: "Task not found or not yours."}

	ErrTitleRequired      = TaskError{Kind: KindValidation, Message: "Title is required."}
	ErrTitleEmpty         = TaskError{Kind: KindValidation, Message: "Title cannot be empty."}
	ErrTitleTooLong       = TaskError{Kind: KindValidation, Message: "Title must be 50 characters or less."}
	ErrDescriptionTooLong = TaskError{Kind: KindValidation, Message: "Description must be 200 characters or less."}
	ErrOrderNotNumber     = TaskError{Kind: KindValidation, Message: "Order must be a number."}
	ErrOwnerRequired      = TaskError{Kind: KindValidation, Message: "Owner is required."}
	ErrCategoryRequired   = TaskError{Kind: KindValidation, Message: "Category is required."}
	ErrInvalidBody        = TaskError{Kind: KindValidation, Message: "Invalid request body."}

	ErrNoUpdateFields = TaskError{Kind: KindNoOp, Message: "No valid fields provided for update."}
	ErrNoChanges      = TaskError{Kind: KindNoOp, Message: "No changes made to the task."}

	ErrNoToken      = TaskError{Kind: KindUnauthorized, Message: "No token provided."}
	ErrInvalidToken = TaskError{Kind: KindUnauthorized, Message: "Invalid token."}
)

// PublicMessage returns the caller-facing message for err. Errors outside the
// TaskError taxonomy get a generic message.
func PublicMessage(err error) string {
	var te TaskError
	if errors.As(err, &te) {
		return te.Message
	}
	return "Internal server error."
}
