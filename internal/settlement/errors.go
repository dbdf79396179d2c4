package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/franquia-labs/cardsettle/internal/commission"
	"github.com/franquia-labs/cardsettle/internal/ledger"
	"github.com/franquia-labs/cardsettle/internal/registry"
)

// Code classifies a settlement failure for callers. Business rejections are
// recorded in the ledger; infrastructure failures are fully rolled back.
type Code string

// Settlement error codes.
const (
	// CodeValidation marks bad input rejected before any state was touched.
	CodeValidation Code = "VALIDATION"
	// CodeNotFound marks a missing card, merchant, or partner.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidState marks an operation attempted in a disallowed card state.
	CodeInvalidState Code = "INVALID_STATE"
	// CodeInvalidTransition marks an illegal lifecycle transition.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	// CodeInsufficientBalance marks a consumption exceeding the balance.
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	// CodeMerchantMismatch marks consumption at other than the bound merchant.
	CodeMerchantMismatch Code = "MERCHANT_MISMATCH"
	// CodeNotAuthorized marks a failed merchant or partner gate.
	CodeNotAuthorized Code = "NOT_AUTHORIZED"
	// CodeDuplicateCode marks a card code or token collision.
	CodeDuplicateCode Code = "DUPLICATE_CODE"
	// CodeDuplicateCommission marks a second commission for one transaction.
	CodeDuplicateCommission Code = "DUPLICATE_COMMISSION"
	// CodeTimeout marks an operation that exceeded its deadline; the unit
	// was rolled back by the storage transaction.
	CodeTimeout Code = "TIMEOUT"
	// CodeInternal marks an unexpected storage or system failure.
	CodeInternal Code = "INTERNAL"
)

// Mismatch and gate errors raised by the coordinator itself.
var (
	// ErrMerchantMismatch indicates consumption at other than the card's bound merchant.
	ErrMerchantMismatch = errors.New("settlement: merchant mismatch")
	// ErrNotAuthorized indicates the merchant or partner gate refused the operation.
	ErrNotAuthorized = errors.New("settlement: not authorized")
)

// Error carries a classified settlement failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// newError builds a classified error around a cause.
func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// classify maps component sentinels onto settlement codes.
func classify(err error, message string) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return newError(CodeTimeout, message, err)
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, commission.ErrNotFound), errors.Is(err, ErrGateNotFound):
		return newError(CodeNotFound, message, err)
	case errors.Is(err, registry.ErrDuplicateCode):
		return newError(CodeDuplicateCode, message, err)
	case errors.Is(err, registry.ErrInvalidState):
		return newError(CodeInvalidState, message, err)
	case errors.Is(err, registry.ErrInvalidTransition):
		return newError(CodeInvalidTransition, message, err)
	case errors.Is(err, registry.ErrInsufficientBalance):
		return newError(CodeInsufficientBalance, message, err)
	case errors.Is(err, ErrMerchantMismatch):
		return newError(CodeMerchantMismatch, message, err)
	case errors.Is(err, ErrNotAuthorized):
		return newError(CodeNotAuthorized, message, err)
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrDuplicateRef):
		return newError(CodeValidation, message, err)
	case errors.Is(err, commission.ErrDuplicate):
		return newError(CodeDuplicateCommission, message, err)
	case errors.Is(err, commission.ErrNotApplicable), errors.Is(err, commission.ErrInvalidRate):
		return newError(CodeValidation, message, err)
	default:
		return newError(CodeInternal, message, err)
	}
}

// CodeOf extracts the settlement code from an error chain.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// IsBusinessRejection reports whether the failure is a business rule
// rejection, as opposed to bad input or an infrastructure fault. Business
// rejections leave a REJECTED ledger entry behind.
func IsBusinessRejection(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidState, CodeInvalidTransition, CodeInsufficientBalance, CodeMerchantMismatch, CodeNotAuthorized:
		return true
	}
	return false
}
