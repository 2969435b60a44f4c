package domain

import (
	"errors"
	"fmt"
)

// Reason codes carried by domain errors. Clients match on these, not on messages.
const (
	CodeBookingNotFound      = "BOOKING_NOT_FOUND"
	CodeRoomNotFound         = "ROOM_NOT_FOUND"
	CodePaymentNotFound      = "PAYMENT_NOT_FOUND"
	CodeDocumentNotFound     = "DOCUMENT_NOT_FOUND"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"

	CodeNotBookingTenant = "NOT_BOOKING_TENANT"
	CodeNotBookingOwner  = "NOT_BOOKING_OWNER"
	CodeRoleNotAllowed   = "ROLE_NOT_ALLOWED"
	CodeNotPaymentParty  = "NOT_PAYMENT_PARTY"

	CodeInvalidInput          = "INVALID_INPUT"
	CodeInvalidDateRange      = "INVALID_DATE_RANGE"
	CodeBookingNotPending     = "BOOKING_NOT_PENDING"
	CodeBookingNotAwaiting    = "BOOKING_NOT_AWAITING_PAYMENT"
	CodeBookingTerminal       = "BOOKING_TERMINAL"
	CodePaymentStillPayable   = "PAYMENT_STILL_PAYABLE"
	CodePaymentNotRetryable   = "PAYMENT_NOT_RETRYABLE"
	CodePaymentNotPaid        = "PAYMENT_NOT_PAID"
	CodePaymentMissingOwner   = "PAYMENT_MISSING_OWNER"
	CodeReceiptUnavailable    = "RECEIPT_UNAVAILABLE"
	CodeInvalidReviewStatus   = "INVALID_REVIEW_STATUS"
	CodeStatusChanged         = "STATUS_CHANGED"
	CodeDocumentAlreadyReview = "DOCUMENT_ALREADY_REVIEWED"

	CodeGatewayError         = "GATEWAY_ERROR"
	CodeGatewayNotConfigured = "GATEWAY_NOT_CONFIGURED"
	CodePaymentMissingRef    = "PAYMENT_MISSING_PROVIDER_REFERENCE"
	CodeInternal             = "INTERNAL_ERROR"
)

type NotFoundError struct {
	Resource string
	Code     string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ForbiddenError struct {
	Code string
	Msg  string
}

func (e ForbiddenError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "forbidden"
}

type ValidationError struct {
	Field string
	Code  string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Code     string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

type InternalError struct {
	Code string
	Msg  string
	Err  error
}

func (e InternalError) Error() string {
	if e.Msg != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func NotFound(resource, code string) error {
	return NotFoundError{Resource: resource, Code: code}
}

func Forbidden(code, msg string) error {
	return ForbiddenError{Code: code, Msg: msg}
}

func Invalid(code, msg string) error {
	return ValidationError{Code: code, Msg: msg}
}

func Conflict(resource, code, msg string) error {
	return ConflictError{Resource: resource, Code: code, Msg: msg}
}

func Internal(code, msg string, err error) error {
	return InternalError{Code: code, Msg: msg, Err: err}
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target ForbiddenError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}

// CodeOf returns the reason code of the first domain error in err's chain, or "" if none
func CodeOf(err error) string {
	var nf NotFoundError
	var fb ForbiddenError
	var v ValidationError
	var c ConflictError
	var in InternalError
	switch {
	case errors.As(err, &nf):
		return nf.Code
	case errors.As(err, &fb):
		return fb.Code
	case errors.As(err, &v):
		return v.Code
	case errors.As(err, &c):
		return c.Code
	case errors.As(err, &in):
		return in.Code
	}
	return ""
}
