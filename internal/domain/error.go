package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Billing / callback errors
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrUnknownStatus        = errors.New("unknown payment status code")
	ErrUnrecognizedPayload  = errors.New("unrecognized callback payload")
	ErrSignatureInvalid     = errors.New("callback signature invalid")
	ErrSignatureMissing     = errors.New("callback signature missing")
	ErrUnresolvedOrder      = errors.New("no transaction for merchant order id")
	ErrActivationFailed     = errors.New("subscription activation failed")
	ErrConfigMissingSecret  = errors.New("required gateway secret not configured")
	ErrGatewayRequestFailed = errors.New("payment gateway request failed")
	ErrGatewayRejected      = errors.New("payment gateway rejected the request")
	ErrLockBusy             = errors.New("lock is held by another worker")
)
