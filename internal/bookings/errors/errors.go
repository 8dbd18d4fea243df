package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrAttemptNotFound = errors.New("payment attempt not found")

	ErrPendingAttemptExists = errors.New("booking already has a pending payment attempt")

	ErrVoucherUnavailable = errors.New("voucher is not available")

	ErrUnitNotFound = errors.New("service unit not found")

	ErrInvalidTimeRange = errors.New("end time must be after start time")
)
