package types

import "fmt"

// ErrorKind classifies a producer-facing error from the HTTP status and
// vendor error code returned by the Metadata Service.
type ErrorKind string

const (
	ErrConfigMissing  ErrorKind = "CONFIG_MISSING"
	ErrNotRegistered  ErrorKind = "NOT_REGISTERED"
	ErrBadCredentials ErrorKind = "BAD_CREDENTIALS"
	ErrAlreadyBound   ErrorKind = "ALREADY_BOUND"
	ErrSerialRequired ErrorKind = "SERIAL_REQUIRED"
	ErrTypeMismatch   ErrorKind = "TYPE_MISMATCH"
	ErrBadRequest     ErrorKind = "BAD_REQUEST"
	ErrServerError    ErrorKind = "SERVER_ERROR"
)

// Vendor codes surfaced by the Metadata Service for the two 4xx cases
// that need finer-grained classification than the HTTP status alone.
const (
	VendorCodeSerialRequired = "00144000002"
	VendorCodeTypeMismatch   = "00144000004"
)

// ProducerError is the classified error surfaced via
// Producer.ProducerError(). It never propagates past the Config
// Watcher or Job Runner — those catch and record it.
type ProducerError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	VendorCode string
	Cause      error
}

func (e *ProducerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProducerError) Unwrap() error {
	return e.Cause
}

// ClassifyHTTPError builds a ProducerError from an HTTP status code and
// an optional vendor error code, per the taxonomy in spec.md §7.
func ClassifyHTTPError(statusCode int, vendorCode string, expectedType string, globalID string, cause error) *ProducerError {
	switch {
	case statusCode == 404:
		return &ProducerError{Kind: ErrNotRegistered, StatusCode: statusCode, Cause: cause,
			Message: fmt.Sprintf("cannot find producer by %s", globalID)}
	case statusCode == 401:
		return &ProducerError{Kind: ErrBadCredentials, StatusCode: statusCode, Cause: cause,
			Message: "invalid security key"}
	case statusCode == 403:
		return &ProducerError{Kind: ErrAlreadyBound, StatusCode: statusCode, Cause: cause,
			Message: "producer already connected by another instance"}
	case statusCode >= 400 && statusCode < 500 && vendorCode == VendorCodeSerialRequired:
		return &ProducerError{Kind: ErrSerialRequired, StatusCode: statusCode, VendorCode: vendorCode, Cause: cause,
			Message: "set PRODUCER_SERIAL_ID"}
	case statusCode >= 400 && statusCode < 500 && vendorCode == VendorCodeTypeMismatch:
		return &ProducerError{Kind: ErrTypeMismatch, StatusCode: statusCode, VendorCode: vendorCode, Cause: cause,
			Message: fmt.Sprintf("type mismatch; expected %s", expectedType)}
	case statusCode >= 400 && statusCode < 500:
		return &ProducerError{Kind: ErrBadRequest, StatusCode: statusCode, Cause: cause,
			Message: "check GLOBAL_ID / SERIAL_ID / SECURITY_KEY"}
	default:
		return &ProducerError{Kind: ErrServerError, StatusCode: statusCode, Cause: cause,
			Message: "internal server error"}
	}
}

// NewConfigMissingError is the fixed error surfaced when
// BITSKY_BASE_URL or GLOBAL_ID is absent (status 400, stock message).
func NewConfigMissingError() *ProducerError {
	return &ProducerError{
		Kind:       ErrConfigMissing,
		StatusCode: 400,
		Message:    "BITSKY_BASE_URL and GLOBAL_ID are required to operate",
	}
}
