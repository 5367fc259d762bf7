package transport

import (
	"fmt"
	"net/http"
)

// Category buckets a transport failure into a user-facing class
type Category string

const (
	CategoryUnauthorized    Category = "unauthorized"
	CategoryUsageLimit      Category = "usage_limit"
	CategoryForbidden       Category = "forbidden"
	CategoryUpgradeRequired Category = "upgrade_required"
	CategoryRateLimit       Category = "rate_limit"
	CategoryUnknown         Category = "unknown"
)

// StreamError is a categorized transport failure surfaced as a finalized
// assistant message. It is not retried automatically.
type StreamError struct {
	Category Category
	Status   int
	Message  string
}

// Error implements error
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream request failed (%s, status %d): %s", e.Category, e.Status, e.Message)
}

// UserMessage is the text shown in the transcript for this failure
func (e *StreamError) UserMessage() string { return e.Message }

// CategorizeStatus maps an HTTP status >= 400 to a StreamError, or nil for
// acceptable statuses.
func CategorizeStatus(status int) *StreamError {
	if status < 400 {
		return nil
	}
	switch status {
	case http.StatusUnauthorized:
		return &StreamError{CategoryUnauthorized, status, "Your session has expired. Please sign in again."}
	case http.StatusPaymentRequired:
		return &StreamError{CategoryUsageLimit, status, "You have reached your usage limit for this billing period."}
	case http.StatusForbidden:
		return &StreamError{CategoryForbidden, status, "You do not have access to this workflow."}
	case http.StatusUpgradeRequired:
		return &StreamError{CategoryUpgradeRequired, status, "This feature requires a plan upgrade."}
	case http.StatusTooManyRequests:
		return &StreamError{CategoryRateLimit, status, "Too many requests. Please wait a moment and try again."}
	default:
		return &StreamError{CategoryUnknown, status, "Something went wrong while contacting the assistant."}
	}
}
