package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidRequestError  = "invalid_request"
	HttpWindowExceedsHistory = "window_exceeds_history"
	HttpSyncFailedError      = "sync_failed"
	HttpQueryTimeoutError    = "query_timeout"
)

// ErrorResponse is the error response body for engine API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
