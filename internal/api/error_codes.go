// internal/api/error_codes.go
package api

// API error codes
const (
	// generic
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// chat
	ErrorMessageInvalid = "MESSAGE_INVALID"
	ErrorChatFailed     = "CHAT_FAILED"
	ErrorStreamFailed   = "STREAM_FAILED"

	// llm provider
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorDiagnosticsFailed     = "DIAGNOSTICS_FAILED"
	ErrorNotImplemented        = "NOT_IMPLEMENTED"
)
