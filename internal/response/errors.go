package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrProctorAccessOnly   ErrCode = "PROCTOR_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrModuleNotFound  ErrCode = "MODULE_NOT_FOUND"
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrSessionAlreadyOpen ErrCode = "SESSION_ALREADY_OPEN"
	ErrAlreadyStarted     ErrCode = "ALREADY_STARTED"
	ErrNotActive          ErrCode = "NOT_ACTIVE"
	ErrNothingToRetry     ErrCode = "NOTHING_TO_RETRY"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrContentUnavailable ErrCode = "CONTENT_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	case ErrCandidateAccessOnly:
		return "This resource is restricted to candidates."
	case ErrProctorAccessOnly:
		return "This resource is restricted to proctors."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrUnknownAction:
		return "Unknown action."

	case ErrNotFound:
		return "Resource not found."
	case ErrModuleNotFound:
		return "Module not found."
	case ErrAttemptNotFound:
		return "Attempt not found."

	case ErrNoQuestions:
		return "This module has no questions."
	case ErrSessionAlreadyOpen:
		return "You already have an open session for this module."
	case ErrAlreadyStarted:
		return "The session has already started."
	case ErrNotActive:
		return "The session is not active."
	case ErrNothingToRetry:
		return "There is no failed submission to retry."
	case ErrSessionClosed:
		return "The session has been closed."
	case ErrUnknownQuestion:
		return "The question does not belong to this module."
	case ErrSubmitFailed:
		return "Your answers could not be submitted. Please retry."
	case ErrContentUnavailable:
		return "Module content is temporarily unavailable."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
