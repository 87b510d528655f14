package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exam sessions ─────────────────────────────────────────────────
	ErrExamNotOnline      ErrCode = "EXAM_NOT_ONLINE"
	ErrWindowNotOpen      ErrCode = "EXAM_WINDOW_NOT_OPEN"
	ErrAlreadySubmitted   ErrCode = "ALREADY_SUBMITTED"
	ErrInvalidPhase       ErrCode = "INVALID_SESSION_PHASE"
	ErrSaveFailed         ErrCode = "SAVE_FAILED"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrUploadPartial      ErrCode = "UPLOAD_PARTIAL"
	ErrTooManyFiles       ErrCode = "TOO_MANY_FILES"
	ErrExamNotEditable    ErrCode = "EXAM_NOT_EDITABLE"
	ErrExamNotPublishable ErrCode = "EXAM_NOT_PUBLISHABLE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired ErrCode = "FILE_REQUIRED"
	ErrFileTooLarge ErrCode = "FILE_TOO_LARGE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect registration number or password."
	case ErrSessionActive:
		return "You are already signed in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to exam-office staff."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."
	case ErrConflict:
		return "The resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Exam sessions ─────────────────────────────────────────────────
	case ErrExamNotOnline:
		return "This exam is sat on paper and cannot be taken online."
	case ErrWindowNotOpen:
		return "The exam window is not open."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrInvalidPhase:
		return "This action is not valid for the current exam session state."
	case ErrSaveFailed:
		return "Your answers could not be saved. Please try again."
	case ErrSubmitFailed:
		return "Your submission could not be completed. Please try again."
	case ErrUploadPartial:
		return "Your exam was submitted, but some answer files failed to upload."
	case ErrTooManyFiles:
		return "The answer file limit for this exam has been reached."
	case ErrExamNotEditable:
		return "Published exams cannot be edited."
	case ErrExamNotPublishable:
		return "This exam cannot be published yet."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrFileTooLarge:
		return "The file exceeds the size limit."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
