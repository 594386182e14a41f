package domain

// Error codes returned to API callers. Ownership failures deliberately map
// to CodeNotFound so other users' rows cannot be probed.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeForbidden  = "FORBIDDEN"
	CodeBadRequest = "BAD_REQUEST"
)

// Error is a caller-visible error with a fixed code and message. The
// message strings are part of the API contract.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound reports a missing entity, or one the caller does not own.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Forbidden reports a churning rule violation on a mutating call.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// BadRequest reports invalid input.
func BadRequest(msg string) *Error {
	return &Error{Code: CodeBadRequest, Message: msg}
}
