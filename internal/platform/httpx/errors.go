package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// retryAfterSeconds is advertised on responses for temporary failures.
const retryAfterSeconds = "1"

type errorMapping struct {
	kind   error
	status int
	title  string
}

// First match wins; ErrDuplicate precedes ErrConflict so duplicates keep their title.
var errorMappings = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrDuplicate, http.StatusConflict, "Duplicate"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrConflict, http.StatusConflict, "Conflict"},
	{shared.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{shared.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{shared.ErrInvalidCredentials, http.StatusUnauthorized, "Unauthorized"},
	{shared.ErrTemporary, http.StatusServiceUnavailable, "Service Unavailable"},
}

// RespondError writes err as a problem document. Unmapped errors hide their
// message behind a generic 500.
func RespondError(w http.ResponseWriter, err error) {
	code := ""
	var coded shared.CodedError
	if errors.As(err, &coded) {
		code = coded.ErrorCode()
	}
	if errors.Is(err, shared.ErrTemporary) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			ProblemCode(w, m.status, m.title, err.Error(), code)
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
