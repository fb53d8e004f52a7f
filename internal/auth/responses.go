// responses.go -- Package-wide HTTP response helpers.
//
// Shared by handlers and middleware. All messages are plain ASCII - no
// user-controlled input is interpolated, so string concat is safe here.
package auth

import (
	"net/http"
)

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"message":"internal server error"}`))
}

// BadRequest returns a 400 JSON response with the given message.
// Use for client input validation failures.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte(`{"message":"` + message + `"}`))
}

// Unauthorized returns a 401 JSON response with a generic message.
// Use for authentication failures. Keep message generic to prevent user enumeration.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"message":"` + message + `"}`))
}

// NotFound returns a 404 JSON response.
func NotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"not found"}`))
}

// Conflict returns a 409 JSON response with the given message.
// Used for uniqueness violations; the user may try again, the server never
// retries on their behalf.
func Conflict(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	w.Write([]byte(`{"message":"` + message + `"}`))
}

// ServiceUnavailable returns a 503 JSON response with the given message.
// Used for configuration errors and unreachable providers -- nothing the end
// user did wrong, and nothing they can fix.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"message":"` + message + `"}`))
}

// OK returns a 200 JSON response with the given message.
func OK(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"` + message + `"}`))
}
