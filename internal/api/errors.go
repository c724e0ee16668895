package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Error types.
const (
	ErrTypeValidation  = "validation_error"
	ErrTypeNotFound    = "not_found"
	ErrTypeUnavailable = "unavailable"
	ErrTypeInternal    = "internal_error"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorBuilder helps construct structured errors with context.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder.
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequest copies the request id and path.
func (eb *ErrorBuilder) WithRequest(r *http.Request) *ErrorBuilder {
	eb.requestID = middleware.GetReqID(r.Context())
	eb.context["path"] = r.URL.Path
	return eb
}

// WithCause records the underlying error message.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final APIError.
func (eb *ErrorBuilder) Build() APIError {
	return APIError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// writeError logs and writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, apiErr APIError) {
	s.logger.Printf("error_occurred type=%s status=%d request_id=%s message=%q context=%v",
		apiErr.Type, status, apiErr.RequestID, apiErr.Message, apiErr.Context)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Version", Version)
	w.Header().Set("X-Error-Type", apiErr.Type)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		s.logger.Printf("error_encode_failed err=%v", err)
	}
}

// recoverer converts panics into structured 500 responses.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.logger.Printf("panic_recovered request_id=%s path=%s method=%s panic=%v",
					middleware.GetReqID(r.Context()), r.URL.Path, r.Method, rvr)
				s.writeError(w, http.StatusInternalServerError,
					NewError(ErrTypeInternal, "Internal server error").WithRequest(r).Build())
			}
		}()
		next.ServeHTTP(w, r)
	})
}
