package models

// API-level error codes for request handling problems, distinct from the
// pipeline failure kinds.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL"
)

// APIError is the error body for rejected API requests.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Uptime  string   `json:"uptime"`
	Engines []string `json:"engines"`
	Version string   `json:"version"`
}
