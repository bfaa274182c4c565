// Package models - API response types and error handling.
// This file defines the JSON envelopes returned by the service.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Machine-readable error codes next to human-readable messages
// - RFC3339 timestamps
package models

import (
	"time"
)

// ErrorResponse provides structured error information.
//
// Error Categories:
// - Rate limiting: Request denied by an admission policy (RetryAfter is set)
// - Not found errors: Route or resource doesn't exist
// - Internal errors: Server-side issues
type ErrorResponse struct {
	Error      string            `json:"error"`                 // Error type (always "error")
	Message    string            `json:"message"`               // Human-readable error description
	Code       string            `json:"code,omitempty"`        // Machine-readable error code
	Details    map[string]string `json:"details,omitempty"`     // Extra context
	RetryAfter int               `json:"retry_after,omitempty"` // Seconds until a retry may succeed
	Timestamp  time.Time         `json:"timestamp"`             // Error occurrence time
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	InstanceID string                     `json:"instance_id,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RateLimitResetResponse reports the outcome of an administrative unblock.
type RateLimitResetResponse struct {
	Policy    string    `json:"policy"`
	IP        string    `json:"ip"`
	Path      string    `json:"path,omitempty"`
	Cleared   bool      `json:"cleared"` // False when the caller had no open window
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy  = "healthy"  // All systems operational
	StatusDisabled = "disabled" // Component intentionally switched off
)

// Standard Error Codes
const (
	ErrorCodeNotFound          = "NOT_FOUND"           // 404: Route doesn't exist
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"     // 400/405: Invalid request
	ErrorCodeInternalError     = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED" // 429: Admission policy denied the request
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewRateLimitResponse builds the body for a 429 response.
func NewRateLimitResponse(message string, retryAfterSeconds int) *ErrorResponse {
	resp := NewErrorResponse(message, ErrorCodeRateLimitExceeded)
	resp.RetryAfter = retryAfterSeconds
	return resp
}
