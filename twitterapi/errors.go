package twitterapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Code       int // Twitter error code, 0 when absent
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twitter api: %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("twitter api: %d: %s", e.StatusCode, e.Message)
}

// parseAPIError extracts the first error entry from a response body. Both the
// modern {"errors":[{"code":..,"message":..}]} and the legacy {"error":".."}
// shapes occur in the wild.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Message: http.StatusText(statusCode)}
	var multi struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &multi) == nil {
		if len(multi.Errors) > 0 {
			apiErr.Code = multi.Errors[0].Code
			apiErr.Message = multi.Errors[0].Message
		} else if multi.Error != "" {
			apiErr.Message = multi.Error
		}
	}
	return apiErr
}

// IsUnavailable reports whether err is the transient over-capacity condition
// (the fail whale). Commands degrade to a placeholder and are not retried.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "over capacity")
}

// IsRateLimited reports whether err is an ordinary REST rate-limit rejection.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Code == 88
}
