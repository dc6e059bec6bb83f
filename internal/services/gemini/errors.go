package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"artstudio/internal/services"
)

var (
	// ErrMissingAPIKey is returned before any request when no key is configured.
	ErrMissingAPIKey = fmt.Errorf("%w: gemini api key not configured", services.ErrAuth)
	// ErrReauthRequired marks responses that indicate the key was revoked or never existed.
	ErrReauthRequired = fmt.Errorf("%w: gemini api key rejected", services.ErrAuth)
	// ErrNoImage is returned when the model answered without an inline image.
	ErrNoImage = errors.New("gemini: response contained no image")
)

var reauthMarkers = []string{
	"entity was not found",
	"api key not found",
	"api_key_invalid",
	"api key not valid",
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: http %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: http %d: %s", e.StatusCode, e.Message)
}

// Unwrap classifies the response: auth-lost messages match
// ErrReauthRequired, 408/504 match services.ErrTimeout, and 429/5xx match
// services.ErrTransient.
func (e *APIError) Unwrap() []error {
	var markers []error
	if isReauthMessage(e.Message) {
		markers = append(markers, ErrReauthRequired)
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout:
		markers = append(markers, services.ErrTimeout)
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError:
		markers = append(markers, services.ErrTransient)
	}
	return markers
}

// convertError turns SDK API errors into *APIError so callers classify them
// with errors.Is; other errors pass through unchanged.
func convertError(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	var sdkErr genai.APIError
	if errors.As(err, &sdkErr) {
		return &APIError{StatusCode: sdkErr.Code, Status: sdkErr.Status, Message: sdkErr.Message, RetryAfter: retryAfter}
	}
	var sdkPtr *genai.APIError
	if errors.As(err, &sdkPtr) && sdkPtr != nil {
		return &APIError{StatusCode: sdkPtr.Code, Status: sdkPtr.Status, Message: sdkPtr.Message, RetryAfter: retryAfter}
	}
	return err
}

func isReauthMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range reauthMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// BlockedError reports a prompt or candidate rejected by safety filters.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("gemini: request blocked (%s)", e.Reason)
}

// Unwrap marks blocked content as a caller problem; retrying will not help.
func (e *BlockedError) Unwrap() error { return services.ErrValidation }
