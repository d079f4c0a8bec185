package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrQuotaCooldown is returned without touching the network while the
	// gateway is cooling down after a rate-limit signal.
	ErrQuotaCooldown     = errors.New("ai quota cooldown")
	ErrInvalidCredential = errors.New("ai credential invalid")
	ErrMalformedResponse = errors.New("malformed provider response")
)

// ProviderError is a failed provider call. StatusCode is 0 when the failure
// happened before an HTTP response was received.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return "provider error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is a 429-class or quota signal.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted")
}

// IsInvalidCredential reports whether the provider rejected the API key.
func IsInvalidCredential(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidCredential) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "API key not valid") || strings.Contains(msg, "API_KEY_INVALID") {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.StatusCode == http.StatusUnauthorized {
			return true
		}
		if pe.StatusCode == http.StatusBadRequest && strings.Contains(pe.Message, "API key") {
			return true
		}
	}
	return false
}
