package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies provider errors for retry handling
type ErrorType string

const (
	ErrorTypeUnsupportedParam ErrorType = "unsupported_param" // request parameter rejected
	ErrorTypeTimeout          ErrorType = "timeout"           // attempt deadline expired
	ErrorTypeTransport        ErrorType = "transport"         // network or HTTP failure
	ErrorTypeUnknown          ErrorType = "unknown"           // fallback
)

// ProviderError is a structured error returned by LLM clients
type ProviderError struct {
	Type     ErrorType
	Provider string
	Code     string // raw status code when known ("400", "429")
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsProviderError checks if err is a ProviderError and returns it
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsUnsupportedParam reports whether err indicates the provider rejected an
// optional request parameter (the thinking budget). Matches both the
// structured classification and the loose message heuristics providers use.
func IsUnsupportedParam(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := IsProviderError(err); ok && pe.Type == ErrorTypeUnsupportedParam {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "thinking") ||
		strings.Contains(msg, "parameter") ||
		strings.Contains(msg, "400")
}

// NewProviderError creates a new ProviderError with the given parameters
func NewProviderError(provider string, errType ErrorType, code, message string) *ProviderError {
	return &ProviderError{
		Type:     errType,
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}
