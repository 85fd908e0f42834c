package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sells-group/audit-cli/internal/resilience"
	"github.com/sells-group/audit-cli/pkg/together"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindRateLimit   Kind = "rate_limit"
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindServer      Kind = "server"
	KindBadRequest  Kind = "bad_request"
	KindCanceled    Kind = "canceled"
	KindUnavailable Kind = "unavailable"
	KindUnknown     Kind = "unknown"
)

// ProviderError is a failed call to a provider, carrying the provider's status
// code (0 when the call never got a response) and message.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Kind       Kind
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s): %s [status %d]: %s", e.Provider, e.Model, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s: %s", e.Provider, e.Model, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify converts any error from a provider call into a *ProviderError.
// Errors that already are ProviderErrors are returned unchanged.
func Classify(provider, model string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	out := &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     KindUnknown,
		Message:  err.Error(),
		Err:      err,
	}

	var sdkErr *sdk.Error
	var togErr *together.APIError
	switch {
	case errors.As(err, &sdkErr):
		out.StatusCode = sdkErr.StatusCode
		out.Kind = kindForStatus(sdkErr.StatusCode)
	case errors.As(err, &togErr):
		out.StatusCode = togErr.StatusCode
		out.Message = togErr.Message
		out.Kind = kindForStatus(togErr.StatusCode)
	case errors.Is(err, context.Canceled):
		out.Kind = KindCanceled
	case resilience.IsTimeout(err):
		out.Kind = KindTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		out.Kind = KindUnavailable
	case resilience.IsNetwork(err):
		out.Kind = KindNetwork
	}
	return out
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case resilience.IsTransientHTTPStatus(code):
		return KindServer
	case code >= 400 && code < 500:
		return KindBadRequest
	default:
		return KindUnknown
	}
}

// MaskKey renders an API key safe for logs: the first four characters followed
// by asterisks.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
