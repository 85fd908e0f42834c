package router

import (
	"fmt"

	"github.com/sells-group/audit-cli/internal/llm"
)

// ConfigurationError reports routing that cannot start: an unknown task type,
// a provider with no credentials, or an invalid table entry. It is returned
// before any network call.
type ConfigurationError struct {
	TaskType string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.TaskType == "" {
		return "router: configuration: " + e.Reason
	}
	return fmt.Sprintf("router: configuration for task type %q: %s", e.TaskType, e.Reason)
}

// ExhaustedError is returned when the primary call and the single fallback
// call both failed.
type ExhaustedError struct {
	TaskType string
	Primary  *llm.ProviderError
	Fallback *llm.ProviderError
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("router: %s: primary failed: %v; fallback failed: %v", e.TaskType, e.Primary, e.Fallback)
}

// Unwrap exposes both provider failures to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	return []error{e.Fallback, e.Primary}
}
