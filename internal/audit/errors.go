package audit

import (
	"errors"
	"fmt"

	"github.com/sells-group/audit-cli/internal/llm"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/router"
)

// ValidationError rejects a batch before any provider is called. Index is the
// offending record, or -1 when the batch as a whole is invalid.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return "audit: invalid batch: " + e.Reason
	}
	return fmt.Sprintf("audit: invalid record %d: %s", e.Index, e.Reason)
}

// providerFailure converts a routing failure into the result taxonomy. When
// both calls failed the fallback's cause is reported; the message names both.
func providerFailure(err error) *model.ResultError {
	re := &model.ResultError{
		Kind:    model.ErrorKindProvider,
		Cause:   model.CauseUnknown,
		Message: err.Error(),
	}

	var ex *router.ExhaustedError
	var pe *llm.ProviderError
	switch {
	case errors.As(err, &ex) && ex.Fallback != nil:
		re.Cause = causeFor(ex.Fallback.Kind)
	case errors.As(err, &pe):
		re.Cause = causeFor(pe.Kind)
	case errors.Is(err, llm.ErrEmptyPrompt):
		re.Cause = model.CauseBadRequest
	}
	return re
}

func causeFor(kind llm.Kind) model.ErrorCause {
	switch kind {
	case llm.KindAuth:
		return model.CauseAuth
	case llm.KindRateLimit:
		return model.CauseRateLimit
	case llm.KindTimeout:
		return model.CauseTimeout
	case llm.KindNetwork:
		return model.CauseNetwork
	case llm.KindServer:
		return model.CauseServer
	case llm.KindBadRequest:
		return model.CauseBadRequest
	case llm.KindCanceled:
		return model.CauseCanceled
	case llm.KindUnavailable:
		return model.CauseUnavailable
	default:
		return model.CauseUnknown
	}
}
