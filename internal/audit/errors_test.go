package audit

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/audit-cli/internal/llm"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/router"
)

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "audit: invalid batch: record batch is empty", (&ValidationError{Index: -1, Reason: "record batch is empty"}).Error())
	assert.Equal(t, "audit: invalid record 3: missing identifying field", (&ValidationError{Index: 3, Reason: "missing identifying field"}).Error())
}

func TestProviderFailure(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		cause model.ErrorCause
	}{
		{
			"exhausted reports fallback cause",
			&router.ExhaustedError{
				TaskType: "payroll",
				Primary:  &llm.ProviderError{Kind: llm.KindAuth},
				Fallback: &llm.ProviderError{Kind: llm.KindTimeout},
			},
			model.CauseTimeout,
		},
		{"canceled before fallback", eris.Wrap(&llm.ProviderError{Kind: llm.KindCanceled}, "router: fallback skipped"), model.CauseCanceled},
		{"circuit open", &llm.ProviderError{Kind: llm.KindUnavailable}, model.CauseUnavailable},
		{"empty prompt", eris.Wrap(llm.ErrEmptyPrompt, "router"), model.CauseBadRequest},
		{"unknown", errors.New("odd"), model.CauseUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := providerFailure(tt.err)
			assert.Equal(t, model.ErrorKindProvider, re.Kind)
			assert.Equal(t, tt.cause, re.Cause)
			assert.Equal(t, tt.err.Error(), re.Message)
		})
	}
}
