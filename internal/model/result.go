package model

// Severity is the overall severity the model assigned to a batch.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists the allowed severities from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	for i, k := range Severities {
		if k == s {
			return i
		}
	}
	return -1
}

// ErrorKind is the top-level failure category of an analysis.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindParse         ErrorKind = "parse"
)

// ErrorCause narrows an ErrorKind down to what actually went wrong.
type ErrorCause string

const (
	CauseAuth        ErrorCause = "auth"
	CauseRateLimit   ErrorCause = "rate_limit"
	CauseTimeout     ErrorCause = "timeout"
	CauseNetwork     ErrorCause = "network"
	CauseServer      ErrorCause = "server"
	CauseBadRequest  ErrorCause = "bad_request"
	CauseCanceled    ErrorCause = "canceled"
	CauseUnavailable ErrorCause = "unavailable"
	CauseParse       ErrorCause = "parse"
	CauseUnknown     ErrorCause = "unknown"
)

// ResultError describes why an analysis did not succeed.
type ResultError struct {
	Kind    ErrorKind  `json:"kind"`
	Cause   ErrorCause `json:"cause"`
	Message string     `json:"message"`
}

// Correction is a single field-level fix the model proposes for one record.
type Correction struct {
	RecordID       string `json:"recordId,omitempty"`
	Field          string `json:"field"`
	OriginalValue  any    `json:"originalValue"`
	CorrectedValue any    `json:"correctedValue"`
	Reason         string `json:"reason"`
}

// Routing records which provider path produced the response.
type Routing struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	UsedFallback     bool    `json:"used_fallback"`
	PrimaryError     string  `json:"primary_error,omitempty"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	LatencyMs        int64   `json:"latency_ms"`
}

// AnalysisResult is the externally visible outcome of analyzing one batch.
// Failed analyses still carry the caller's records in CorrectedData.
type AnalysisResult struct {
	CorrelationID    string       `json:"correlation_id"`
	TaskType         TaskType     `json:"task_type"`
	Success          bool         `json:"success"`
	IssuesFound      []string     `json:"issues_found"`
	CorrectionsFound bool         `json:"corrections_found"`
	CorrectionCount  int          `json:"correction_count"`
	Corrections      []Correction `json:"corrections"`
	CorrectedData    Batch        `json:"corrected_data,omitempty"`
	Severity         Severity     `json:"severity"`
	Confidence       int          `json:"confidence"`
	Summary          string       `json:"summary,omitempty"`
	Recommendations  []string     `json:"recommendations,omitempty"`
	EstimatedImpact  string       `json:"estimated_impact,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
	Routing          *Routing     `json:"routing,omitempty"`
	Error            *ResultError `json:"error,omitempty"`
}
