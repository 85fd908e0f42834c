package audit

import "github.com/sells-group/audit-cli/internal/model"

// Summary aggregates the results of a batch run.
type Summary struct {
	Total            int                     `json:"total"`
	Succeeded        int                     `json:"succeeded"`
	Failed           int                     `json:"failed"`
	UsedFallback     int                     `json:"used_fallback"`
	Corrections      int                     `json:"corrections"`
	MaxSeverity      model.Severity          `json:"max_severity,omitempty"`
	BySeverity       map[model.Severity]int  `json:"by_severity"`
	ByErrorKind      map[model.ErrorKind]int `json:"by_error_kind"`
	InputTokens      int64                   `json:"input_tokens"`
	OutputTokens     int64                   `json:"output_tokens"`
	EstimatedCostUSD float64                 `json:"estimated_cost_usd"`
}

// Summarize aggregates results. Nil entries are skipped.
func Summarize(results []*model.AnalysisResult) Summary {
	s := Summary{
		BySeverity:  make(map[model.Severity]int),
		ByErrorKind: make(map[model.ErrorKind]int),
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Total++
		if r.Routing != nil {
			if r.Routing.UsedFallback {
				s.UsedFallback++
			}
			s.InputTokens += r.Routing.InputTokens
			s.OutputTokens += r.Routing.OutputTokens
			s.EstimatedCostUSD += r.Routing.EstimatedCostUSD
		}
		if !r.Success {
			s.Failed++
			if r.Error != nil {
				s.ByErrorKind[r.Error.Kind]++
			}
			continue
		}
		s.Succeeded++
		s.Corrections += r.CorrectionCount
		s.BySeverity[r.Severity]++
		if r.Severity.Rank() > s.MaxSeverity.Rank() {
			s.MaxSeverity = r.Severity
		}
	}
	return s
}
