package audit

import (
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/prompt"
)

// resolveCorrectedData picks the corrected batch for a successful analysis.
// The result always has the input's record count and per-record key set:
//   - no corrections declared: the input
//   - model data with the input's shape: the model data
//   - otherwise corrections are applied by record id onto a copy of the input
func resolveCorrectedData(taskType model.TaskType, input model.Batch, an *prompt.Analysis) (model.Batch, []string) {
	if !an.CorrectionsFound {
		return input.Clone(), nil
	}
	if len(an.CorrectedData) > 0 && input.SameShape(an.CorrectedData) {
		return an.CorrectedData, nil
	}

	var warnings []string
	if len(an.CorrectedData) > 0 {
		warnings = append(warnings, WarnCorrectedDataShapeMismatch)
	}
	if len(an.Corrections) == 0 {
		if len(an.CorrectedData) == 0 {
			warnings = append(warnings, WarnCorrectionsMissing)
		}
		return input.Clone(), warnings
	}

	out, unmatched := applyCorrections(taskType, input, an.Corrections)
	if unmatched > 0 {
		warnings = append(warnings, WarnCorrectionUnmatched)
	}
	return out, warnings
}

// applyCorrections writes each correction onto a copy of input. Corrections
// naming an unknown record or a field the record does not have are skipped
// and counted.
func applyCorrections(taskType model.TaskType, input model.Batch, corrections []model.Correction) (model.Batch, int) {
	out := input.Clone()
	index := make(map[string][]int, len(out))
	for i, r := range out {
		if id, ok := r.ID(taskType); ok {
			index[id] = append(index[id], i)
		}
	}

	unmatched := 0
	for _, c := range corrections {
		var targets []int
		switch {
		case c.RecordID != "":
			targets = index[c.RecordID]
		case len(out) == 1:
			targets = []int{0}
		}

		applied := false
		for _, i := range targets {
			if _, ok := out[i][c.Field]; ok {
				out[i][c.Field] = c.CorrectedValue
				applied = true
			}
		}
		if !applied {
			unmatched++
		}
	}
	return out, unmatched
}
