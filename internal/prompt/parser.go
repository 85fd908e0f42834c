package prompt

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/audit-cli/internal/model"
)

// ReasonUnparseable is the Outcome reason when no JSON object can be read
// from the reply.
const ReasonUnparseable = "unparseable response"

// Warnings attached to an Outcome when a field had to be normalized.
const (
	WarnSeverityUnrecognized   = "severity_unrecognized"
	WarnSeverityMissing        = "severity_missing"
	WarnConfidenceMissing      = "confidence_missing"
	WarnConfidenceUnrecognized = "confidence_unrecognized"
	WarnConfidenceClamped      = "confidence_clamped"
	WarnCorrectionWithoutField = "correction_without_field"
)

var (
	issueKeys      = []string{"issuesFound", "findings", "issues"}
	confidenceKeys = []string{"confidence", "confidencePercent", "confidence_percentage", "confidencePercentage"}
)

// Analysis is the structured content of a successfully parsed reply.
type Analysis struct {
	IssuesFound      []string
	CorrectionsFound bool
	Corrections      []model.Correction
	CorrectedData    model.Batch
	Severity         model.Severity
	Confidence       int
	Summary          string
	Recommendations  []string
	EstimatedImpact  string
}

// Outcome is either a parsed Analysis (OK) or the reason the reply could not
// be interpreted. Raw always holds the reply text.
type Outcome struct {
	OK       bool
	Reason   string
	Raw      string
	Analysis *Analysis
	Warnings []string
}

// Parse interprets a model reply. It never panics or returns an error: replies
// that cannot be read produce an Outcome with OK false.
func Parse(raw string) Outcome {
	out := Outcome{Raw: raw}

	doc, ok := decodeObject(raw)
	if !ok {
		out.Reason = ReasonUnparseable
		return out
	}
	if firstKey(doc, issueKeys) == "" {
		out.Reason = "missing required key: issuesFound"
		return out
	}
	if err := validateShape(doc); err != nil {
		out.Reason = "response does not match analysis shape: " + err.Error()
		return out
	}

	a := &Analysis{
		IssuesFound: textList(doc[firstKey(doc, issueKeys)]),
		Summary:     stringValue(doc["summary"]),
	}
	a.Recommendations = textList(doc["recommendations"])
	if s, ok := doc["recommendations"].(string); ok && strings.TrimSpace(s) != "" {
		a.Recommendations = []string{strings.TrimSpace(s)}
	}
	if v, ok := doc["estimatedImpact"]; ok && v != nil {
		a.EstimatedImpact = stringValue(v)
	}

	var warn []string
	a.Corrections, warn = parseCorrections(doc["corrections"])
	out.Warnings = append(out.Warnings, warn...)

	a.CorrectionsFound = len(a.Corrections) > 0
	if found, ok := boolValue(doc["correctionsFound"]); ok {
		a.CorrectionsFound = found
	}
	if rows, ok := doc["correctedData"].([]any); ok {
		a.CorrectedData = make(model.Batch, 0, len(rows))
		for _, row := range rows {
			if m, ok := row.(map[string]any); ok {
				a.CorrectedData = append(a.CorrectedData, model.Record(m))
			}
		}
	}

	var w string
	a.Severity, w = normalizeSeverity(doc["severity"])
	if w != "" {
		out.Warnings = append(out.Warnings, w)
	}

	var cw []string
	a.Confidence, cw = normalizeConfidence(doc, confidenceKeys)
	out.Warnings = append(out.Warnings, cw...)

	out.OK = true
	out.Analysis = a
	return out
}

// decodeObject finds the first JSON object in raw. Code fences at the start
// are stripped; then each '{' is tried with a brace-balanced scan, and finally
// the span from the first '{' to the last '}'.
func decodeObject(raw string) (map[string]any, bool) {
	text := stripFence(strings.TrimSpace(raw))

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			if doc, ok := unmarshalObject(text[start : end+1]); ok {
				return doc, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return unmarshalObject(text[start : end+1])
	}
	return nil, false
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// matchBrace returns the index of the '}' closing the '{' at start, skipping
// braces inside JSON strings, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func unmarshalObject(s string) (map[string]any, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

func firstKey(doc map[string]any, keys []string) string {
	for _, k := range keys {
		if _, ok := doc[k]; ok {
			return k
		}
	}
	return ""
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// textList flattens a list of strings or objects into display strings.
func textList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch t := item.(type) {
		case map[string]any:
			s = stringValue(firstValue(t, "description", "issue", "message", "title", "text"))
			if s == "" {
				b, _ := json.Marshal(t)
				s = string(b)
			}
		default:
			s = stringValue(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringValue(v any) string {
	return model.FormatValue(v)
}

func boolValue(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	default:
		return false, false
	}
}

func parseCorrections(v any) ([]model.Correction, []string) {
	items, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	var warnings []string
	out := make([]model.Correction, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := model.Correction{
			RecordID:       stringValue(firstValue(m, "recordId", "record_id", "employeeId", "employee_id", "id")),
			Field:          stringValue(firstValue(m, "field", "fieldName", "field_name")),
			OriginalValue:  firstValue(m, "originalValue", "original_value", "original"),
			CorrectedValue: firstValue(m, "correctedValue", "corrected_value", "corrected"),
			Reason:         stringValue(firstValue(m, "reason", "explanation")),
		}
		if c.Field == "" {
			warnings = append(warnings, WarnCorrectionWithoutField)
			continue
		}
		out = append(out, c)
	}
	return out, warnings
}

// normalizeSeverity clamps v to the severity enum. Anything else is low.
func normalizeSeverity(v any) (model.Severity, string) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return model.SeverityLow, WarnSeverityMissing
	}
	sev := model.Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() < 0 {
		return model.SeverityLow, WarnSeverityUnrecognized
	}
	return sev, ""
}

// normalizeConfidence converts the first confidence field to an integer
// percentage. Numbers strictly between 0 and 1 are fractions; 0, 1 and larger
// numbers are already percentages; "85%" strings are percentages.
func normalizeConfidence(doc map[string]any, keys []string) (int, []string) {
	key := firstKey(doc, keys)
	if key == "" || doc[key] == nil {
		return 0, []string{WarnConfidenceMissing}
	}

	var pct float64
	switch t := doc[key].(type) {
	case float64:
		pct = fractionToPercent(t)
	case string:
		s := strings.TrimSpace(t)
		percent := strings.HasSuffix(s, "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, []string{WarnConfidenceUnrecognized}
		}
		if percent {
			pct = f
		} else {
			pct = fractionToPercent(f)
		}
	default:
		return 0, []string{WarnConfidenceUnrecognized}
	}

	if math.IsNaN(pct) {
		return 0, []string{WarnConfidenceUnrecognized}
	}
	switch {
	case pct < 0:
		return 0, []string{WarnConfidenceClamped}
	case pct > 100:
		return 100, []string{WarnConfidenceClamped}
	}
	return int(math.Round(pct)), nil
}

func fractionToPercent(f float64) float64 {
	if f > 0 && f < 1 {
		return f * 100
	}
	return f
}
