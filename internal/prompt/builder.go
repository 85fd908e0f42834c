// Package prompt builds audit prompts for a record batch and parses the
// model's reply into a structured analysis.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-cli/internal/model"
)

// DefaultSampleSize is the number of leading records embedded in a prompt.
const DefaultSampleSize = 50

// Prompt is a built prompt pair plus what was embedded.
type Prompt struct {
	System         string
	User           string
	SampledRecords int
	TotalRecords   int
}

// Builder constructs prompts. It is stateless and safe for concurrent use.
type Builder struct {
	sampleSize int
}

// NewBuilder creates a Builder that embeds at most sampleSize records. A
// non-positive size uses DefaultSampleSize.
func NewBuilder(sampleSize int) *Builder {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Builder{sampleSize: sampleSize}
}

// SampleSize returns the maximum number of records embedded per prompt.
func (b *Builder) SampleSize() int { return b.sampleSize }

// Build returns the prompt for analyzing batch as taskType.
func (b *Builder) Build(taskType model.TaskType, batch model.Batch) (Prompt, error) {
	profile, ok := profiles[taskType]
	if !ok {
		return Prompt{}, eris.Errorf("prompt: no checks for task type %q", taskType)
	}

	sample := batch
	if len(sample) > b.sampleSize {
		sample = sample[:b.sampleSize]
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return Prompt{}, eris.Wrap(err, "prompt: marshal records")
	}

	return Prompt{
		System:         systemPrompt(profile),
		User:           userPrompt(profile, taskType, data, len(sample), len(batch)),
		SampledRecords: len(sample),
		TotalRecords:   len(batch),
	}, nil
}

func systemPrompt(p taskProfile) string {
	return fmt.Sprintf("You are %s. You review %s records for errors and compliance risks. "+
		"You answer with a single JSON object and no other text.", p.persona, p.label)
}

func userPrompt(p taskProfile, taskType model.TaskType, records []byte, sampled, total int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Analyze the following %s records", p.label)
	if sampled < total {
		fmt.Fprintf(&sb, " (first %d of %d)", sampled, total)
	}
	sb.WriteString(".\n\nCheck for:\n")
	for i, c := range p.checks {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}

	sb.WriteString("\nRecords (JSON):\n")
	sb.Write(records)

	fmt.Fprintf(&sb, "\n\nRespond with exactly this JSON shape:\n%s\n", outputExample)
	sb.WriteString("\nRules:\n")
	sb.WriteString("- severity is one of: low, medium, high, critical.\n")
	sb.WriteString("- confidence is an integer percentage from 0 to 100 (1 means 1%, not 100%).\n")
	fmt.Fprintf(&sb, "- recordId is the record's %s value.\n", strings.Join(taskType.IdentifyingKeys(), " or "))
	sb.WriteString("- Only include correctedData when correctionsFound is true; keep every record and every field, changing only corrected values.\n")
	sb.WriteString("- When nothing is wrong, return an empty issuesFound list and correctionsFound false.\n")
	return sb.String()
}

const outputExample = `{
  "issuesFound": ["short description of each issue"],
  "correctionsFound": true,
  "corrections": [
    {"recordId": "E1", "field": "grossPay", "originalValue": 1125, "correctedValue": 1187.5, "reason": "5 overtime hours paid at straight time"}
  ],
  "correctedData": [{"...": "the input records with corrections applied"}],
  "severity": "medium",
  "confidence": 85,
  "summary": "one paragraph overview",
  "recommendations": ["actionable next step"],
  "estimatedImpact": "$62.50 underpaid"
}`
