package prompt

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// analysisSchemaJSON constrains the structure of a model reply. Scalar fields
// are left loose because the parser normalizes them.
const analysisSchemaJSON = `{
  "type": "object",
  "properties": {
    "issuesFound": {"type": "array"},
    "findings": {"type": "array"},
    "issues": {"type": "array"},
    "correctionsFound": {"type": ["boolean", "string", "null"]},
    "corrections": {
      "type": ["array", "null"],
      "items": {"type": "object"}
    },
    "correctedData": {
      "type": ["array", "null"],
      "items": {"type": "object"}
    },
    "severity": {"type": ["string", "null"]},
    "summary": {"type": ["string", "null"]},
    "recommendations": {"type": ["array", "string", "null"]}
  }
}`

var analysisSchema = mustCompileSchema("analysis.json", analysisSchemaJSON)

func mustCompileSchema(url, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(url)
}

// validateShape checks doc against the analysis schema.
func validateShape(doc map[string]any) error {
	return analysisSchema.Validate(doc)
}
