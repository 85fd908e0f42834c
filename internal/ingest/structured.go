package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/audit-cli/internal/model"
)

// decodeJSON accepts a top-level array of objects or {"records": [...]}.
func decodeJSON(data []byte) (model.Batch, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, eris.New("ingest: empty input")
	}

	if data[0] == '[' {
		var batch model.Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, eris.Wrap(err, "ingest: decode json array")
		}
		return checkRecords(batch)
	}

	var wrapper struct {
		Records *model.Batch `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "ingest: decode json object")
	}
	if wrapper.Records == nil {
		return nil, eris.New(`ingest: json object has no "records" array`)
	}
	return checkRecords(*wrapper.Records)
}

// decodeYAML accepts the same shapes as decodeJSON. Values are passed through
// JSON so they carry the same Go types as JSON input.
func decodeYAML(data []byte) (model.Batch, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "ingest: decode yaml")
	}
	if doc == nil {
		return nil, eris.New("ingest: empty input")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: yaml values are not json compatible")
	}
	return decodeJSON(b)
}

func checkRecords(batch model.Batch) (model.Batch, error) {
	for i, r := range batch {
		if r == nil {
			return nil, eris.Errorf("ingest: record %d is not an object", i)
		}
	}
	if batch == nil {
		batch = model.Batch{}
	}
	return batch, nil
}
