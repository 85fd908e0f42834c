// Package ingest loads record batches from JSON, YAML, CSV and XLSX files.
package ingest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-cli/internal/model"
)

// Format is a supported input file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFor returns the format implied by path's extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".csv":
		return FormatCSV, true
	case ".xlsx":
		return FormatXLSX, true
	default:
		return "", false
	}
}

// LoadFile reads the batch stored at path. The format is picked by extension.
func LoadFile(path string) (model.Batch, error) {
	format, ok := FormatFor(path)
	if !ok {
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}

	if format == FormatXLSX {
		rows, err := readXLSX(path)
		if err != nil {
			return nil, err
		}
		return tableToBatch(rows)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	return Decode(data, format)
}

// Decode parses data in the given format. XLSX needs a file and is not
// accepted here.
func Decode(data []byte, format Format) (model.Batch, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	case FormatYAML:
		return decodeYAML(data)
	case FormatCSV:
		rows, err := readCSV(data)
		if err != nil {
			return nil, err
		}
		return tableToBatch(rows)
	default:
		return nil, eris.Errorf("ingest: cannot decode %q from bytes", format)
	}
}

// ListDir returns the supported input files directly under dir, sorted by
// name.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read dir %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, ok := FormatFor(e.Name()); ok {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
