package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/dataroom/core"
)

// FieldsSuffix names the JSON sidecar holding a document's structured fields.
// report.txt pairs with report.fields.json.
const FieldsSuffix = ".fields.json"

var ingestibleExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// IsIngestible reports whether path names a text file the watcher should ingest.
// Hidden files and field sidecars are skipped.
func IsIngestible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, FieldsSuffix) {
		return false
	}
	return ingestibleExtensions[strings.ToLower(filepath.Ext(base))]
}

// FieldsPath returns the sidecar path for a text file.
func FieldsPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + FieldsSuffix
}

// DocumentFromFile loads a text file as a document of taskID.
// Structured fields are read from the file's sidecar when one exists.
func DocumentFromFile(taskID, docID, path string) (*core.Document, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fields, err := ReadFieldsFile(FieldsPath(path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &core.Document{
		TaskID:           taskID,
		DocID:            docID,
		RawText:          string(text),
		StructuredFields: fields,
		Metadata: map[string]any{
			core.MetadataFilename: filepath.Base(path),
			core.MetadataPath:     path,
		},
	}, nil
}

// ReadFieldsFile reads structured fields from a JSON object file.
func ReadFieldsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields, err := ParseFields(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fields, nil
}

// ParseFields decodes a JSON object into structured fields. Non-string values
// keep their JSON rendering and nulls are dropped.
func ParseFields(data []byte) (map[string]string, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = fmt.Sprint(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			fields[key] = string(encoded)
		}
	}
	return fields, nil
}
