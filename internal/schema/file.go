package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fitlab/promptsync/internal/syncerr"
)

const documentStart = "---\n"

// Marshal encodes a document as YAML with an explicit document start.
// The document is validated and normalized first, so equal documents always
// produce identical bytes.
func Marshal(doc *Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("cannot encode invalid document: %w", err)
	}
	d := *doc
	d.Normalize()

	var buf bytes.Buffer
	buf.WriteString(documentStart)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d); err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", d.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", d.Name, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes and validates a YAML document.
// Decoding errors and validation failures are schema mismatches.
// Unknown keys are ignored.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &syncerr.SchemaMismatchError{Reason: err.Error()}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	doc.Normalize()
	return &doc, nil
}

// ReadDocumentFile reads the document at relPath below dir.
// The path must be the one derived from the document's name.
func ReadDocumentFile(dir, relPath string) (*Document, error) {
	path := filepath.Join(dir, relPath)
	data, err := os.ReadFile(path) // #nosec G304 - path is below the template directory
	if err != nil {
		return nil, fmt.Errorf("failed to read document file %s: %w", path, err)
	}

	doc, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("invalid document file %s: %w", relPath, err)
	}

	want, _ := doc.Path()
	if filepath.Clean(relPath) != want {
		return nil, fmt.Errorf("invalid document file %s: %w", relPath,
			syncerr.Mismatch("name", "%q belongs at %s", doc.Name, want))
	}
	return doc, nil
}

// WriteDocumentFile writes doc below dir at the path derived from its name,
// creating intermediate directories. It returns the relative path written.
func WriteDocumentFile(dir string, doc *Document) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	rel, err := doc.Path()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write document file %s: %w", path, err)
	}
	return rel, nil
}
