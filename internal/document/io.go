package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model document: %w", err)
	}
	return &doc, nil
}

// LoadFile reads a document and returns it with its base path, the directory
// relative table URLs are resolved against.
func LoadFile(path string) (*Document, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return doc, filepath.Dir(abs), nil
}

func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Clone returns a deep copy made through a JSON round trip.
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// ResolvePath resolves a table URL against basePath unless it is absolute.
func ResolvePath(basePath, url string) string {
	if filepath.IsAbs(url) || basePath == "" {
		return url
	}
	return filepath.Join(basePath, url)
}
