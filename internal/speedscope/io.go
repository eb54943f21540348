package speedscope

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
)

// Decode parses a canonical profile from r.
func Decode(r io.Reader) (*File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &f, nil
}

// Read parses the canonical profile at path.
func Read(path string) (*File, error) {
	fh, err := os.Open(path) // #nosec G304 - caller-supplied profile path.
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	return Decode(fh)
}

// Write validates f and writes it to path, replacing any existing file
// atomically.
func Write(path string, f *File) error {
	if f.Schema == "" {
		f.Schema = SchemaURL
	}
	if err := Validate(f); err != nil {
		return fmt.Errorf("refusing to write invalid profile: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(f); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set profile permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move profile into place: %w", err)
	}
	committed = true

	return nil
}

// JSONSchema returns the JSON Schema describing File.
func JSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(&File{})
	s.Title = "uniprof canonical profile"
	return s
}
