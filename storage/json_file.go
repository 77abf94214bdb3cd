package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorruptStore is returned when a store file exists but does not hold
// valid JSON of the expected shape. The file is left untouched.
var ErrCorruptStore = errors.New("corrupt store file")

// readJSONFile decodes path into v. A missing file reports found=false and
// no error.
func readJSONFile(path string, v any) (found bool, err error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: read %q: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, fmt.Errorf("storage: %w %q: %v", ErrCorruptStore, path, err)
	}
	return true, nil
}

// encodeJSON renders v as indented UTF-8 JSON without HTML escaping, so
// unchanged data always produces the same bytes.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeJSONFileAtomic replaces path with v. The new content is written to a
// temp file in the same directory and renamed over path, so readers see
// either the old or the new file. The previous content is kept as path.bak.
func writeJSONFileAtomic(path string, v any) error {
	b, err := encodeJSON(v)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp for %q: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: write %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: sync %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %q: %w", tmpName, err)
	}

	if prev, err := os.ReadFile(path); err == nil {
		if !bytes.Equal(prev, b) {
			if err := os.WriteFile(path+".bak", prev, 0o644); err != nil {
				return fmt.Errorf("storage: backup %q: %w", path, err)
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: read %q: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: replace %q: %w", path, err)
	}
	return nil
}
