package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the artifact files of one journal run.
type Paths struct {
	CSV  string
	JSON string
}

// WriteFiles writes journal_entries_<id>.csv and .json into dir. Each file is
// written to a temporary name first and renamed into place.
func WriteFiles(dir string, rep Report) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("WriteFiles: creating %s: %w", dir, err)
	}
	base := filepath.Join(dir, "journal_entries_"+rep.Metadata.JournalSessionID)
	paths := Paths{CSV: base + ".csv", JSON: base + ".json"}

	var table bytes.Buffer
	if err := WriteTable(&table, rep.Entries); err != nil {
		return Paths{}, fmt.Errorf("WriteFiles: %w", err)
	}
	if err := writeAtomic(paths.CSV, table.Bytes()); err != nil {
		return Paths{}, fmt.Errorf("WriteFiles: %w", err)
	}

	var doc bytes.Buffer
	if err := WriteReport(&doc, rep); err != nil {
		return Paths{}, fmt.Errorf("WriteFiles: encoding report: %w", err)
	}
	if err := writeAtomic(paths.JSON, doc.Bytes()); err != nil {
		return Paths{}, fmt.Errorf("WriteFiles: %w", err)
	}
	return paths, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
