package ingest

import "fmt"

// IngestionValidationError reports malformed input found before any dispatch.
// Row is the 1-based line of the offending record; 0 means the whole file.
type IngestionValidationError struct {
	Source string
	Row    int
	Field  string
	Reason string
}

func (e *IngestionValidationError) Error() string {
	switch {
	case e.Row > 0 && e.Field != "":
		return fmt.Sprintf("%s: row %d: field %q: %s", e.Source, e.Row, e.Field, e.Reason)
	case e.Row > 0:
		return fmt.Sprintf("%s: row %d: %s", e.Source, e.Row, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s: field %q: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Reason)
}
