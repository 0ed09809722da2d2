package artifacts

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const scheme = "gs://"

// IsURI reports whether s is a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return bucket, object, nil
}

// URI builds gs://bucket/object.
func URI(bucket, object string) string {
	return scheme + bucket + "/" + object
}

// Filename returns the last element of a gs:// URI,
// e.g. "gs://bucket/folder/file.csv" gives "file.csv".
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, scheme)
	_, object, ok := strings.Cut(trimmed, "/")
	if !ok {
		return trimmed
	}
	return path.Base(object)
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	}
	return "application/octet-stream"
}
