package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dvloznov/bookkeeper/internal/logger"
)

// Publish uploads each file to bucket under prefix and returns their URIs in
// the same order.
func Publish(ctx context.Context, svc StorageService, bucket, prefix string, files ...string) ([]string, error) {
	log := logger.FromContext(ctx)
	uris := make([]string, 0, len(files))
	for _, f := range files {
		object := path.Join(prefix, filepath.Base(f))
		if err := svc.Upload(ctx, bucket, object, f); err != nil {
			return uris, fmt.Errorf("Publish: %s: %w", f, err)
		}
		uri := URI(bucket, object)
		log.Info().Str("file", f).Str("uri", uri).Msg("Uploaded artifact")
		uris = append(uris, uri)
	}
	return uris, nil
}

// Localize returns a local path for input. A gs:// URI is downloaded into dir;
// any other value is returned unchanged.
func Localize(ctx context.Context, svc StorageService, input, dir string) (string, error) {
	if !IsURI(input) {
		return input, nil
	}
	data, err := svc.Fetch(ctx, input)
	if err != nil {
		return "", fmt.Errorf("Localize: %w", err)
	}
	local := filepath.Join(dir, Filename(input))
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("Localize: writing %s: %w", local, err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("uri", input).Str("path", local).Msg("Fetched input")
	return local, nil
}
