// Package artifacts moves journal inputs and outputs to and from Cloud Storage.
package artifacts

import "context"

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Upload uploads a local file to a bucket under the given object name.
	Upload(ctx context.Context, bucketName, objectName, filePath string) error

	// Fetch downloads the object bytes behind a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}
