package utils

import (
	"os"
	"strings"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

// LocalStorageRoot is the on-disk directory used by the local provider (dev
// environments without a bucket).
func LocalStorageRoot() string {
	root := strings.TrimSpace(os.Getenv("LOCAL_STORAGE_ROOT"))
	if root == "" {
		return "./data/uploads"
	}
	return root
}
