package config

import (
	"os"
	"strings"
)

// StrictSingleUseLinks makes magic links single-use: once the run behind a link
// is completed, resolving the same token again is rejected instead of returning
// a read-only view.
//
// Set via env:
// - STRICT_SINGLE_USE_LINKS=true
func StrictSingleUseLinks() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_SINGLE_USE_LINKS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AutoIssueDailyLinks makes the daily run generator issue magic-link assignments
// to every active manager of the location right after creating the run.
//
// Set via env:
// - AUTO_ISSUE_DAILY_LINKS=true
func AutoIssueDailyLinks() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AUTO_ISSUE_DAILY_LINKS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// EvidenceThumbnails enables server-side thumbnail generation for evidence photos
// after upload completion.
//
// Set via env:
// - EVIDENCE_THUMBNAILS=true
func EvidenceThumbnails() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("EVIDENCE_THUMBNAILS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
