package storage

import (
	"fmt"
	"path"
	"strings"

	"anonhost/internal/apperr"
)

// DeriveKey builds the object key for an upload:
// {ownerID}/{category}s/{opaqueID}{ext} for typed uploads, otherwise
// {ownerID}/{opaqueID}{ext}.
func DeriveKey(ownerID, category, opaqueID, ext string) string {
	if category != "" {
		return fmt.Sprintf("%s/%ss/%s%s", ownerID, category, opaqueID, ext)
	}
	return fmt.Sprintf("%s/%s%s", ownerID, opaqueID, ext)
}

// CleanKey canonicalizes a relative object path and rejects anything that
// would resolve outside the storage root.
func CleanKey(p string) (string, error) {
	if strings.ContainsAny(p, "\x00\\") {
		return "", fmt.Errorf("path %q: %w", p, apperr.ErrForbidden)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("absolute path %q: %w", p, apperr.ErrForbidden)
	}

	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes root: %w", p, apperr.ErrForbidden)
	}
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("empty path: %w", apperr.ErrNotFound)
	}
	return cleaned, nil
}
