package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const maxFilenameLength = 255

var portalIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// ValidatePortalID checks a portal identifier against the allowed charset.
func ValidatePortalID(portalID string) error {
	if portalID == "" {
		return fmt.Errorf("portal_id cannot be empty")
	}
	if !portalIDPattern.MatchString(portalID) {
		return fmt.Errorf("portal_id contains invalid characters")
	}
	return nil
}

// SanitizeFilename strips any path components and control characters from a
// client-supplied filename. Returns an error when nothing usable remains.
func SanitizeFilename(filename string) (string, error) {
	// Drop directory components from either separator convention.
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimSpace(b.String())

	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid filename")
	}
	if len(name) > maxFilenameLength {
		return "", fmt.Errorf("filename too long: %d characters (max %d)", len(name), maxFilenameLength)
	}
	return name, nil
}

// ValidateEmail performs a light-weight shape check on an optional uploader
// email. Empty is allowed; the field is informational.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || len(email) > 254 {
		return fmt.Errorf("invalid email address")
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
