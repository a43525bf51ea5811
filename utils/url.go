package utils

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"onedl/internal"
)

// IsHTTPURL reports whether s is an absolute http(s) URL with a host
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// ValidateURL checks that rawURL can be downloaded directly
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return internal.NewValidationError("url", "URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return internal.NewValidationError("url", fmt.Sprintf("invalid URL format: %v", err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return internal.NewValidationErrorWithValue("url", "URL must use http or https protocol", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return internal.NewValidationError("url", "URL has no host")
	}
	return nil
}

// FilenameFromContentDisposition extracts the file name from a
// Content-Disposition header. filename* (RFC 5987) wins over filename.
func FilenameFromContentDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	// mime decodes filename* into filename
	return SanitizeFilename(params["filename"])
}

// FilenameFromURL returns the unescaped last path segment of rawURL
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return SanitizeFilename(base)
}

// SanitizeFilename strips path separators and characters that are invalid
// on common filesystems
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	return name
}

// ResolveFilename picks the name a download is saved under: the
// Content-Disposition name, then the link's display name, then the URL
// basename, then fallback.
func ResolveFilename(contentDisposition, linkName, rawURL, fallback string) string {
	if name := FilenameFromContentDisposition(contentDisposition); name != "" {
		return name
	}
	if name := SanitizeFilename(path.Base(linkName)); name != "" {
		return name
	}
	if name := FilenameFromURL(rawURL); name != "" {
		return name
	}
	return fallback
}
