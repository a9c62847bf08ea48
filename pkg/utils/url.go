package utils

import (
	"net/url"
	"strings"
)

// URLHelper provides URL utility functions.
type URLHelper struct{}

// NewURLHelper creates a new URL helper.
func NewURLHelper() *URLHelper {
	return &URLHelper{}
}

// IsValidURL checks that raw is an absolute URL with a scheme and a host.
func (h *URLHelper) IsValidURL(raw string) bool {
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return u.Scheme != "" && u.Host != "" && u.Opaque == ""
}
