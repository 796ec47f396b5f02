// Package assets builds the static asset references the screens render:
// system icons, thumbnails and the placeholder, each with a cache-defeating
// query parameter appended at render time.
package assets

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultIconBase    = "/systems/"
	DefaultPlaceholder = "/theme/default/noimage.png"
)

// CacheBuster returns a fresh token per call.
type CacheBuster func() string

// ClockBuster derives tokens from the wall clock in milliseconds.
func ClockBuster(now func() time.Time) CacheBuster {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return strconv.FormatInt(now().UnixMilli(), 10)
	}
}

// Bust appends cache=<token> to ref. A nil buster leaves ref untouched.
func Bust(ref string, buster CacheBuster) string {
	if buster == nil || ref == "" {
		return ref
	}
	token := buster()
	if token == "" {
		return ref
	}
	sep := "?"
	if strings.Contains(ref, "?") {
		sep = "&"
	}
	return ref + sep + "cache=" + token
}

// IconRef maps an icon file name onto the icon directory.
func IconRef(base, icon string) string {
	if base == "" {
		base = DefaultIconBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimLeft(icon, "/")
}
