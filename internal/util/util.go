// Package util provides helpers for the string arguments a scripting host
// passes to extension calls.
package util

import "strings"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// FixArgs undoes the host's quoting of every argument in place.
func FixArgs(data []string) {
	for i, v := range data {
		data[i] = FixEscapeQuotes(TrimQuotes(v))
	}
}
