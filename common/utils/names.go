package utils

import "strings"

// NormalizeName lowercases and trims a name for use in cache and profile
// keys. Two users searching "Doe" and " DOE " must hit the same cache row.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MaskName hides the middle of a name for free-tier display.
func MaskName(name string) string {
	if len(name) < 3 {
		return "***"
	}
	return name[:1] + strings.Repeat("*", len(name)-2) + name[len(name)-1:]
}

// MaskCity hides most of a city name, keeping the first letter.
func MaskCity(city string) string {
	if len(city) < 3 {
		return "***"
	}
	n := len(city) - 2
	if n > 5 {
		n = 5
	}
	return city[:1] + strings.Repeat("*", n) + "..."
}
