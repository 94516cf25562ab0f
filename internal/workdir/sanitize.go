package workdir

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxNameBytes is the usual per-component limit of Linux and macOS filesystems.
	MaxNameBytes = 255
	fallbackName = "untitled"
)

// SanitizeName makes a title safe to use as a single path component.
// Forbidden characters become "_". A title made only of forbidden characters
// and whitespace becomes "untitled". The result is at most MaxNameBytes long.
func SanitizeName(s string) string {
	return SanitizeNameMax(s, MaxNameBytes)
}

// SanitizeNameMax is SanitizeName with a byte budget, for names that get a
// prefix or suffix appended before they reach the filesystem. Multibyte
// characters are never split.
func SanitizeNameMax(s string, maxBytes int) string {
	meaningful := false

	mapped := strings.Map(func(r rune) rune {
		if isForbidden(r) {
			return '_'
		}

		if !unicode.IsSpace(r) {
			meaningful = true
		}

		return r
	}, s)

	if !meaningful {
		return fallbackName
	}

	mapped = strings.TrimSpace(truncateBytes(strings.TrimSpace(mapped), maxBytes))
	if mapped == "" {
		return fallbackName
	}

	return mapped
}

func truncateBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}

	// s comes out of strings.Map, so every rune is valid UTF-8
	cut := 0
	for i, r := range s {
		end := i + utf8.RuneLen(r)
		if end > maxBytes {
			break
		}

		cut = end
	}

	return s[:cut]
}

func isForbidden(r rune) bool {
	return r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r)
}
