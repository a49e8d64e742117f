// Package trackinfo derives display metadata for audio files from their
// paths.
package trackinfo

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Title derives a human-readable track title from an audio file path.
// Underscores, dots, and dashes in the file name read as word breaks.
func Title(audioPath string) string {
	if audioPath == "" {
		return "Unknown Track"
	}
	base := filepath.Base(audioPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Unknown Track"
	}
	return cases.Title(language.Und).String(title)
}
