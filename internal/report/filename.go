// internal/report/filename.go
package report

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize strips characters that are unsafe in file names and
// collapses the gaps to single underscores.
func Sanitize(name string) string {
	cleaned := unsafeChars.ReplaceAllString(name, "_")
	cleaned = strings.Trim(cleaned, "_")
	for strings.Contains(cleaned, "__") {
		cleaned = strings.ReplaceAll(cleaned, "__", "_")
	}
	cleaned = strings.ReplaceAll(cleaned, "_.", ".")
	if cleaned == "" || cleaned == ".xlsx" {
		return "Trip_Report.xlsx"
	}
	// The extension separator survives sanitizing, but a name ending in
	// "_xlsx" lost its dot to the unsafe-character pass.
	if strings.HasSuffix(cleaned, "_xlsx") {
		cleaned = strings.TrimSuffix(cleaned, "_xlsx") + ".xlsx"
	}
	if !strings.HasSuffix(cleaned, ".xlsx") {
		cleaned += ".xlsx"
	}
	return cleaned
}

// EnsureUnique appends -1, -2, ... before the extension until exists
// reports the name free.
func EnsureUnique(name string, exists func(string) bool) string {
	if !exists(name) {
		return name
	}
	base := strings.TrimSuffix(name, ".xlsx")
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d.xlsx", base, i)
		if !exists(candidate) {
			return candidate
		}
	}
}
