package category

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold normalises a user-supplied category label for case-insensitive
// comparison (rule keys, geofence scopes). Casers are stateful, so each
// call builds its own.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// SameScope reports whether two category labels are equal ignoring case.
func SameScope(a, b string) bool {
	return Fold(a) == Fold(b)
}
