package precedence

import "strings"

// Canonical environment names.
const (
	Production  = "production"
	Staging     = "staging"
	Development = "development"
	Testing     = "testing"
)

var aliases = map[string]string{
	"prod": Production,
	"stg":  Staging,
	"dev":  Development,
	"test": Testing,
}

// Normalize lowercases name and resolves an alias to its canonical name.
// Unknown names are returned lowercased. Normalize is idempotent.
func Normalize(name string) string {
	name = strings.ToLower(name)
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}

// Alias returns the short alias of a canonical name, or the name itself when
// it has none.
func Alias(canonical string) string {
	for alias, c := range aliases {
		if c == canonical {
			return alias
		}
	}
	return canonical
}

// IsKnown reports whether name normalizes to one of the canonical environments.
func IsKnown(name string) bool {
	switch Normalize(name) {
	case Production, Staging, Development, Testing:
		return true
	}
	return false
}

// Canonical returns the canonical environments in a fixed order.
func Canonical() []string {
	return []string{Production, Staging, Development, Testing}
}

// overlayPrefixes are the filename prefixes selecting files for canonical.
func overlayPrefixes(canonical string) []string {
	alias := Alias(canonical)
	if alias == canonical {
		return []string{canonical + "-"}
	}
	return []string{alias + "-", canonical + "-"}
}
