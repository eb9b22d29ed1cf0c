package runner

import "strings"

// Intercept answers a known non-code input with a canned response instead
// of evaluating it.
type Intercept struct {
	// Name identifies the intercept in logs.
	Name string
	// Patterns are matched as case-sensitive substrings of the source.
	Patterns []string
	// Response is rendered verbatim.
	Response string
}

// Match reports whether source contains any of the patterns.
func (i Intercept) Match(source string) bool {
	for _, p := range i.Patterns {
		if strings.Contains(source, p) {
			return true
		}
	}
	return false
}

// Lookup returns the first intercept in table that matches source.
func Lookup(table []Intercept, source string) (Intercept, bool) {
	for _, i := range table {
		if i.Match(source) {
			return i, true
		}
	}
	return Intercept{}, false
}

// DefaultIntercepts handles shell commands people paste from tutorials:
// version queries and launching IDLE.
func DefaultIntercepts(pythonVersion string) []Intercept {
	return []Intercept{
		{
			Name:     "version",
			Patterns: []string{"python --version", "python3 --version"},
			Response: "Python " + pythonVersion + " (sandbox kernel)\n🐳 Note: This is running in a sandbox container!",
		},
		{
			Name:     "idle",
			Patterns: []string{"idle3", "idle"},
			Response: "🖥️ IDLE cannot be launched here\n💡 Tip: Try running Python code directly instead!",
		},
	}
}
