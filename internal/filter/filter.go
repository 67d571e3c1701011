// Package filter hides trivial duplicate findings: tiny units,
// boilerplate entry points, and test scaffolding that duplicate
// legitimately. It only suppresses reported results; detection and
// scoring are unaffected.
package filter

import (
	"strings"

	"github.com/mimiclab/mimic/pkg/models"
)

// Trivial is the default result filter.
type Trivial struct {
	// MinLines hides units spanning fewer lines.
	MinLines int
	// KeepTests reports test units instead of hiding them.
	KeepTests bool
}

// New returns the default trivial filter.
func New() *Trivial {
	return &Trivial{MinLines: 3}
}

// boilerplate names duplicate across any two codebases without meaning
// anything.
var boilerplateNames = map[string]struct{}{
	"main":     {},
	"init":     {},
	"__init__": {},
	"__str__":  {},
	"__repr__": {},
	"__eq__":   {},
	"__hash__": {},
	"setUp":    {},
	"tearDown": {},
	"String":   {},
	"Error":    {},
	"Close":    {},
}

// ExcludeUnit reports whether a unit is too trivial to report.
func (f *Trivial) ExcludeUnit(u models.CodeUnit) bool {
	if f.MinLines > 0 && u.Lines() < f.MinLines {
		return true
	}
	if _, ok := boilerplateNames[u.Name]; ok {
		return true
	}
	if !f.KeepTests && isTestUnit(u) {
		return true
	}
	return false
}

// ExcludePair hides intra-unit noise: a module unit paired with one of
// its own members, or two units at the same location.
func (f *Trivial) ExcludePair(a, b models.CodeUnit) bool {
	if a.File != "" && a.File == b.File {
		if a.Kind == models.UnitModule || b.Kind == models.UnitModule {
			return true
		}
		if a.StartLine == b.StartLine && a.EndLine == b.EndLine {
			return true
		}
	}
	return false
}

func isTestUnit(u models.CodeUnit) bool {
	name := u.Name
	if strings.HasPrefix(name, "test_") || strings.HasPrefix(name, "Test") ||
		strings.HasPrefix(name, "Benchmark") || strings.HasPrefix(name, "Fuzz") {
		return true
	}
	base := u.File
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.HasSuffix(base, "_test.py") ||
		strings.HasSuffix(base, ".test.ts") ||
		strings.HasSuffix(base, ".spec.ts") ||
		strings.HasSuffix(base, ".test.js") ||
		strings.HasSuffix(base, ".spec.js")
}
