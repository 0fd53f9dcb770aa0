// Package diagnose turns raw test-runner output into structured,
// deduplicated failure records and classifies each by bug type.
package diagnose

import (
	"strings"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

// Classify assigns a bug type to an error using fixed keyword precedence
// over the lower-cased message plus full output. Precedence order:
// INDENTATION, SYNTAX, IMPORT, TYPE_ERROR, LINTING, then LOGIC as the
// default.
func Classify(message, fullOutput string) domain.BugType {
	t := strings.ToLower(message + " " + fullOutput)

	switch {
	case containsAny(t, "indentationerror", "unexpected indent", "indentation"):
		return domain.BugIndentation
	case containsAny(t, "syntaxerror", "invalid syntax", "syntax"):
		return domain.BugSyntax
	case containsAny(t, "importerror", "modulenotfounderror", "cannot import"):
		return domain.BugImport
	case containsAny(t, "typeerror", "type error", "unsupported operand"):
		return domain.BugTypeError
	case containsAny(t, "flake8", "pylint", "pep8", "lint", "unused import"):
		return domain.BugLinting
	}
	return domain.BugLogic
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
