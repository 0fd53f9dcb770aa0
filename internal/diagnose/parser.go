package diagnose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

// exceptionKeywords are the exception names searched for in the lines
// following a traceback-style file reference.
var exceptionKeywords = []string{
	"SyntaxError",
	"IndentationError",
	"NameError",
	"TypeError",
	"AttributeError",
	"ImportError",
	"FileNotFoundError",
	"ModuleNotFoundError",
}

// vendorMarkers identify dependency/library paths that must never be
// reported as fixable source locations.
var vendorMarkers = []string{
	"site-packages",
	".venv",
	"node_modules",
	"/vendor/",
	"AppData",
}

// Parser extracts failure records from combined test-runner output.
// The zero value is usable; CloneMarker is the clones directory (name
// or full path) and narrows absolute paths down to repo-relative ones
// (e.g. <clones>/<run-id>_<repo>/src/calc.py -> src/calc.py).
type Parser struct {
	CloneMarker string
}

// Parse scans output line by line and returns deduplicated failure
// records in order of first appearance. If the run failed (non-zero
// return code) but nothing could be extracted, exactly one generic
// failure pointing at the test unit is synthesized so the failure is
// never silently dropped.
func (p Parser) Parse(output string, returnCode int, testUnit string) []domain.FailureRecord {
	lines := strings.Split(output, "\n")

	var failures []domain.FailureRecord
	foundSpecific := false

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if file, lineNo, ok := parseTracebackRef(line); ok {
			if IsVendorPath(file) {
				continue
			}
			msg := scanExceptionMessage(lines, i)
			failures = append(failures, domain.FailureRecord{
				File:         p.relativize(file),
				Line:         lineNo,
				ErrorMessage: msg,
				BugType:      Classify(msg, output),
			})
			foundSpecific = true
			continue
		}

		if file, lineNo, msg, ok := parseInlineRef(line); ok {
			if IsVendorPath(file) {
				continue
			}
			failures = append(failures, domain.FailureRecord{
				File:         p.relativize(file),
				Line:         lineNo,
				ErrorMessage: msg,
				BugType:      Classify(msg, output),
			})
			foundSpecific = true
		}
	}

	// Test-file-only failure lines are suppressed once a specific source
	// location was attributed: the deepest source reference wins.
	if !foundSpecific {
		for _, raw := range lines {
			line := strings.TrimSpace(raw)
			if strings.Contains(line, "::ERROR") || (strings.Contains(line, "FAILED") && strings.Contains(line, "::")) {
				failures = append(failures, domain.FailureRecord{
					File:         testUnit,
					Line:         0,
					ErrorMessage: line,
					BugType:      Classify(line, output),
				})
			}
		}
	}

	failures = dedupe(failures)

	if returnCode != 0 && len(failures) == 0 {
		failures = append(failures, domain.FailureRecord{
			File:         testUnit,
			Line:         0,
			ErrorMessage: fmt.Sprintf("Test runner execution failed (return code %d).\n%s", returnCode, strings.TrimSpace(output)),
			BugType:      domain.BugLogic,
		})
	}

	return failures
}

// IsVendorPath reports whether a path points into a dependency, vendor or
// installed-library directory.
func IsVendorPath(path string) bool {
	p := strings.ReplaceAll(path, "\\", "/")
	for _, marker := range vendorMarkers {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return strings.HasPrefix(p, "vendor/")
}

// parseTracebackRef matches the traceback shape:
//
//	File "path/to/file.py", line 123
//
// optionally prefixed (e.g. "E     File ...").
func parseTracebackRef(line string) (file string, lineNo int, ok bool) {
	if !strings.Contains(line, `File "`) || !strings.Contains(line, `", line `) {
		return "", 0, false
	}

	start := strings.Index(line, `"`)
	if start < 0 {
		return "", 0, false
	}
	end := strings.Index(line[start+1:], `"`)
	if end < 0 {
		return "", 0, false
	}
	file = line[start+1 : start+1+end]

	rest := line[start+1+end:]
	const marker = `", line `
	idx := strings.Index(rest, marker)
	if idx < 0 {
		return "", 0, false
	}
	numPart := strings.TrimSpace(rest[idx+len(marker):])
	if fields := strings.Fields(numPart); len(fields) > 0 {
		numPart = strings.TrimRight(fields[0], ",")
	}
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return "", 0, false
	}
	return file, n, true
}

// scanExceptionMessage inspects the next 1-3 lines after a traceback
// reference for a known exception name.
func scanExceptionMessage(lines []string, i int) string {
	for j := 1; j <= 3 && i+j < len(lines); j++ {
		next := strings.TrimSpace(lines[i+j])
		for _, kw := range exceptionKeywords {
			if strings.Contains(next, kw) {
				return next
			}
		}
	}
	return "Error detected in this file (check traceback)"
}

// parseInlineRef matches the inline shape:
//
//	path/to/file.py:123: some error message
func parseInlineRef(line string) (file string, lineNo int, msg string, ok bool) {
	parts := strings.SplitN(line, ": ", 2)
	if len(parts) != 2 {
		return "", 0, "", false
	}

	fileLine := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "E"))
	msg = strings.TrimSpace(parts[1])

	colon := strings.LastIndex(fileLine, ":")
	if colon <= 0 {
		return "", 0, "", false
	}
	n, err := strconv.Atoi(fileLine[colon+1:])
	if err != nil {
		return "", 0, "", false
	}
	file = fileLine[:colon]

	// Require a recognizable source path, not an arbitrary "key: value" line.
	if !strings.Contains(file, ".") {
		return "", 0, "", false
	}
	return file, n, msg, true
}

// relativize strips everything up to and including the clone directory
// and the per-run directory that follows it. CloneMarker may be the
// full clones-dir path; only its final segment is matched.
func (p Parser) relativize(path string) string {
	marker := strings.TrimSuffix(strings.ReplaceAll(p.CloneMarker, "\\", "/"), "/")
	if idx := strings.LastIndex(marker, "/"); idx >= 0 {
		marker = marker[idx+1:]
	}
	if marker == "" {
		return path
	}
	parts := strings.Split(strings.ReplaceAll(path, "\\", "/"), "/")
	for i, part := range parts {
		if part == marker && i+2 < len(parts) {
			return strings.Join(parts[i+2:], "/")
		}
	}
	return path
}

func dedupe(failures []domain.FailureRecord) []domain.FailureRecord {
	seen := make(map[string]bool)
	var unique []domain.FailureRecord
	for _, f := range failures {
		key := f.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, f)
	}
	return unique
}
