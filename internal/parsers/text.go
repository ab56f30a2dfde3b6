package parsers

import (
	"strconv"
	"strings"

	"github.com/flanksource/lintsvc/internal/models"
)

// ParseText handles linters with no structured JSON mode, or a JSON mode
// that produced nothing usable. It recognizes the common
// "file:line:col: message" compiler-style line and otherwise emits the
// whole stream as a single unlocated issue so nothing is silently
// dropped.
func ParseText(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	combined := string(stdout)
	if combined == "" {
		combined = string(stderr)
	}
	combined = strings.TrimSpace(combined)
	if combined == "" {
		return nil, nil
	}

	var issues []models.Issue
	severity := severityFromCode(exitCode)
	for _, line := range strings.Split(combined, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if issue, ok := parseCompilerLine(line, severity); ok {
			issues = append(issues, issue)
			continue
		}
		issues = append(issues, models.Issue{
			Severity: severity,
			Message:  line,
			Source:   "text",
		})
	}
	return issues, combined
}

// parseCompilerLine recognizes "path/to/file:line:col: message" and
// "path/to/file:line: message".
func parseCompilerLine(line string, severity models.Severity) (models.Issue, bool) {
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 3 {
		return models.Issue{}, false
	}
	lineNo, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.Issue{}, false
	}

	if len(parts) == 4 {
		if col, err := strconv.Atoi(parts[2]); err == nil {
			return models.Issue{
				File:     parts[0],
				Line:     lineNo,
				Column:   col,
				Severity: severity,
				Message:  strings.TrimSpace(parts[3]),
				Source:   "text",
			}, true
		}
	}

	return models.Issue{
		File:     parts[0],
		Line:     lineNo,
		Severity: severity,
		Message:  strings.TrimSpace(strings.Join(parts[2:], ":")),
		Source:   "text",
	}, true
}
