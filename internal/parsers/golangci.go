package parsers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/flanksource/lintsvc/internal/models"
)

// golangciOutput mirrors `golangci-lint run --out-format=json`.
type golangciOutput struct {
	Issues []golangciIssue `json:"Issues"`
}

type golangciIssue struct {
	FromLinter string `json:"FromLinter"`
	Text       string `json:"Text"`
	Pos        struct {
		Filename string `json:"Filename"`
		Line     int    `json:"Line"`
		Column   int    `json:"Column"`
	} `json:"Pos"`
}

// ParseGolangci decodes golangci-lint's JSON report. The "typecheck"
// pseudo-linter embeds its own "./file.go:line:col: message" location in
// Text rather than populating Pos, so that case is unpacked separately.
func ParseGolangci(stdout, _ []byte, _ int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return nil, nil
	}

	var out golangciOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return []models.Issue{malformedIssue("golangci-lint", err.Error())}, nil
	}

	issues := make([]models.Issue, 0, len(out.Issues))
	for _, gi := range out.Issues {
		if gi.FromLinter == "typecheck" {
			if issue, ok := parseTypecheckText(gi.Text); ok {
				issues = append(issues, issue)
				continue
			}
		}
		issues = append(issues, models.Issue{
			File:     gi.Pos.Filename,
			Line:     gi.Pos.Line,
			Column:   gi.Pos.Column,
			Rule:     gi.FromLinter,
			Severity: models.SeverityError,
			Message:  gi.Text,
			Source:   "golangci-lint",
		})
	}
	return issues, out
}

// parseTypecheckText extracts "./file.go:line:col: message" out of the
// typecheck pseudo-linter's freeform Text field.
func parseTypecheckText(text string) (models.Issue, bool) {
	if !strings.HasPrefix(text, "./") {
		return models.Issue{}, false
	}
	parts := strings.SplitN(text, ":", 4)
	if len(parts) != 4 {
		return models.Issue{}, false
	}
	line, err1 := strconv.Atoi(parts[1])
	col, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return models.Issue{}, false
	}
	return models.Issue{
		File:     strings.TrimPrefix(parts[0], "./"),
		Line:     line,
		Column:   col,
		Rule:     "typecheck",
		Severity: models.SeverityError,
		Message:  strings.TrimSpace(parts[3]),
		Source:   "golangci-lint",
	}, true
}
