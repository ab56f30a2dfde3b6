package parsers

import (
	"encoding/json"
	"fmt"

	"github.com/flanksource/lintsvc/internal/models"
)

// pyrightOutput mirrors `pyright --outputjson`.
type pyrightOutput struct {
	GeneralDiagnostics []pyrightDiagnostic `json:"generalDiagnostics"`
}

type pyrightDiagnostic struct {
	File     string `json:"file"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Rule     string `json:"rule,omitempty"`
	Range    struct {
		Start struct {
			Line      int `json:"line"`
			Character int `json:"character"`
		} `json:"start"`
	} `json:"range"`
}

// ParsePyright decodes pyright's JSON report. Pyright's line/character are
// 0-based; Issue.Line/Column are 1-based, matching every other parser.
func ParsePyright(stdout, _ []byte, _ int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return nil, nil
	}

	var out pyrightOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return []models.Issue{malformedIssue("pyright", err.Error())}, nil
	}

	issues := make([]models.Issue, 0, len(out.GeneralDiagnostics))
	for _, d := range out.GeneralDiagnostics {
		severity := models.SeverityInfo
		switch d.Severity {
		case "error":
			severity = models.SeverityError
		case "warning":
			severity = models.SeverityWarning
		}
		rule := d.Rule
		if rule == "" {
			rule = d.Severity
		} else {
			rule = fmt.Sprintf("%s:%s", d.Severity, d.Rule)
		}
		issues = append(issues, models.Issue{
			File:     d.File,
			Line:     d.Range.Start.Line + 1,
			Column:   d.Range.Start.Character + 1,
			Rule:     rule,
			Severity: severity,
			Message:  d.Message,
			Source:   "pyright",
		})
	}
	return issues, out
}
