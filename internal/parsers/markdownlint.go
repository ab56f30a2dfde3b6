package parsers

import (
	"encoding/json"
	"strings"

	"github.com/flanksource/lintsvc/internal/models"
)

// markdownlintIssue mirrors one entry of markdownlint's cli1
// filename-keyed JSON map.
type markdownlintIssue struct {
	LineNumber      int      `json:"lineNumber"`
	RuleNames       []string `json:"ruleNames"`
	RuleDescription string   `json:"ruleDescription"`
	ErrorDetail     string   `json:"errorDetail,omitempty"`
	ErrorRange      []int    `json:"errorRange,omitempty"`
}

// markdownlintCli2Result mirrors one entry of markdownlint-cli2's flat
// JSON array, the modern replacement output shape.
type markdownlintCli2Result struct {
	FileName        string   `json:"fileName"`
	LineNumber      int      `json:"lineNumber"`
	RuleNames       []string `json:"ruleNames"`
	RuleDescription string   `json:"ruleDescription"`
	ErrorDetail     string   `json:"errorDetail,omitempty"`
	ErrorRange      []int    `json:"errorRange,omitempty"`
}

// ParseMarkdownlint tries the cli1 filename-keyed map shape first, then
// falls back to the cli2 flat-array shape, then to a synthetic issue.
func ParseMarkdownlint(stdout, _ []byte, _ int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return nil, nil
	}

	var byFile map[string][]markdownlintIssue
	if err := json.Unmarshal(stdout, &byFile); err == nil {
		var issues []models.Issue
		for filename, entries := range byFile {
			for _, e := range entries {
				issues = append(issues, markdownlintToIssue(filename, e))
			}
		}
		return issues, byFile
	}

	var cli2 []markdownlintCli2Result
	if err := json.Unmarshal(stdout, &cli2); err == nil {
		issues := make([]models.Issue, 0, len(cli2))
		for _, r := range cli2 {
			issues = append(issues, markdownlintToIssue(r.FileName, markdownlintIssue{
				LineNumber:      r.LineNumber,
				RuleNames:       r.RuleNames,
				RuleDescription: r.RuleDescription,
				ErrorDetail:     r.ErrorDetail,
				ErrorRange:      r.ErrorRange,
			}))
		}
		return issues, cli2
	}

	return []models.Issue{malformedIssue("markdownlint", "unrecognized JSON shape")}, nil
}

func markdownlintToIssue(filename string, e markdownlintIssue) models.Issue {
	rule := "unknown"
	if len(e.RuleNames) > 0 {
		rule = strings.Join(e.RuleNames, "/")
	}
	message := e.RuleDescription
	if e.ErrorDetail != "" {
		message = message + ": " + e.ErrorDetail
	}
	column := 0
	if len(e.ErrorRange) > 0 {
		column = e.ErrorRange[0]
	}
	return models.Issue{
		File:     filename,
		Line:     e.LineNumber,
		Column:   column,
		Rule:     rule,
		Severity: models.SeverityWarning,
		Message:  message,
		Source:   "markdownlint",
	}
}
