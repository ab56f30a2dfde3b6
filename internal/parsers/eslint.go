package parsers

import (
	"encoding/json"

	"github.com/flanksource/lintsvc/internal/models"
)

// eslintResult mirrors one file entry of `eslint --format=json`.
type eslintResult struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleId   string `json:"ruleId"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// ParseESLint decodes `eslint --format=json`'s array-of-files shape.
func ParseESLint(stdout, _ []byte, _ int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return nil, nil
	}

	var results []eslintResult
	if err := json.Unmarshal(stdout, &results); err != nil {
		return []models.Issue{malformedIssue("eslint", err.Error())}, nil
	}

	var issues []models.Issue
	for _, result := range results {
		for _, m := range result.Messages {
			rule := m.RuleId
			severity := models.SeverityInfo
			switch m.Severity {
			case 1:
				severity = models.SeverityWarning
			case 2:
				severity = models.SeverityError
			}
			issues = append(issues, models.Issue{
				File:     result.FilePath,
				Line:     m.Line,
				Column:   m.Column,
				Rule:     rule,
				Severity: severity,
				Message:  m.Message,
				Source:   "eslint",
			})
		}
	}
	return issues, results
}
