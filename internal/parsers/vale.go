package parsers

import (
	"encoding/json"

	"github.com/flanksource/lintsvc/internal/models"
)

// valeErrorResponse is what vale prints instead of a results map when it
// can't run at all (e.g. missing .vale.ini) — not a parse failure, just
// an empty result.
type valeErrorResponse struct {
	Code string `json:"Code"`
	Text string `json:"Text"`
}

type valeMessage struct {
	Line     int    `json:"Line"`
	Column   int    `json:"Column"`
	Severity string `json:"Severity"`
	Message  string `json:"Message"`
	Check    string `json:"Check"`
}

// ParseVale decodes `vale --output=JSON`'s filename-keyed results map.
func ParseVale(stdout, _ []byte, _ int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return nil, nil
	}

	var errResp valeErrorResponse
	if err := json.Unmarshal(stdout, &errResp); err == nil && errResp.Code != "" {
		return nil, errResp
	}

	var results map[string][]valeMessage
	if err := json.Unmarshal(stdout, &results); err != nil {
		return []models.Issue{malformedIssue("vale", err.Error())}, nil
	}

	var issues []models.Issue
	for filename, messages := range results {
		for _, m := range messages {
			severity := models.SeverityInfo
			switch m.Severity {
			case "error":
				severity = models.SeverityError
			case "warning":
				severity = models.SeverityWarning
			}
			rule := m.Check
			if rule == "" {
				rule = m.Severity
			}
			issues = append(issues, models.Issue{
				File:     filename,
				Line:     m.Line,
				Column:   m.Column,
				Rule:     rule,
				Severity: severity,
				Message:  m.Message,
				Source:   "vale",
			})
		}
	}
	return issues, results
}
