package parsers

import (
	"encoding/json"

	"github.com/flanksource/lintsvc/internal/models"
)

// ruffIssue mirrors one entry of `ruff check --output-format=json`.
type ruffIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	Filename string `json:"filename"`
}

// ParseRuff decodes ruff's flat JSON array of issues.
func ParseRuff(stdout, _ []byte, _ int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return nil, nil
	}

	var issues []ruffIssue
	if err := json.Unmarshal(stdout, &issues); err != nil {
		return []models.Issue{malformedIssue("ruff", err.Error())}, nil
	}

	result := make([]models.Issue, 0, len(issues))
	for _, ri := range issues {
		result = append(result, models.Issue{
			File:     ri.Filename,
			Line:     ri.Location.Row,
			Column:   ri.Location.Column,
			Rule:     ri.Code,
			Severity: models.SeverityError,
			Message:  ri.Message,
			Source:   "ruff",
		})
	}
	return result, issues
}
