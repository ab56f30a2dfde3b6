// Package parsers normalizes each linter's native output format into
// models.Issue, per the parser_id dispatch table described in spec.md
// §4.3. No parser may panic or return an error for malformed input:
// unparseable output degrades into a single synthetic Issue describing
// the parse failure, so one tool's quirky output never fails the whole
// request.
package parsers

import "github.com/flanksource/lintsvc/internal/models"

// Parser turns one linter invocation's raw stdout/stderr into normalized
// issues. parsedOutput carries the tool's decoded native structure (or
// nil) for callers that want to preserve it verbatim in parsed_output.
type Parser func(stdout, stderr []byte, exitCode int) (issues []models.Issue, parsedOutput any)

var table = map[string]Parser{
	"eslint":       ParseESLint,
	"golangci":     ParseGolangci,
	"ruff":         ParseRuff,
	"pyright":      ParsePyright,
	"markdownlint": ParseMarkdownlint,
	"vale":         ParseVale,
	"text":         ParseText,
}

// Get looks up the parser registered under id. Unknown ids fall back to
// the generic text parser rather than failing the request outright.
func Get(id string) Parser {
	if p, ok := table[id]; ok {
		return p
	}
	return ParseText
}

// malformedIssue is the synthetic finding emitted when a tool's output
// can't be decoded in its expected shape.
func malformedIssue(source, detail string) models.Issue {
	return models.Issue{
		File:     "",
		Line:     0,
		Column:   0,
		Rule:     "parse-error",
		Severity: models.SeverityWarning,
		Message:  "failed to parse " + source + " output: " + detail,
		Source:   source,
	}
}

func severityFromCode(code int) models.Severity {
	switch code {
	case 2:
		return models.SeverityError
	case 1:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
