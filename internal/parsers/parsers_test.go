package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flanksource/lintsvc/internal/models"
)

func TestParseESLintValidOutput(t *testing.T) {
	raw := []byte(`[{"filePath":"code.js","messages":[{"ruleId":"no-console","severity":2,"message":"Unexpected console","line":1,"column":1}]}]`)
	issues, _ := ParseESLint(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, models.SeverityError, issues[0].Severity)
	assert.Equal(t, "no-console", issues[0].Rule)
}

func TestParseESLintEmptyOutput(t *testing.T) {
	issues, parsed := ParseESLint(nil, nil, 0)
	assert.Nil(t, issues)
	assert.Nil(t, parsed)
}

func TestParseESLintMalformedJSONDegradesGracefully(t *testing.T) {
	issues, _ := ParseESLint([]byte("not json"), nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, "parse-error", issues[0].Rule)
}

func TestParseGolangciTypecheckText(t *testing.T) {
	raw := []byte(`{"Issues":[{"FromLinter":"typecheck","Text":"./main.go:10:5: undefined: foo"}]}`)
	issues, _ := ParseGolangci(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, "main.go", issues[0].File)
	assert.Equal(t, 10, issues[0].Line)
	assert.Equal(t, 5, issues[0].Column)
}

func TestParseGolangciStructuredPos(t *testing.T) {
	raw := []byte(`{"Issues":[{"FromLinter":"govet","Text":"shadow","Pos":{"Filename":"a.go","Line":3,"Column":2}}]}`)
	issues, _ := ParseGolangci(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, "a.go", issues[0].File)
}

func TestParseMarkdownlintCli1Shape(t *testing.T) {
	raw := []byte(`{"README.md":[{"lineNumber":3,"ruleNames":["MD013","line-length"],"ruleDescription":"Line too long"}]}`)
	issues, _ := ParseMarkdownlint(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, "README.md", issues[0].File)
	assert.Equal(t, "MD013/line-length", issues[0].Rule)
}

func TestParseMarkdownlintCli2Shape(t *testing.T) {
	raw := []byte(`[{"fileName":"README.md","lineNumber":3,"ruleNames":["MD013"],"ruleDescription":"Line too long"}]`)
	issues, _ := ParseMarkdownlint(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, "README.md", issues[0].File)
}

func TestParseValeErrorResponseYieldsNoIssues(t *testing.T) {
	raw := []byte(`{"Code":"EOPEN","Text":".vale.ini not found"}`)
	issues, _ := ParseVale(raw, nil, 1)
	assert.Nil(t, issues)
}

func TestParseValeMessages(t *testing.T) {
	raw := []byte(`{"doc.md":[{"Line":2,"Column":4,"Severity":"warning","Message":"wordy","Check":"write-good.TooWordy"}]}`)
	issues, _ := ParseVale(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, models.SeverityWarning, issues[0].Severity)
}

func TestParseRuffIssues(t *testing.T) {
	raw := []byte(`[{"code":"F401","message":"unused import","location":{"row":1,"column":1},"filename":"a.py"}]`)
	issues, _ := ParseRuff(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, "F401", issues[0].Rule)
}

func TestParsePyrightZeroBasedToOneBased(t *testing.T) {
	raw := []byte(`{"generalDiagnostics":[{"file":"a.py","severity":"error","message":"bad","range":{"start":{"line":0,"character":0}}}]}`)
	issues, _ := ParsePyright(raw, nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Line)
	assert.Equal(t, 1, issues[0].Column)
}

func TestParseTextCompilerStyleLine(t *testing.T) {
	issues, _ := ParseText([]byte("main.go:10:4: syntax error"), nil, 1)
	assert.Len(t, issues, 1)
	assert.Equal(t, "main.go", issues[0].File)
	assert.Equal(t, 10, issues[0].Line)
	assert.Equal(t, 4, issues[0].Column)
}

func TestParseTextFallsBackToWholeLine(t *testing.T) {
	issues, _ := ParseText([]byte("some unstructured output"), nil, 0)
	assert.Len(t, issues, 1)
	assert.Equal(t, "", issues[0].File)
}

func TestGetFallsBackToTextParser(t *testing.T) {
	p := Get("unknown-parser-id")
	issues, _ := p([]byte("x"), nil, 0)
	assert.Len(t, issues, 1)
}
