package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flanksource/lintsvc/internal/models"
)

func TestFilterFilesNoPatternsReturnsAllFiles(t *testing.T) {
	files := []string{"a.go", "b.go"}
	out := FilterFiles(files, models.Options{})
	assert.Equal(t, files, out)
}

func TestFilterFilesExcludePatternDrops(t *testing.T) {
	files := []string{"a.go", "vendor/b.go", "c.go"}
	out := FilterFiles(files, models.Options{ExcludePatterns: []string{"vendor/**"}})
	assert.Equal(t, []string{"a.go", "c.go"}, out)
}

func TestFilterFilesIncludePatternRestricts(t *testing.T) {
	files := []string{"a.go", "b.py", "c.go"}
	out := FilterFiles(files, models.Options{IncludePatterns: []string{"*.go"}})
	assert.Equal(t, []string{"a.go", "c.go"}, out)
}

func TestFilterFilesMalformedPatternIsIgnoredNotFatal(t *testing.T) {
	files := []string{"a.go"}
	out := FilterFiles(files, models.Options{ExcludePatterns: []string{"["}})
	assert.Equal(t, files, out)
}
