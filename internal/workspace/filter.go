package workspace

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/lintsvc/internal/models"
)

// FilterFiles narrows files down to the ones a linter invocation should
// actually consider, applying options.include_patterns /
// options.exclude_patterns as doublestar globs against each
// workspace-relative path. An unmatchable pattern is logged and skipped
// rather than failing the whole request, matching the teacher's
// PathMatcher behavior for malformed glob patterns.
func FilterFiles(files []string, opts models.Options) []string {
	if len(opts.IncludePatterns) == 0 && len(opts.ExcludePatterns) == 0 {
		return files
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		if len(opts.IncludePatterns) > 0 && !matchesAny(opts.IncludePatterns, f) {
			continue
		}
		if matchesAny(opts.ExcludePatterns, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// RemoveExcluded deletes every file present in all but absent from keep
// from disk under wsPath. The runner invokes the linter against the whole
// workspace directory rather than an explicit file list, so an
// include/exclude pattern only actually takes effect on the tool's output
// if the excluded files are gone from disk before the tool ever runs.
func RemoveExcluded(wsPath string, all, keep []string) error {
	if len(all) == len(keep) {
		return nil
	}
	kept := make(map[string]struct{}, len(keep))
	for _, f := range keep {
		kept[f] = struct{}{}
	}
	for _, f := range all {
		if _, ok := kept[f]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(wsPath, f)); err != nil && !os.IsNotExist(err) {
			return models.NewAppError(models.ErrWorkspace, "failed to remove excluded file "+f, err)
		}
	}
	return nil
}

func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, path)
		if err != nil {
			logger.Warnf("ignoring malformed glob pattern %q: %v", p, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
