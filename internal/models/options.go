package models

import (
	"sort"

	"github.com/samber/lo"
)

// LogLevel is the recognized set of log levels a caller may request for a
// linter invocation. It takes part in the options hash; the runner does not
// pass it to the child process.
type LogLevel string

const (
	LogDebug LogLevel = "DEBUG"
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// Options is the raw, caller-supplied options object. Every field is
// optional; Normalize fills in defaults before the value is hashed
// or consumed downstream.
type Options struct {
	ValidateAll     bool              `json:"validate_all,omitempty"`
	ExcludePatterns []string          `json:"exclude_patterns,omitempty"`
	IncludePatterns []string          `json:"include_patterns,omitempty"`
	LogLevel        LogLevel          `json:"log_level,omitempty"`
	TimeoutMs       int               `json:"timeout,omitempty"`
	Fix             bool              `json:"fix,omitempty"`
	ConfigFile      string            `json:"config_file,omitempty"`
	Rules           map[string]string `json:"rules,omitempty"`
}

// DefaultOptions returns the fixed set of defaults filled in for any key
// missing from a caller-supplied Options value, per the data model's
// "Normalized options" definition.
func DefaultOptions() Options {
	return Options{
		ValidateAll:     false,
		ExcludePatterns: []string{},
		IncludePatterns: []string{},
		LogLevel:        LogWarn,
		TimeoutMs:       30000,
		Fix:             false,
		ConfigFile:      "",
		Rules:           map[string]string{},
	}
}

// Normalize fills in defaults, sorts every array-valued key, and returns a
// value whose JSON encoding is stable regardless of input key or array
// order. Two Options differing only in key/array order normalize to equal
// values (and therefore hash identically, see internal/cache).
func (o Options) Normalize() Options {
	n := DefaultOptions()

	n.ValidateAll = o.ValidateAll
	n.Fix = o.Fix
	n.ConfigFile = o.ConfigFile

	if o.LogLevel != "" {
		n.LogLevel = o.LogLevel
	}
	if o.TimeoutMs > 0 {
		n.TimeoutMs = o.TimeoutMs
	}

	n.ExcludePatterns = sortedCopy(o.ExcludePatterns)
	n.IncludePatterns = sortedCopy(o.IncludePatterns)

	if len(o.Rules) > 0 {
		n.Rules = make(map[string]string, len(o.Rules))
		for k, v := range o.Rules {
			n.Rules[k] = v
		}
	}

	return n
}

func sortedCopy(in []string) []string {
	out := lo.Uniq(in)
	sort.Strings(out)
	if out == nil {
		return []string{}
	}
	return out
}
