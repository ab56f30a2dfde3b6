// Package registry is the static table mapping each supported linter to
// its executable, base argument vector, extensions, timeout, and parser,
// per spec.md §4.2. It is the single source of truth for which linters
// exist — looking up an unknown name is the caller's responsibility to
// reject with LinterNotFound.
package registry

import (
	"sort"

	"github.com/flanksource/lintsvc/internal/models"
)

func extSet(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[e] = struct{}{}
	}
	return m
}

func formatSet(formats ...models.Format) map[models.Format]struct{} {
	m := make(map[models.Format]struct{}, len(formats))
	for _, f := range formats {
		m[f] = struct{}{}
	}
	return m
}

func exitCodes(codes ...int) map[int]struct{} {
	m := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

// Registry is an immutable, lookup-by-name table of Descriptors.
type Registry struct {
	linters map[string]models.Descriptor
}

// New builds the default registry covering the linters this deployment
// ships: eslint, golangci-lint, ruff, pyright, markdownlint, and vale —
// the same set the teacher repository wires per-language.
func New() *Registry {
	r := &Registry{linters: make(map[string]models.Descriptor)}

	r.register(models.Descriptor{
		Name:                "eslint",
		Executable:          "eslint",
		BaseArgs:            []string{"--format=json"},
		SupportedExtensions: extSet(".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"),
		SupportedFormats:    formatSet(models.FormatJSON, models.FormatText),
		TimeoutMs:           30000,
		ParserID:            "eslint",
		AcceptsFix:          true,
		AcceptsConfigFile:   true,
		// eslint exits 1 when it finds lint problems and 2 on a fatal
		// configuration/internal error; only the latter is a failed run.
		FailureExitCodes: exitCodes(2),
	})

	r.register(models.Descriptor{
		Name:                "golangci-lint",
		Executable:          "golangci-lint",
		BaseArgs:            []string{"run", "--out-format=json"},
		SupportedExtensions: extSet(".go"),
		SupportedFormats:    formatSet(models.FormatJSON, models.FormatText),
		TimeoutMs:           60000,
		ParserID:            "golangci",
		AcceptsFix:          true,
		AcceptsConfigFile:   true,
		// golangci-lint exits 1 whether or not it found issues; only a
		// malformed invocation or crash exits with something else.
		FailureExitCodes: exitCodes(3, 4),
	})

	r.register(models.Descriptor{
		Name:                "ruff",
		Executable:          "ruff",
		BaseArgs:            []string{"check", "--output-format=json"},
		SupportedExtensions: extSet(".py"),
		SupportedFormats:    formatSet(models.FormatJSON, models.FormatText),
		TimeoutMs:           20000,
		ParserID:            "ruff",
		AcceptsFix:          true,
		AcceptsConfigFile:   true,
		FailureExitCodes:    exitCodes(2),
	})

	r.register(models.Descriptor{
		Name:                "pyright",
		Executable:          "pyright",
		BaseArgs:            []string{"--outputjson"},
		SupportedExtensions: extSet(".py", ".ts", ".tsx", ".js", ".jsx"),
		SupportedFormats:    formatSet(models.FormatJSON, models.FormatText),
		TimeoutMs:           60000,
		ParserID:            "pyright",
		AcceptsFix:          false,
		AcceptsConfigFile:   true,
		FailureExitCodes:    exitCodes(),
	})

	r.register(models.Descriptor{
		Name:                "markdownlint",
		Executable:          "markdownlint",
		BaseArgs:            []string{"--json"},
		SupportedExtensions: extSet(".md", ".markdown", ".mdx", ".mdown", ".mkd", ".mkdn"),
		SupportedFormats:    formatSet(models.FormatJSON, models.FormatText),
		TimeoutMs:           15000,
		ParserID:            "markdownlint",
		AcceptsFix:          true,
		AcceptsConfigFile:   true,
		FailureExitCodes:    exitCodes(2),
	})

	r.register(models.Descriptor{
		Name:                "vale",
		Executable:          "vale",
		BaseArgs:            []string{"--output=JSON"},
		SupportedExtensions: extSet(".md", ".markdown", ".txt", ".rst"),
		SupportedFormats:    formatSet(models.FormatJSON, models.FormatText),
		TimeoutMs:           15000,
		ParserID:            "vale",
		AcceptsFix:          false,
		AcceptsConfigFile:   true,
		FailureExitCodes:    exitCodes(),
	})

	return r
}

// NewCustom builds a Registry from an explicit descriptor set, bypassing
// the default six-linter table. Tests use it to swap in stub descriptors;
// the server itself always uses New.
func NewCustom(descriptors ...models.Descriptor) *Registry {
	r := &Registry{linters: make(map[string]models.Descriptor)}
	for _, d := range descriptors {
		r.register(d)
	}
	return r
}

func (r *Registry) register(d models.Descriptor) {
	r.linters[d.Name] = d
}

// Get looks up a linter by name. The bool result is false when the name
// isn't registered — callers translate that into LinterNotFound.
func (r *Registry) Get(name string) (models.Descriptor, bool) {
	d, ok := r.linters[name]
	return d, ok
}

// Names returns every registered linter name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.linters))
	for name := range r.linters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
