package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/flanksource/lintsvc/internal/models"
	"github.com/flanksource/lintsvc/internal/registry"
	"github.com/flanksource/lintsvc/internal/runner"
	"github.com/flanksource/lintsvc/internal/workspace"
)

var (
	lintLinterFlag string
)

var lintCmd = &cobra.Command{
	Use:   "lint <path>",
	Short: "Run a registered linter against a local directory without starting the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runLint,
}

func init() {
	lintCmd.Flags().StringVar(&lintLinterFlag, "linter", "", "linter to run (required)")
	_ = lintCmd.MarkFlagRequired("linter")
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	path := args[0]

	workspaces, err := workspace.NewManager(os.TempDir(), workspace.DefaultQuotas(), 0)
	if err != nil {
		return err
	}
	files, err := workspaces.ListFiles(path)
	if err != nil {
		return fmt.Errorf("failed to enumerate %s: %w", path, err)
	}

	r := runner.New(registry.New())
	result, err := r.Run(context.Background(), models.ExecutionRequest{
		Linter:        lintLinterFlag,
		Format:        models.FormatJSON,
		WorkspacePath: path,
	}, files)
	if err != nil {
		return err
	}

	printIssues(result.Issues)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// printIssues renders issues grouped by file, styled the way the teacher's
// output.OutputManager formats a violation table: a bold file header
// followed by one line per finding with a colored severity and a grey
// rule name.
func printIssues(issues []models.Issue) {
	if len(issues) == 0 {
		fmt.Println("no issues found")
		return
	}

	fileStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	ruleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("178"))

	byFile := make(map[string][]models.Issue)
	for _, issue := range issues {
		byFile[issue.File] = append(byFile[issue.File], issue)
	}

	var files []string
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		fmt.Println(fileStyle.Render(file))
		for _, issue := range byFile[file] {
			severityStyle := warnStyle
			if issue.Severity == models.SeverityError {
				severityStyle = errorStyle
			}
			rule := ruleStyle.Render(issue.Rule)
			fmt.Printf("  %d:%d %s %s %s\n",
				issue.Line, issue.Column, severityStyle.Render(strings.ToUpper(string(issue.Severity))), issue.Message, rule)
		}
	}
}
