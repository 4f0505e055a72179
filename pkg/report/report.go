/*
Copyright 2025 Xenorf

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package report renders an audit report as colored CLI output, JSON,
// Markdown, or SARIF.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/Xenorf/gh-workflow-auditor/pkg/audit"
	"github.com/Xenorf/gh-workflow-auditor/pkg/constants"
	"github.com/Xenorf/gh-workflow-auditor/pkg/rules"
)

const summaryDurationUnit = time.Millisecond

// Generator renders one audit report.
type Generator struct {
	Report          *audit.Report
	Format          string
	FilePath        string // empty writes to stdout
	MinSeverity     rules.Severity
	ShowRemediation bool
}

// NewGenerator builds a generator with INFO as the severity floor.
func NewGenerator(report *audit.Report, format, filePath string) *Generator {
	return &Generator{
		Report:          report,
		Format:          format,
		FilePath:        filePath,
		MinSeverity:     rules.Info,
		ShowRemediation: true,
	}
}

// Generate writes the report in the configured format.
func (g *Generator) Generate() error {
	out, closer, err := g.output()
	if err != nil {
		return err
	}
	defer closer()

	switch strings.ToLower(g.Format) {
	case constants.OutputFormatCLI:
		return g.writeCLI(out)
	case constants.OutputFormatJSON:
		return g.writeJSON(out)
	case constants.OutputFormatMarkdown:
		return g.writeMarkdown(out)
	case constants.OutputFormatSARIF:
		return g.writeSARIF(out)
	default:
		return fmt.Errorf("unsupported report format: %s", g.Format)
	}
}

func (g *Generator) output() (io.Writer, func(), error) {
	if g.FilePath == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(g.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create report file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

// filteredFindings applies the severity floor, keeping order.
func (g *Generator) filteredFindings() []rules.Finding {
	floor := rules.SeverityLevels[g.MinSeverity]
	var kept []rules.Finding
	for _, finding := range g.Report.Findings {
		if rules.SeverityLevels[finding.Severity] >= floor {
			kept = append(kept, finding)
		}
	}
	return kept
}

func (g *Generator) writeCLI(out io.Writer) error {
	titleStyle := color.New(color.FgHiCyan, color.Bold)
	repoStyle := color.New(color.FgCyan, color.Bold)
	dimStyle := color.New(color.FgHiBlack)

	fmt.Fprintln(out)
	titleStyle.Fprintf(out, "%s — scan of %s %q\n",
		strings.ToUpper(constants.AppName), g.Report.Entity, g.Report.Identifier)
	if g.Report.Partial {
		color.New(color.FgHiRed, color.Bold).Fprintln(out, "PARTIAL RESULTS: the scan did not finish")
	}
	fmt.Fprintln(out)

	findings := g.filteredFindings()
	byRepo := groupByRepository(findings)

	for _, repo := range repositoryOrder(findings) {
		repoStyle.Fprintf(out, "%s\n", repo)
		for _, finding := range byRepo[repo] {
			severityStyle(finding.Severity).Fprintf(out, "  [%s] ", finding.Severity)
			fmt.Fprintf(out, "%s: %s\n", finding.RuleID, finding.RuleName)
			dimStyle.Fprintf(out, "    %s", finding.FilePath)
			if finding.JobID != "" {
				dimStyle.Fprintf(out, " job=%s", finding.JobID)
			}
			if finding.StepIndex >= 0 {
				dimStyle.Fprintf(out, " step=%d", finding.StepIndex)
			}
			if finding.Line > 0 {
				dimStyle.Fprintf(out, " line=%d", finding.Line)
			}
			fmt.Fprintln(out)
			if finding.Evidence != "" {
				fmt.Fprintf(out, "    evidence: %s\n", finding.Evidence)
			}
			if g.ShowRemediation && finding.Remediation != "" {
				fmt.Fprintf(out, "    fix: %s\n", finding.Remediation)
			}
		}
		fmt.Fprintln(out)
	}

	if len(g.Report.Skipped) > 0 {
		repoStyle.Fprintln(out, "Skipped repositories")
		for _, skipped := range g.Report.Skipped {
			fmt.Fprintf(out, "  %s: %s\n", skipped.Repository, skipped.Reason)
		}
		fmt.Fprintln(out)
	}
	if len(g.Report.ParseFailures) > 0 {
		repoStyle.Fprintln(out, "Unparseable workflows")
		for _, failure := range g.Report.ParseFailures {
			fmt.Fprintf(out, "  %s %s: %s\n", failure.Repository, failure.Path, failure.Error)
		}
		fmt.Fprintln(out)
	}

	g.writeSummaryTable(out, findings)
	return nil
}

func (g *Generator) writeSummaryTable(out io.Writer, findings []rules.Finding) {
	counts := make(map[rules.Severity]int)
	for _, finding := range findings {
		counts[finding.Severity]++
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Severity", "Count"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, severity := range []rules.Severity{rules.Critical, rules.High, rules.Medium, rules.Low, rules.Info} {
		table.Append([]string{string(severity), fmt.Sprintf("%d", counts[severity])})
	}
	table.Append([]string{"TOTAL", fmt.Sprintf("%d", len(findings))})
	table.Render()

	summary := g.Report.Summary
	fmt.Fprintf(out, "repositories scanned: %d, skipped: %d, parse errors: %d, duration: %s\n",
		summary.RepositoriesScanned, summary.SkippedCount, summary.ErrorCount,
		summary.Duration.Round(summaryDurationUnit))
}

func (g *Generator) writeJSON(out io.Writer) error {
	view := *g.Report
	view.Findings = g.filteredFindings()
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(view)
}

func (g *Generator) writeMarkdown(out io.Writer) error {
	fmt.Fprintf(out, "# Workflow audit: %s %q\n\n", g.Report.Entity, g.Report.Identifier)
	if g.Report.Partial {
		fmt.Fprintln(out, "> **Partial results** — the scan did not finish.")
		fmt.Fprintln(out)
	}

	summary := g.Report.Summary
	fmt.Fprintf(out, "Scanned %d repositories (%d skipped, %d parse errors) in %s.\n\n",
		summary.RepositoriesScanned, summary.SkippedCount, summary.ErrorCount,
		summary.Duration.Round(summaryDurationUnit))

	findings := g.filteredFindings()
	if len(findings) == 0 {
		fmt.Fprintln(out, "No findings.")
	} else {
		fmt.Fprintln(out, "| Severity | Rule | Repository | File | Location | Evidence |")
		fmt.Fprintln(out, "|---|---|---|---|---|---|")
		for _, finding := range findings {
			location := finding.JobID
			if finding.StepIndex >= 0 {
				location = fmt.Sprintf("%s/step %d", finding.JobID, finding.StepIndex)
			}
			fmt.Fprintf(out, "| %s | %s | %s | %s | %s | %s |\n",
				finding.Severity, finding.RuleID, finding.Repository,
				finding.FilePath, location, markdownEscape(finding.Evidence))
		}
	}
	fmt.Fprintln(out)

	if len(g.Report.Skipped) > 0 {
		fmt.Fprintln(out, "## Skipped repositories")
		fmt.Fprintln(out)
		for _, skipped := range g.Report.Skipped {
			fmt.Fprintf(out, "- `%s`: %s\n", skipped.Repository, skipped.Reason)
		}
		fmt.Fprintln(out)
	}
	if len(g.Report.ParseFailures) > 0 {
		fmt.Fprintln(out, "## Unparseable workflows")
		fmt.Fprintln(out)
		for _, failure := range g.Report.ParseFailures {
			fmt.Fprintf(out, "- `%s` `%s`: %s\n", failure.Repository, failure.Path, failure.Error)
		}
	}
	return nil
}

func markdownEscape(text string) string {
	text = strings.ReplaceAll(text, "|", "\\|")
	return strings.ReplaceAll(text, "\n", " ")
}

func severityStyle(severity rules.Severity) *color.Color {
	switch severity {
	case rules.Critical:
		return color.New(color.FgHiRed, color.Bold)
	case rules.High:
		return color.New(color.FgHiYellow, color.Bold)
	case rules.Medium:
		return color.New(color.FgYellow)
	case rules.Low:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgHiBlue)
	}
}

func groupByRepository(findings []rules.Finding) map[string][]rules.Finding {
	grouped := make(map[string][]rules.Finding)
	for _, finding := range findings {
		grouped[finding.Repository] = append(grouped[finding.Repository], finding)
	}
	return grouped
}

// repositoryOrder returns repositories in first-appearance order, which is
// already sorted by the orchestrator.
func repositoryOrder(findings []rules.Finding) []string {
	var order []string
	seen := make(map[string]bool)
	for _, finding := range findings {
		if !seen[finding.Repository] {
			seen[finding.Repository] = true
			order = append(order, finding.Repository)
		}
	}
	return order
}
