// Package audit drives the scan pipeline: resolver output through the
// parser and rule engine, aggregated into a single report. Per-repository
// and per-document failures are recorded against the item alone and never
// abort sibling work.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
	"github.com/Xenorf/gh-workflow-auditor/pkg/policies"
	"github.com/Xenorf/gh-workflow-auditor/pkg/resolver"
	"github.com/Xenorf/gh-workflow-auditor/pkg/rules"
)

// SkippedRepository records one repository the resolver could not scan.
type SkippedRepository struct {
	Repository string `json:"repository"`
	Reason     string `json:"reason"`
}

// ParseFailure records one workflow document the parser rejected. The
// document is excluded from rule evaluation but stays in the report.
type ParseFailure struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Error      string `json:"error"`
}

// Summary is the terminal roll-up of one audit run.
type Summary struct {
	RepositoriesScanned int                    `json:"repositoriesScanned"`
	FindingsBySeverity  map[rules.Severity]int `json:"findingsBySeverity"`
	SkippedCount        int                    `json:"skippedCount"`
	ErrorCount          int                    `json:"errorCount"`
	Duration            time.Duration          `json:"duration"`
}

// Report is the aggregated outcome of one audit run. Findings are sorted by
// repository then path; within one document they keep the engine's
// deterministic order.
type Report struct {
	Entity        string              `json:"entity"`
	Identifier    string              `json:"identifier"`
	Findings      []rules.Finding     `json:"findings"`
	Skipped       []SkippedRepository `json:"skipped"`
	ParseFailures []ParseFailure      `json:"parseFailures"`
	Summary       Summary             `json:"summary"`

	// Partial is set when the run was cancelled or aborted before the
	// traversal finished. The collected results are still valid.
	Partial bool `json:"partial"`
}

// Auditor wires the resolver and the rule engine together for one run.
type Auditor struct {
	resolver     *resolver.Resolver
	engine       *rules.Engine
	policies     *policies.Engine
	ownerChecker OwnerChecker
	log          hclog.Logger
}

// New builds an auditor. ownerChecker may be nil to disable the post-scan
// action-owner audit.
func New(res *resolver.Resolver, engine *rules.Engine, ownerChecker OwnerChecker, log hclog.Logger) *Auditor {
	return &Auditor{
		resolver:     res,
		engine:       engine,
		ownerChecker: ownerChecker,
		log:          log,
	}
}

// WithPolicies enables custom Rego policy evaluation per document.
func (a *Auditor) WithPolicies(engine *policies.Engine) *Auditor {
	a.policies = engine
	return a
}

// Run scans the entity and returns the aggregated report. A non-nil report
// is returned even when err is non-nil: cancellation and traversal failures
// preserve everything collected up to that point.
func (a *Auditor) Run(ctx context.Context, entity resolver.EntityType, identifier string) (*Report, error) {
	started := time.Now()
	report := &Report{
		Entity:     string(entity),
		Identifier: identifier,
	}
	owners := newOwnerInventory()

	results, fatal := a.resolver.Resolve(ctx, entity, identifier)
	var policyErr error
	for result := range results {
		if result.Skipped() {
			report.Skipped = append(report.Skipped, SkippedRepository{
				Repository: result.Repository,
				Reason:     result.SkipReason,
			})
			continue
		}
		report.Summary.RepositoriesScanned++

		for _, document := range result.Documents {
			doc, err := parser.Parse([]byte(document.Content))
			if err != nil {
				a.log.Warn("workflow failed to parse",
					"repository", document.Repository(), "path", document.Path, "error", err)
				report.ParseFailures = append(report.ParseFailures, ParseFailure{
					Repository: document.Repository(),
					Path:       document.Path,
					Error:      err.Error(),
				})
				continue
			}
			doc.Repository = document.Repository()
			doc.Path = document.Path

			report.Findings = append(report.Findings, a.engine.Evaluate(doc)...)
			// A broken policy file poisons every document the same way,
			// so the first failure ends policy evaluation for the run.
			if a.policies != nil && a.policies.Enabled() && policyErr == nil {
				policyFindings, err := a.policies.Evaluate(ctx, doc)
				if err != nil {
					policyErr = errors.NewConfigError("policy evaluation failed", err)
				}
				report.Findings = append(report.Findings, policyFindings...)
			}
			owners.record(doc)
		}
	}

	runErr := <-fatal
	if runErr != nil {
		report.Partial = true
		a.log.Error("traversal aborted", "error", runErr)
	}
	if runErr == nil && policyErr != nil {
		report.Partial = true
		runErr = policyErr
	}

	// The owner audit issues its own API calls, so it is skipped when the
	// run was cancelled or the traversal broke.
	if runErr == nil && a.ownerChecker != nil {
		staleFindings, err := a.auditActionOwners(ctx, owners)
		if err != nil {
			a.log.Warn("action owner audit incomplete", "error", err)
		}
		report.Findings = append(report.Findings, staleFindings...)
	}

	finishReport(report, started)
	return report, runErr
}

// finishReport sorts and rolls up whatever was collected; it is used for
// complete and partial reports alike.
func finishReport(report *Report, started time.Time) {
	sortFindings(report.Findings)
	sort.Slice(report.Skipped, func(i, j int) bool {
		return report.Skipped[i].Repository < report.Skipped[j].Repository
	})

	report.Summary.SkippedCount = len(report.Skipped)
	report.Summary.ErrorCount = len(report.ParseFailures)
	report.Summary.FindingsBySeverity = countBySeverity(report.Findings)
	report.Summary.Duration = time.Since(started)
}

// sortFindings orders findings by repository then path for stable output.
// The stable sort preserves the engine's rule/job/step order within one
// document.
func sortFindings(findings []rules.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Repository != findings[j].Repository {
			return findings[i].Repository < findings[j].Repository
		}
		return findings[i].FilePath < findings[j].FilePath
	})
}

func countBySeverity(findings []rules.Finding) map[rules.Severity]int {
	counts := make(map[rules.Severity]int)
	for _, finding := range findings {
		counts[finding.Severity]++
	}
	return counts
}
