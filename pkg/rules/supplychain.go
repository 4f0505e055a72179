package rules

import (
	"fmt"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
)

// checkUnpinnedExternalAction fires when an action outside the trusted
// namespaces is referenced by a tag, branch or other mutable ref. Local and
// docker:// references are exempt; so are refs pinned to a full commit SHA.
func checkUnpinnedExternalAction(trusted map[string]bool) func(doc *parser.Document) []Finding {
	return func(doc *parser.Document) []Finding {
		var findings []Finding
		for _, job := range doc.Jobs {
			for _, step := range job.Steps {
				if !step.IsAction() {
					continue
				}
				ref, ok := parser.ParseActionRef(step.Uses)
				if !ok || ref.Local || ref.Docker {
					continue
				}
				if trusted[ref.Owner] || ref.Kind() == parser.PinnedSHA {
					continue
				}

				refKind := "branch or tag"
				if ref.Ref == "" {
					refKind = "default branch"
				}
				findings = append(findings, Finding{
					RuleID:      UnpinnedActionRuleID,
					RuleName:    "Unpinned Third-Party Action",
					Description: fmt.Sprintf("Action %s/%s is referenced by a mutable ref (%s)", ref.Owner, ref.Name, refKind),
					Severity:    Medium,
					JobID:       job.ID,
					StepIndex:   step.Index,
					Line:        step.Line,
					Evidence:    "uses: " + step.Uses,
					Remediation: "Pin the action to a full-length commit SHA so the referenced code cannot change underneath the workflow",
				})
			}
		}
		return findings
	}
}
