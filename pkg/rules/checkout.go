package rules

import (
	"fmt"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
	"github.com/Xenorf/gh-workflow-auditor/pkg/shell"
)

// privilegedTriggers run with a write-capable token against the base
// repository even when the triggering change comes from a fork.
var privilegedTriggers = []string{"pull_request_target", "workflow_run"}

// checkUntrustedCheckoutExecution fires when a privileged trigger checks out
// a pull-request head and a later step in the same job executes code: any
// run step with actual commands, or an action referenced by a mutable ref.
//
// The default checkout ref on pull_request_target and workflow_run is the
// base branch, which is trusted, so a checkout without an explicit ref never
// fires. A ref expression that references no known pull-request head path is
// left alone as well: when the rule cannot determine the fact it stays
// silent instead of guessing.
func checkUntrustedCheckoutExecution(doc *parser.Document) []Finding {
	if !doc.HasTrigger(privilegedTriggers...) {
		return nil
	}

	var findings []Finding
	for _, job := range doc.Jobs {
		for _, step := range job.Steps {
			if !step.IsAction() {
				continue
			}
			ref, ok := parser.ParseActionRef(step.Uses)
			if !ok || !ref.IsCheckout() {
				continue
			}
			checkoutRef, untrusted := untrustedCheckoutRef(step)
			if !untrusted {
				continue
			}
			if executor, found := firstExecutionAfter(job.Steps, step.Index); found {
				findings = append(findings, Finding{
					RuleID:      UntrustedCheckoutRuleID,
					RuleName:    "Untrusted Checkout Followed by Execution",
					Description: "Pull-request head is checked out under a privileged trigger and executed by a later step",
					Severity:    High,
					JobID:       job.ID,
					StepIndex:   step.Index,
					Line:        step.Line,
					Evidence: fmt.Sprintf("checkout of %s followed by %s",
						checkoutRef, executor),
					Remediation: "Check out the trusted base ref, or split untrusted-code handling into an unprivileged workflow",
				})
			}
		}
	}
	return findings
}

// untrustedCheckoutRef inspects with.ref of a checkout step. It returns the
// ref text and whether it resolves to a pull-request head.
func untrustedCheckoutRef(step parser.Step) (string, bool) {
	ref, ok := step.With["ref"]
	if !ok || ref == "" {
		return "", false
	}
	for _, usage := range Expressions(ref) {
		for _, path := range usage.Paths {
			if IsUntrustedCheckoutRef(path) {
				return ref, true
			}
		}
	}
	return ref, false
}

// firstExecutionAfter finds the first step after index that would execute
// checked-out code. Run steps count when their script actually invokes a
// command; action steps count when the action itself is a mutable ref, since
// the checked-out tree is in scope for whatever the action does.
func firstExecutionAfter(steps []parser.Step, index int) (string, bool) {
	for _, step := range steps {
		if step.Index <= index {
			continue
		}
		if step.IsRun() && shell.ExecutesCommands(step.Run) {
			return fmt.Sprintf("run step %d", step.Index), true
		}
		if step.IsAction() {
			ref, ok := parser.ParseActionRef(step.Uses)
			if ok && !ref.Local && !ref.Docker && ref.Kind() == parser.MutableRef {
				return fmt.Sprintf("mutable action %s", ref.String()), true
			}
		}
	}
	return "", false
}
