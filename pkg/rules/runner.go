package rules

import (
	"fmt"
	"strings"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
)

// externallyReachableTriggers can be fired by anyone able to open a pull
// request or comment on the repository.
var externallyReachableTriggers = []string{
	"pull_request",
	"pull_request_target",
	"issue_comment",
}

// actorGateMarkers are condition fragments that gate a job on who triggered
// it. A job carrying one of these in its if: condition is treated as gated;
// conditions the rule cannot interpret do not suppress it, but a recognized
// gate does.
var actorGateMarkers = []string{
	"github.actor",
	"github.triggering_actor",
	"author_association",
	"github.repository_owner",
}

// checkSelfHostedRunner fires when a job explicitly targets a self-hosted
// runner and the document has a trigger reachable by external contributors
// without a trusted-actor gate. Runner labels produced by expressions never
// classify as self-hosted, so matrix-driven runners stay silent.
func checkSelfHostedRunner(doc *parser.Document) []Finding {
	reachable := ""
	for _, trigger := range doc.Triggers {
		for _, kind := range externallyReachableTriggers {
			if trigger.Kind == kind {
				reachable = kind
				break
			}
		}
		if reachable != "" {
			break
		}
	}
	if reachable == "" {
		return nil
	}

	var findings []Finding
	for _, job := range doc.Jobs {
		if !job.SelfHosted() || hasActorGate(job.If) {
			continue
		}
		findings = append(findings, Finding{
			RuleID:      SelfHostedRunnerRuleID,
			RuleName:    "Self-Hosted Runner on Public Trigger",
			Description: fmt.Sprintf("Job runs on a self-hosted runner and the workflow is reachable via %s", reachable),
			Severity:    High,
			JobID:       job.ID,
			StepIndex:   -1,
			Line:        job.Line,
			Evidence:    "runs-on: " + strings.Join(job.RunsOn, ", "),
			Remediation: "Use GitHub-hosted runners for externally reachable events, or gate the job on a trusted actor condition",
		})
	}
	return findings
}

func hasActorGate(condition string) bool {
	if condition == "" {
		return false
	}
	for _, marker := range actorGateMarkers {
		if strings.Contains(condition, marker) {
			return true
		}
	}
	return false
}
