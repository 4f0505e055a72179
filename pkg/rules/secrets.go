package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
	"github.com/Xenorf/gh-workflow-auditor/pkg/shell"
)

// checkSecretsUsage inventories every repository secret the workflow reads.
// This is informational: secrets define the impact of any code-execution
// finding reported by the other rules. One finding is emitted per document
// that reads at least one secret.
func checkSecretsUsage(doc *parser.Document) []Finding {
	var names []string
	seen := make(map[string]bool)
	record := func(text string) {
		for _, usage := range Expressions(text) {
			for _, path := range usage.Paths {
				if name, ok := strings.CutPrefix(path, "secrets."); ok && !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}

	for _, key := range sortedKeys(doc.Env) {
		record(doc.Env[key])
	}

	var exposures []string
	for _, job := range doc.Jobs {
		for _, key := range sortedKeys(job.Env) {
			record(job.Env[key])
		}
		for _, step := range job.Steps {
			for _, key := range sortedKeys(step.Env) {
				record(step.Env[key])
				// Note when a run script actually consumes a
				// secret-bearing variable.
				if step.IsRun() && readsSecret(step.Env[key]) && shell.ReferencesVariable(step.Run, key) {
					exposures = append(exposures,
						fmt.Sprintf("%s/step %d reads $%s", job.ID, step.Index, key))
				}
			}
			for _, key := range sortedKeys(step.With) {
				record(step.With[key])
			}
			record(step.Run)
		}
	}

	if len(names) == 0 {
		return nil
	}

	evidence := "secrets: " + strings.Join(names, ", ")
	if len(exposures) > 0 {
		evidence += "; exposed to shell: " + strings.Join(exposures, "; ")
	}

	return []Finding{{
		RuleID:      SecretsUsageRuleID,
		RuleName:    "Secrets Used by Workflow",
		Description: fmt.Sprintf("Workflow reads %d repository secret(s)", len(names)),
		Severity:    Info,
		StepIndex:   -1,
		Evidence:    evidence,
		Remediation: "Review whether every secret is needed by this workflow; unused secrets widen the impact of a compromise",
	}}
}

func readsSecret(value string) bool {
	for _, usage := range Expressions(value) {
		for _, path := range usage.Paths {
			if strings.HasPrefix(path, "secrets.") {
				return true
			}
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
