package rules

import (
	"fmt"
	"strings"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
)

// checkExpressionInjection fires once per untrusted interpolation inside a
// run step's command text. The safe pattern, assigning the expression to an
// env: entry and reading it through the shell variable, never fires: the
// runner passes environment values out of band, so they cannot terminate the
// script text.
//
// Two forms count as direct interpolation:
//   - an untrusted context path inlined in the command, including inside
//     compound expressions such as format();
//   - ${{ env.X }} inlined in the command where the resolved value of X is
//     itself an untrusted expression. GitHub expands env.* textually before
//     the shell runs, so the indirection does not help.
func checkExpressionInjection(doc *parser.Document) []Finding {
	var findings []Finding
	for _, job := range doc.Jobs {
		for _, step := range job.Steps {
			if !step.IsRun() {
				continue
			}
			for _, usage := range Expressions(step.Run) {
				if paths := usage.UntrustedPaths(); len(paths) > 0 {
					findings = append(findings, injectionFinding(job, step, usage.Raw, paths[0]))
					continue
				}
				if path, ok := untrustedEnvExpansion(usage, step, job, doc); ok {
					findings = append(findings, injectionFinding(job, step, usage.Raw, path))
				}
			}
		}
	}
	return findings
}

func injectionFinding(job parser.Job, step parser.Step, raw, path string) Finding {
	return Finding{
		RuleID:      ExpressionInjectionRuleID,
		RuleName:    "Expression Injection in Run Step",
		Description: fmt.Sprintf("Untrusted context %s is interpolated into shell command text", path),
		Severity:    High,
		JobID:       job.ID,
		StepIndex:   step.Index,
		Line:        step.Line,
		Evidence:    raw,
		Remediation: "Assign the expression to an env: entry and read it via the shell variable instead of interpolating it",
	}
}

// untrustedEnvExpansion resolves ${{ env.X }} usages against the step, job
// and workflow environment, nearest definition first. It reports the
// untrusted path carried by the variable's value. An env variable whose
// definition cannot be found never fires.
func untrustedEnvExpansion(usage ExpressionUsage, step parser.Step, job parser.Job, doc *parser.Document) (string, bool) {
	for _, path := range usage.Paths {
		name, ok := strings.CutPrefix(path, "env.")
		if !ok || strings.Contains(name, ".") {
			continue
		}
		value, ok := lookupEnv(name, step.Env, job.Env, doc.Env)
		if !ok {
			continue
		}
		for _, valueUsage := range Expressions(value) {
			if untrusted := valueUsage.UntrustedPaths(); len(untrusted) > 0 {
				return untrusted[0], true
			}
		}
	}
	return "", false
}

func lookupEnv(name string, scopes ...map[string]string) (string, bool) {
	for _, scope := range scopes {
		if value, ok := scope[name]; ok {
			return value, true
		}
	}
	return "", false
}
