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

// Package policies evaluates user-supplied Rego policies against parsed
// workflow documents. Policies complement the built-in rules: each entry of
// data.auditor.deny becomes a finding.
package policies

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
	"github.com/Xenorf/gh-workflow-auditor/pkg/rules"
)

const denyQuery = "data.auditor.deny[x]"

// Engine evaluates a fixed set of policy files.
type Engine struct {
	policyFiles []string
}

// NewEngine creates a policy engine. An empty file list disables policy
// evaluation.
func NewEngine(policyFiles []string) *Engine {
	return &Engine{policyFiles: policyFiles}
}

// Enabled reports whether any policy file is configured.
func (e *Engine) Enabled() bool { return len(e.policyFiles) > 0 }

// Evaluate runs every policy against the document and converts deny entries
// into findings.
func (e *Engine) Evaluate(ctx context.Context, doc *parser.Document) ([]rules.Finding, error) {
	if !e.Enabled() {
		return nil, nil
	}

	input := documentInput(doc)

	var findings []rules.Finding
	for _, policyFile := range e.policyFiles {
		content, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}

		r := rego.New(
			rego.Query(denyQuery),
			rego.Module(filepath.Base(policyFile), string(content)),
			rego.Input(input),
		)
		resultSet, err := r.Eval(ctx)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", policyFile, err)
		}

		for _, result := range resultSet {
			for _, expression := range result.Expressions {
				violation, ok := expression.Value.(map[string]interface{})
				if !ok {
					continue
				}
				findings = append(findings, violationFinding(violation, doc))
			}
		}
	}
	return findings, nil
}

// documentInput renders the canonical document as plain maps and lists for
// Rego. Field names mirror the workflow YAML where one exists.
func documentInput(doc *parser.Document) map[string]interface{} {
	triggers := make([]interface{}, 0, len(doc.Triggers))
	for _, trigger := range doc.Triggers {
		triggers = append(triggers, map[string]interface{}{
			"kind":   trigger.Kind,
			"config": trigger.Config,
		})
	}

	jobs := make([]interface{}, 0, len(doc.Jobs))
	for _, job := range doc.Jobs {
		steps := make([]interface{}, 0, len(job.Steps))
		for _, step := range job.Steps {
			steps = append(steps, map[string]interface{}{
				"index": step.Index,
				"name":  step.Name,
				"if":    step.If,
				"uses":  step.Uses,
				"run":   step.Run,
				"with":  stringMap(step.With),
				"env":   stringMap(step.Env),
			})
		}
		jobEntry := map[string]interface{}{
			"id":      job.ID,
			"name":    job.Name,
			"runs_on": job.RunsOn,
			"needs":   job.Needs,
			"if":      job.If,
			"env":     stringMap(job.Env),
			"steps":   steps,
		}
		if job.Permissions != nil {
			jobEntry["permissions"] = permissionsMap(*job.Permissions)
		}
		jobs = append(jobs, jobEntry)
	}

	return map[string]interface{}{
		"repository":  doc.Repository,
		"path":        doc.Path,
		"name":        doc.Name,
		"on":          triggers,
		"permissions": permissionsMap(doc.Permissions),
		"env":         stringMap(doc.Env),
		"jobs":        jobs,
	}
}

func permissionsMap(permissions parser.Permissions) map[string]interface{} {
	scopes := make(map[string]interface{}, len(permissions.Scopes))
	for scope, access := range permissions.Scopes {
		scopes[scope] = string(access)
	}
	return map[string]interface{}{
		"declared": permissions.Declared,
		"all":      string(permissions.All),
		"scopes":   scopes,
	}
}

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for key, value := range m {
		out[key] = value
	}
	return out
}

// violationFinding maps a deny entry onto a finding. Policies choose their
// own id/severity; unset fields fall back to generic values.
func violationFinding(violation map[string]interface{}, doc *parser.Document) rules.Finding {
	finding := rules.Finding{
		RuleID:      "POLICY_VIOLATION",
		RuleName:    "Policy Violation",
		Severity:    rules.Medium,
		Repository:  doc.Repository,
		FilePath:    doc.Path,
		StepIndex:   -1,
		Remediation: "Review the organization policy that produced this finding",
	}

	if id, ok := violation["id"].(string); ok && id != "" {
		finding.RuleID = id
	}
	if name, ok := violation["name"].(string); ok && name != "" {
		finding.RuleName = name
	}
	if message, ok := violation["message"].(string); ok {
		finding.Description = message
	}
	if severity, ok := violation["severity"].(string); ok {
		normalized := rules.Severity(strings.ToUpper(severity))
		if _, known := rules.SeverityLevels[normalized]; known {
			finding.Severity = normalized
		}
	}
	if jobID, ok := violation["job"].(string); ok {
		finding.JobID = jobID
	}
	if evidence, ok := violation["evidence"].(string); ok {
		finding.Evidence = evidence
	}
	return finding
}

// LoadPolicyFiles expands a path into .rego files: a file is used as is, a
// directory is walked non-recursively.
func LoadPolicyFiles(policyPath string) ([]string, error) {
	info, err := os.Stat(policyPath)
	if err != nil {
		return nil, fmt.Errorf("policy path not accessible: %w", err)
	}

	if !info.IsDir() {
		return []string{policyPath}, nil
	}

	entries, err := os.ReadDir(policyPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read policy directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".rego") {
			files = append(files, filepath.Join(policyPath, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .rego files found in %s", policyPath)
	}
	return files, nil
}
