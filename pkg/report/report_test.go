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

package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Xenorf/gh-workflow-auditor/pkg/audit"
	"github.com/Xenorf/gh-workflow-auditor/pkg/rules"
)

func sampleReport() *audit.Report {
	return &audit.Report{
		Entity:     "org",
		Identifier: "demo",
		Findings: []rules.Finding{
			{
				RuleID:     rules.ExpressionInjectionRuleID,
				RuleName:   "Expression Injection in Run Step",
				Severity:   rules.High,
				Repository: "demo/alpha",
				FilePath:   ".github/workflows/ci.yml",
				JobID:      "build",
				StepIndex:  1,
				Line:       12,
				Evidence:   "${{ github.event.issue.title }}",
			},
			{
				RuleID:     rules.SecretsUsageRuleID,
				RuleName:   "Secrets Used by Workflow",
				Severity:   rules.Info,
				Repository: "demo/alpha",
				FilePath:   ".github/workflows/ci.yml",
				StepIndex:  -1,
				Evidence:   "secrets: PROD_API_KEY",
			},
		},
		Skipped: []audit.SkippedRepository{
			{Repository: "demo/private", Reason: "access to repository is forbidden"},
		},
		Summary: audit.Summary{
			RepositoriesScanned: 2,
			SkippedCount:        1,
			Duration:            1500 * time.Millisecond,
			FindingsBySeverity:  map[rules.Severity]int{rules.High: 1, rules.Info: 1},
		},
	}
}

func TestGenerateJSON(t *testing.T) {
	var buf bytes.Buffer
	generator := NewGenerator(sampleReport(), "json", "")
	if err := generator.writeJSON(&buf); err != nil {
		t.Fatalf("writeJSON() error = %v", err)
	}

	var decoded audit.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Findings) != 2 || decoded.Summary.RepositoriesScanned != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestGenerateMarkdown(t *testing.T) {
	var buf bytes.Buffer
	generator := NewGenerator(sampleReport(), "markdown", "")
	if err := generator.writeMarkdown(&buf); err != nil {
		t.Fatalf("writeMarkdown() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"# Workflow audit",
		"EXPRESSION_INJECTION",
		"demo/alpha",
		"## Skipped repositories",
		"demo/private",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestGenerateSARIF(t *testing.T) {
	var buf bytes.Buffer
	generator := NewGenerator(sampleReport(), "sarif", "")
	if err := generator.writeSARIF(&buf); err != nil {
		t.Fatalf("writeSARIF() error = %v", err)
	}

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID string `json:"id"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID string `json:"ruleId"`
				Level  string `json:"level"`
			} `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid SARIF JSON: %v", err)
	}
	if doc.Version != "2.1.0" {
		t.Errorf("version = %q", doc.Version)
	}
	run := doc.Runs[0]
	if run.Tool.Driver.Name != "gh-workflow-auditor" {
		t.Errorf("tool name = %q", run.Tool.Driver.Name)
	}
	if len(run.Results) != 2 || len(run.Tool.Driver.Rules) != 2 {
		t.Errorf("results = %d, rules = %d", len(run.Results), len(run.Tool.Driver.Rules))
	}
	if run.Results[0].Level != "error" {
		t.Errorf("level = %q", run.Results[0].Level)
	}
}

func TestSeverityFloorFiltersFindings(t *testing.T) {
	generator := NewGenerator(sampleReport(), "json", "")
	generator.MinSeverity = rules.Medium

	kept := generator.filteredFindings()
	if len(kept) != 1 || kept[0].Severity != rules.High {
		t.Errorf("kept = %+v", kept)
	}
}

func TestGenerateWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	generator := NewGenerator(sampleReport(), "json", path)
	if err := generator.Generate(); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(content) {
		t.Error("report file is not valid JSON")
	}
}

func TestGenerateRejectsUnknownFormat(t *testing.T) {
	generator := NewGenerator(sampleReport(), "xml", "")
	if err := generator.Generate(); err == nil {
		t.Fatal("unknown format accepted")
	}
}
