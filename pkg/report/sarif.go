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
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/Xenorf/gh-workflow-auditor/pkg/constants"
	"github.com/Xenorf/gh-workflow-auditor/pkg/rules"
)

const toolInformationURI = "https://github.com/Xenorf/gh-workflow-auditor"

// writeSARIF renders the findings as a SARIF 2.1.0 document. Each finding
// location carries the repository in the artifact URI so multi-repository
// scans stay distinguishable in SARIF viewers.
func (g *Generator) writeSARIF(out io.Writer) error {
	document, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(constants.AppName, toolInformationURI)

	registered := make(map[string]bool)
	for _, finding := range g.filteredFindings() {
		if !registered[finding.RuleID] {
			registered[finding.RuleID] = true
			run.AddRule(finding.RuleID).
				WithName(finding.RuleName).
				WithDescription(finding.RuleName).
				WithFullDescription(sarif.NewMultiformatMessageString(finding.Description)).
				WithDefaultConfiguration(&sarif.ReportingConfiguration{
					Level: sarifLevel(finding.Severity),
				})
		}

		line := finding.Line
		if line <= 0 {
			line = 1
		}
		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().
					WithUri(finding.Repository + "/" + finding.FilePath)).
				WithRegion(sarif.NewRegion().WithStartLine(line)),
		)

		message := finding.Description
		if finding.Evidence != "" {
			message += "\n\nEvidence: " + finding.Evidence
		}
		result := sarif.NewRuleResult(finding.RuleID).
			WithMessage(sarif.NewTextMessage(message)).
			WithLevel(sarifLevel(finding.Severity)).
			WithLocations([]*sarif.Location{location})
		run.AddResult(result)
	}

	document.AddRun(run)
	return document.PrettyWrite(out)
}

func sarifLevel(severity rules.Severity) string {
	switch severity {
	case rules.Critical, rules.High:
		return "error"
	case rules.Medium:
		return "warning"
	case rules.Low:
		return "note"
	default:
		return "none"
	}
}
