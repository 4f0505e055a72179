package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
	"github.com/Xenorf/gh-workflow-auditor/pkg/rules"
)

// OwnerChecker resolves whether an action owner still exists. Satisfied by
// the API client.
type OwnerChecker interface {
	OwnerExists(ctx context.Context, login string) (bool, error)
}

// githubOwnedNamespaces never need an existence check.
var githubOwnedNamespaces = map[string]bool{
	"actions": true,
	"github":  true,
}

type ownerLocation struct {
	repository string
	path       string
	jobID      string
	stepIndex  int
	line       int
	uses       string
}

// ownerInventory collects every external action owner seen during the scan
// together with the first location that referenced it per workflow file.
type ownerInventory struct {
	locations map[string][]ownerLocation
	seenFiles map[string]bool
}

func newOwnerInventory() *ownerInventory {
	return &ownerInventory{
		locations: make(map[string][]ownerLocation),
		seenFiles: make(map[string]bool),
	}
}

func (inv *ownerInventory) record(doc *parser.Document) {
	for _, job := range doc.Jobs {
		for _, step := range job.Steps {
			if !step.IsAction() {
				continue
			}
			ref, ok := parser.ParseActionRef(step.Uses)
			if !ok || ref.Local || ref.Docker || githubOwnedNamespaces[ref.Owner] {
				continue
			}
			fileKey := ref.Owner + "\x00" + doc.Repository + "\x00" + doc.Path
			if inv.seenFiles[fileKey] {
				continue
			}
			inv.seenFiles[fileKey] = true
			inv.locations[ref.Owner] = append(inv.locations[ref.Owner], ownerLocation{
				repository: doc.Repository,
				path:       doc.Path,
				jobID:      job.ID,
				stepIndex:  step.Index,
				line:       step.Line,
				uses:       step.Uses,
			})
		}
	}
}

// auditActionOwners checks each collected owner against the API once and
// reports every workflow file referencing a vanished owner. An unclaimed
// owner login lets anyone republish the action under the same name.
func (a *Auditor) auditActionOwners(ctx context.Context, inv *ownerInventory) ([]rules.Finding, error) {
	owners := make([]string, 0, len(inv.locations))
	for owner := range inv.locations {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var findings []rules.Finding
	for _, owner := range owners {
		exists, err := a.ownerChecker.OwnerExists(ctx, owner)
		if err != nil {
			return findings, err
		}
		if exists {
			continue
		}
		a.log.Warn("action owner no longer exists", "owner", owner)
		for _, location := range inv.locations[owner] {
			findings = append(findings, rules.Finding{
				RuleID:      rules.StaleActionOwnerRuleID,
				RuleName:    "Action Owner No Longer Exists",
				Description: "A referenced action belongs to a user or organization that no longer exists; the name can be re-registered to serve malicious code",
				Severity:    rules.High,
				Repository:  location.repository,
				FilePath:    location.path,
				JobID:       location.jobID,
				StepIndex:   location.stepIndex,
				Evidence:    fmt.Sprintf("uses: %s (owner %q not found)", location.uses, owner),
				Remediation: "Fork the action or replace it with a maintained equivalent",
				Line:        location.line,
			})
		}
	}
	return findings, nil
}
