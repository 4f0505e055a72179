package rules

import (
	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	Critical Severity = "CRITICAL"
	High     Severity = "HIGH"
	Medium   Severity = "MEDIUM"
	Low      Severity = "LOW"
	Info     Severity = "INFO"
)

// SeverityLevels orders severities for filtering and report sorting.
var SeverityLevels = map[Severity]int{
	Info:     0,
	Low:      1,
	Medium:   2,
	High:     3,
	Critical: 4,
}

// Finding represents one detected security issue at a concrete location.
// Findings are immutable once produced; the orchestrator only aggregates
// them.
type Finding struct {
	RuleID      string
	RuleName    string
	Description string
	Severity    Severity
	Repository  string
	FilePath    string
	JobID       string
	StepIndex   int // -1 when the finding is not tied to a step
	Evidence    string
	Remediation string
	Line        int
}

// Rule is one self-contained security check. Rules never observe another
// rule's output; each receives the immutable document and returns its own
// findings.
type Rule struct {
	ID          string
	Name        string
	Description string
	Severity    Severity
	Check       func(doc *parser.Document) []Finding
}

// Rule identifiers. StaleActionOwnerRuleID is produced by the post-scan
// owner audit rather than a per-document check.
const (
	UntrustedCheckoutRuleID   = "UNTRUSTED_CHECKOUT_EXECUTION"
	ExpressionInjectionRuleID = "EXPRESSION_INJECTION"
	UnpinnedActionRuleID      = "UNPINNED_EXTERNAL_ACTION"
	SelfHostedRunnerRuleID    = "SELF_HOSTED_RUNNER_PUBLIC_TRIGGER"
	SecretsUsageRuleID        = "WORKFLOW_SECRETS_USAGE"
	HardcodedCredentialRuleID = "HARDCODED_CREDENTIAL"
	StaleActionOwnerRuleID    = "STALE_ACTION_OWNER"
)

// Options tunes rule construction.
type Options struct {
	// TrustedOwners are action namespaces exempt from the unpinned-action
	// rule. The GitHub-owned namespaces are always trusted.
	TrustedOwners []string
}

// defaultTrustedOwners is the GitHub-owned namespace.
var defaultTrustedOwners = []string{"actions", "github"}

// StandardRules returns the built-in security rules in declaration order.
// The order is part of the engine's contract: findings are emitted rule by
// rule, then job by job, then step by step.
func StandardRules(opts Options) []Rule {
	trusted := make(map[string]bool)
	for _, owner := range defaultTrustedOwners {
		trusted[owner] = true
	}
	for _, owner := range opts.TrustedOwners {
		trusted[owner] = true
	}

	return []Rule{
		{
			ID:          UntrustedCheckoutRuleID,
			Name:        "Untrusted Checkout Followed by Execution",
			Description: "A privileged trigger checks out pull-request code and later steps execute it",
			Severity:    High,
			Check:       checkUntrustedCheckoutExecution,
		},
		{
			ID:          ExpressionInjectionRuleID,
			Name:        "Expression Injection in Run Step",
			Description: "Untrusted event data is interpolated directly into shell command text",
			Severity:    High,
			Check:       checkExpressionInjection,
		},
		{
			ID:          UnpinnedActionRuleID,
			Name:        "Unpinned Third-Party Action",
			Description: "An action outside the trusted namespaces is referenced by a mutable ref instead of a commit SHA",
			Severity:    Medium,
			Check:       checkUnpinnedExternalAction(trusted),
		},
		{
			ID:          SelfHostedRunnerRuleID,
			Name:        "Self-Hosted Runner on Public Trigger",
			Description: "A job runs on a self-hosted runner for an event reachable by external contributors",
			Severity:    High,
			Check:       checkSelfHostedRunner,
		},
		{
			ID:          SecretsUsageRuleID,
			Name:        "Secrets Used by Workflow",
			Description: "Inventory of repository secrets the workflow reads; these are the blast radius of any code execution above",
			Severity:    Info,
			Check:       checkSecretsUsage,
		},
		{
			ID:          HardcodedCredentialRuleID,
			Name:        "Hardcoded Credential",
			Description: "A credential is written literally into the workflow file instead of a repository secret",
			Severity:    Critical,
			Check:       checkHardcodedCredentials,
		},
	}
}

// Config is the subset of configuration the engine consults.
type Config interface {
	IsRuleEnabled(ruleID string) bool
}

// Engine evaluates an ordered rule set against documents.
type Engine struct {
	rules  []Rule
	config Config
}

// NewEngine creates an engine over the given rules. config may be nil, in
// which case every rule runs.
func NewEngine(rules []Rule, config Config) *Engine {
	return &Engine{rules: rules, config: config}
}

// Evaluate runs every enabled rule against the document. Output order is
// deterministic for identical input: rule declaration order first, and each
// rule walks jobs and steps in document order.
func (e *Engine) Evaluate(doc *parser.Document) []Finding {
	var findings []Finding
	for _, rule := range e.rules {
		if e.config != nil && !e.config.IsRuleEnabled(rule.ID) {
			continue
		}
		for _, finding := range rule.Check(doc) {
			finding.Repository = doc.Repository
			finding.FilePath = doc.Path
			findings = append(findings, finding)
		}
	}
	return findings
}
