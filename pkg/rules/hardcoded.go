package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Xenorf/gh-workflow-auditor/pkg/parser"
)

// credentialPatterns match well-known token formats. Generic patterns that
// need a key name for context (password=..., api_key: ...) only apply to
// run text; env and with values are already keyed, so the value alone is
// matched there.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,255}`),
	regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,255}`),
	regexp.MustCompile(`AIza[A-Za-z0-9_\-]{35}`),
	regexp.MustCompile(`ya29\.[A-Za-z0-9_\-]+`),
	regexp.MustCompile(`npm_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`xox[baprs]-[A-Za-z0-9\-]{10,}`),
	regexp.MustCompile(`-----BEGIN( RSA| OPENSSH| DSA| EC)? PRIVATE KEY( BLOCK)?-----`),
	regexp.MustCompile(`(?i)(?:jdbc|mongodb(?:\+srv)?|postgres(?:ql)?|mysql|sqlserver)://[^\s'"]*:[^\s'"@]+@`),
}

// entropyThreshold is the Shannon entropy above which an opaque token-like
// value is reported. GitHub PATs and similar random tokens sit well above
// it; version strings and hostnames sit well below.
const entropyThreshold = 4.5

var tokenShape = regexp.MustCompile(`^[A-Za-z0-9+/=_\-.]{16,100}$`)

var sha40 = regexp.MustCompile(`^[0-9a-f]{40}$`)

var versionValue = regexp.MustCompile(`^v?\d+(\.\d+)*$`)

// plainValueWords are substrings that mark a value as configuration rather
// than a credential, whatever its entropy.
var plainValueWords = []string{
	"ubuntu", "windows", "macos", "alpine", "debian",
	"node-version", "python-version", "java-version",
	"github.com", "githubusercontent", "docker.io", "registry",
	"workflow", "action", "runner",
}

// checkHardcodedCredentials reports literal credentials written into the
// workflow itself. Values that reference expressions or shell variables are
// someone else's problem; only plain literals fire.
func checkHardcodedCredentials(doc *parser.Document) []Finding {
	var findings []Finding
	report := func(jobID string, stepIndex, line int, location, value string) {
		findings = append(findings, Finding{
			RuleID:      HardcodedCredentialRuleID,
			RuleName:    "Hardcoded Credential",
			Description: "A credential is written literally into the workflow file",
			Severity:    Critical,
			JobID:       jobID,
			StepIndex:   stepIndex,
			Evidence:    fmt.Sprintf("%s: %s", location, maskCredential(value)),
			Remediation: "Move the value into a repository secret and reference it with ${{ secrets.NAME }}",
			Line:        line,
		})
	}

	for _, key := range sortedKeys(doc.Env) {
		if value := doc.Env[key]; looksLikeCredential(value) {
			report("", -1, 0, "env."+key, value)
		}
	}

	for _, job := range doc.Jobs {
		for _, key := range sortedKeys(job.Env) {
			if value := job.Env[key]; looksLikeCredential(value) {
				report(job.ID, -1, job.Line, "env."+key, value)
			}
		}
		for _, step := range job.Steps {
			for _, key := range sortedKeys(step.Env) {
				if value := step.Env[key]; looksLikeCredential(value) {
					report(job.ID, step.Index, step.Line, "env."+key, value)
				}
			}
			for _, key := range sortedKeys(step.With) {
				if value := step.With[key]; looksLikeCredential(value) {
					report(job.ID, step.Index, step.Line, "with."+key, value)
				}
			}
			if step.IsRun() {
				for _, match := range credentialsInText(step.Run) {
					report(job.ID, step.Index, step.Line, "run", match)
				}
			}
		}
	}

	return findings
}

// looksLikeCredential classifies a single keyed value (env or with).
func looksLikeCredential(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || strings.Contains(value, "${{") || strings.Contains(value, "${") {
		return false
	}
	for _, pattern := range credentialPatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	if !tokenShape.MatchString(value) || sha40.MatchString(value) {
		return false
	}
	if isPlainValue(value) {
		return false
	}
	return shannonEntropy(value) > entropyThreshold
}

// credentialsInText scans free-form run script text. Only the explicit
// token formats apply here; entropy matching over arbitrary script words
// produces too much noise.
func credentialsInText(text string) []string {
	var matches []string
	seen := make(map[string]bool)
	for _, pattern := range credentialPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			if strings.Contains(match, "${{") || strings.Contains(match, "${") {
				continue
			}
			if sha40.MatchString(match) || seen[match] {
				continue
			}
			seen[match] = true
			matches = append(matches, match)
		}
	}
	return matches
}

func isPlainValue(value string) bool {
	lower := strings.ToLower(value)
	for _, word := range plainValueWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	// Paths, dotted identifiers, and semantic versions are configuration.
	return strings.Contains(value, "/") ||
		strings.Count(value, ".") > 2 ||
		versionValue.MatchString(value)
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]float64)
	for _, r := range s {
		freq[r]++
	}
	entropy := 0.0
	length := float64(len(s))
	for _, count := range freq {
		p := count / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// maskCredential keeps enough of the value to locate it without
// reproducing the credential in the report.
func maskCredential(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
