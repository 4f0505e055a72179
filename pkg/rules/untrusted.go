package rules

import (
	"regexp"
	"strings"
)

// The untrusted-context taxonomy is a data table rather than inline
// conditionals so it can be audited and extended without touching rule
// logic. Entries are dotted context paths; a `*` segment matches exactly one
// path segment (array filters and indices normalize to `*`). A table entry
// matches any usage it prefixes.
//
// The list follows the GitHub security-hardening guidance on untrusted
// input: fields whose content an external contributor controls through an
// issue, pull request, comment, commit, or fork.
var untrustedContextPaths = []string{
	"github.event.issue.title",
	"github.event.issue.body",
	"github.event.pull_request.title",
	"github.event.pull_request.body",
	"github.event.comment.body",
	"github.event.review.body",
	"github.event.review_comment.body",
	"github.event.discussion.title",
	"github.event.discussion.body",
	"github.event.pages.*.page_name",
	"github.event.commits.*.message",
	"github.event.commits.*.author.name",
	"github.event.commits.*.author.email",
	"github.event.head_commit.message",
	"github.event.head_commit.author.name",
	"github.event.head_commit.author.email",
	"github.event.head_commit.committer.email",
	"github.event.pull_request.head.ref",
	"github.event.pull_request.head.label",
	"github.event.pull_request.head.repo.default_branch",
	"github.event.workflow_run.head_branch",
	"github.event.workflow_run.head_commit.message",
	"github.event.workflow_run.head_commit.author.name",
	"github.event.workflow_run.head_commit.author.email",
	"github.event.workflow_run.head_repository.description",
	"github.event.workflow_run.head_repository.owner.email",
	"github.event.workflow_run.pull_requests.*.head.ref",
	"github.head_ref",
}

// untrustedCheckoutRefs are expression paths that resolve to a pull-request
// head when passed to a checkout action. head.sha is included here but not
// in the injection table: a commit hash cannot break out of a shell string,
// but checking it out executes attacker code.
var untrustedCheckoutRefs = []string{
	"github.event.pull_request.head.sha",
	"github.event.pull_request.head.ref",
	"github.event.pull_request.merge_commit_sha",
	"github.event.workflow_run.head_sha",
	"github.event.workflow_run.head_branch",
	"github.head_ref",
}

var (
	expressionPattern  = regexp.MustCompile(`\$\{\{([^}]*)\}\}`)
	contextPathPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_-]*(?:\.(?:[A-Za-z_][A-Za-z0-9_-]*|\*))+`)
	arrayIndexPattern  = regexp.MustCompile(`\[[^\]]*\]`)
)

// ExpressionUsage is one ${{ ... }} interpolation found in workflow text.
type ExpressionUsage struct {
	Raw   string   // the full interpolation including delimiters
	Body  string   // trimmed expression text
	Paths []string // dotted context paths referenced by the expression
}

// Expressions extracts every interpolation in the text, in order of
// appearance. Context paths inside compound expressions (format calls,
// operators) are extracted individually; array accesses normalize to `*`.
func Expressions(text string) []ExpressionUsage {
	matches := expressionPattern.FindAllStringSubmatch(text, -1)
	usages := make([]ExpressionUsage, 0, len(matches))
	for _, match := range matches {
		body := strings.TrimSpace(match[1])
		normalized := arrayIndexPattern.ReplaceAllString(body, ".*")
		usages = append(usages, ExpressionUsage{
			Raw:   match[0],
			Body:  body,
			Paths: contextPathPattern.FindAllString(normalized, -1),
		})
	}
	return usages
}

// matchesContextPath reports whether the table pattern matches the used
// path. The pattern must be a segment-wise prefix of the path; `*` matches
// any single segment.
func matchesContextPath(pattern, path string) bool {
	patternSegs := strings.Split(pattern, ".")
	pathSegs := strings.Split(path, ".")
	if len(pathSegs) < len(patternSegs) {
		return false
	}
	for i, seg := range patternSegs {
		if seg != "*" && seg != pathSegs[i] {
			return false
		}
	}
	return true
}

// IsUntrustedInput reports whether the context path carries external
// contributor input per the taxonomy table. Paths not in the table are
// trusted: the rules prefer false negatives over guessing.
func IsUntrustedInput(path string) bool {
	for _, pattern := range untrustedContextPaths {
		if matchesContextPath(pattern, path) {
			return true
		}
	}
	return false
}

// IsUntrustedCheckoutRef reports whether the context path resolves to a
// pull-request head ref or commit.
func IsUntrustedCheckoutRef(path string) bool {
	for _, pattern := range untrustedCheckoutRefs {
		if matchesContextPath(pattern, path) {
			return true
		}
	}
	return false
}

// UntrustedPaths returns the untrusted context paths referenced by the
// expression, preserving order.
func (u ExpressionUsage) UntrustedPaths() []string {
	var untrusted []string
	for _, path := range u.Paths {
		if IsUntrustedInput(path) {
			untrusted = append(untrusted, path)
		}
	}
	return untrusted
}
