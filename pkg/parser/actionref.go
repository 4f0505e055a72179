package parser

import (
	"regexp"
	"strings"
)

// RefKind classifies the ref component of an action reference.
type RefKind int

const (
	// MutableRef is a tag, branch or other movable pointer.
	MutableRef RefKind = iota
	// PinnedSHA is a full-length commit hash.
	PinnedSHA
)

func (k RefKind) String() string {
	if k == PinnedSHA {
		return "pinnedSha"
	}
	return "mutableRef"
}

var fullShaPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ActionRef is a parsed owner/name@ref action reference.
type ActionRef struct {
	Owner  string
	Name   string
	Ref    string
	Local  bool // ./path references inside the scanned repository
	Docker bool // docker:// image references
}

// Kind classifies the ref string. The classification is a pure function of
// the ref: a 40-character lowercase hex string is a pinned commit, anything
// else is mutable.
func (r ActionRef) Kind() RefKind {
	if fullShaPattern.MatchString(r.Ref) {
		return PinnedSHA
	}
	return MutableRef
}

// String renders the reference back to its uses: form.
func (r ActionRef) String() string {
	if r.Local {
		return r.Name
	}
	base := r.Owner + "/" + r.Name
	if r.Ref == "" {
		return base
	}
	return base + "@" + r.Ref
}

// ParseActionRef splits a uses: value into its components. The second
// return value is false when the value is not an action reference rules can
// reason about (empty string, malformed reference).
func ParseActionRef(uses string) (ActionRef, bool) {
	uses = strings.TrimSpace(uses)
	if uses == "" {
		return ActionRef{}, false
	}

	if strings.HasPrefix(uses, "./") || strings.HasPrefix(uses, "../") {
		return ActionRef{Name: uses, Local: true}, true
	}
	if strings.HasPrefix(uses, "docker://") {
		return ActionRef{Name: strings.TrimPrefix(uses, "docker://"), Docker: true}, true
	}

	spec, ref, _ := strings.Cut(uses, "@")
	parts := strings.SplitN(spec, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ActionRef{}, false
	}

	// owner/repo/path@ref points at an action in a subdirectory; the
	// repository reference is still owner/repo.
	return ActionRef{Owner: parts[0], Name: parts[1], Ref: ref}, true
}

// knownCheckoutActions are actions that materialize a git ref into the
// workspace. Matching is by owner/name, ignoring subdirectory and ref.
var knownCheckoutActions = map[string]bool{
	"actions/checkout": true,
}

// IsCheckout reports whether the reference is a checkout-style action.
// Unknown forks named "checkout" count too; the heuristic prefers catching
// checkout wrappers over precision because rule evaluation still requires an
// untrusted ref before firing.
func (r ActionRef) IsCheckout() bool {
	if r.Local || r.Docker {
		return false
	}
	if knownCheckoutActions[r.Owner+"/"+r.Name] {
		return true
	}
	return r.Name == "checkout"
}
