package rules

import (
	"reflect"
	"testing"
)

func TestExpressionsExtraction(t *testing.T) {
	usages := Expressions(`echo "${{ github.event.issue.title }}" && echo "${{ github.sha }}"`)
	if len(usages) != 2 {
		t.Fatalf("got %d usages, want 2", len(usages))
	}
	if usages[0].Body != "github.event.issue.title" {
		t.Errorf("body = %q", usages[0].Body)
	}
	if !reflect.DeepEqual(usages[0].Paths, []string{"github.event.issue.title"}) {
		t.Errorf("paths = %v", usages[0].Paths)
	}
}

func TestExpressionsCompoundAndIndexed(t *testing.T) {
	usages := Expressions(`${{ format('{0}', github.event.commits[0].message) }}`)
	if len(usages) != 1 {
		t.Fatalf("got %d usages", len(usages))
	}
	if len(usages[0].UntrustedPaths()) == 0 {
		t.Errorf("indexed commit message not classified untrusted: %v", usages[0].Paths)
	}
}

func TestIsUntrustedInputTable(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"github.event.issue.title", true},
		{"github.event.pull_request.body", true},
		{"github.head_ref", true},
		{"github.event.commits.*.message", true},
		{"github.event.pages.*.page_name", true},
		{"github.sha", false},
		{"github.repository", false},
		{"github.event.pull_request.head.sha", false}, // a hash cannot escape a shell string
		{"secrets.TOKEN", false},
	}
	for _, tt := range tests {
		if got := IsUntrustedInput(tt.path); got != tt.want {
			t.Errorf("IsUntrustedInput(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsUntrustedCheckoutRef(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"github.event.pull_request.head.sha", true},
		{"github.event.pull_request.head.ref", true},
		{"github.event.workflow_run.head_sha", true},
		{"github.head_ref", true},
		{"github.sha", false},
		{"github.ref", false},
	}
	for _, tt := range tests {
		if got := IsUntrustedCheckoutRef(tt.path); got != tt.want {
			t.Errorf("IsUntrustedCheckoutRef(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
