package parser

import "testing"

func TestParseActionRef(t *testing.T) {
	tests := []struct {
		uses  string
		want  ActionRef
		valid bool
	}{
		{"actions/checkout@v4", ActionRef{Owner: "actions", Name: "checkout", Ref: "v4"}, true},
		{"actions/checkout", ActionRef{Owner: "actions", Name: "checkout"}, true},
		{"some-org/tool/sub/dir@main", ActionRef{Owner: "some-org", Name: "tool", Ref: "main"}, true},
		{"./local/action", ActionRef{Name: "./local/action", Local: true}, true},
		{"docker://alpine:3.20", ActionRef{Name: "alpine:3.20", Docker: true}, true},
		{"", ActionRef{}, false},
		{"justaname", ActionRef{}, false},
		{"/leading@v1", ActionRef{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseActionRef(tt.uses)
		if ok != tt.valid {
			t.Errorf("ParseActionRef(%q) ok = %v, want %v", tt.uses, ok, tt.valid)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseActionRef(%q) = %+v, want %+v", tt.uses, got, tt.want)
		}
	}
}

// Classification depends only on the ref string and never changes between
// evaluations.
func TestRefKindClassification(t *testing.T) {
	pinned := "2541b1294d2704b0964813337f33b291d3f8596b"
	tests := []struct {
		ref  string
		want RefKind
	}{
		{pinned, PinnedSHA},
		{"v4", MutableRef},
		{"main", MutableRef},
		{"", MutableRef},
		{pinned[:39], MutableRef},                // too short
		{pinned[:39] + "g", MutableRef},          // not hex
		{"2541B1294D2704B0964813337F33B291D3F8596B", MutableRef}, // uppercase is not a resolvable hash
	}

	for _, tt := range tests {
		ref := ActionRef{Owner: "o", Name: "n", Ref: tt.ref}
		for i := 0; i < 3; i++ {
			if got := ref.Kind(); got != tt.want {
				t.Errorf("Kind(%q) = %v, want %v", tt.ref, got, tt.want)
			}
		}
	}
}

func TestIsCheckout(t *testing.T) {
	tests := []struct {
		uses string
		want bool
	}{
		{"actions/checkout@v4", true},
		{"some-fork/checkout@v1", true},
		{"actions/setup-go@v5", false},
		{"docker://alpine", false},
		{"./checkout", false},
	}
	for _, tt := range tests {
		ref, ok := ParseActionRef(tt.uses)
		if !ok {
			t.Fatalf("ParseActionRef(%q) failed", tt.uses)
		}
		if got := ref.IsCheckout(); got != tt.want {
			t.Errorf("IsCheckout(%q) = %v, want %v", tt.uses, got, tt.want)
		}
	}
}
