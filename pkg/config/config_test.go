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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("explicit missing file should fail")
	}

	cfg = Default()
	if cfg.Output.Format != "cli" || cfg.Scan.Workers != 4 || cfg.Scan.PageSize != 100 {
		t.Errorf("defaults = %+v", cfg)
	}
	if !cfg.IsRuleEnabled("ANY_RULE") {
		t.Error("all rules should be enabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
rules:
  disabled: [WORKFLOW_SECRETS_USAGE]
  trusted_owners: [my-company]
output:
  format: json
  min_severity: MEDIUM
scan:
  workers: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output.Format != "json" || cfg.Output.MinSeverity != "MEDIUM" {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Scan.Workers != 8 {
		t.Errorf("workers = %d", cfg.Scan.Workers)
	}
	// untouched fields keep defaults
	if cfg.Scan.PageSize != 100 {
		t.Errorf("page_size = %d", cfg.Scan.PageSize)
	}
	if cfg.Rules.TrustedOwners[0] != "my-company" {
		t.Errorf("trusted_owners = %v", cfg.Rules.TrustedOwners)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeConfig(t, "output:\n  format: xml\n")
	_, err := Load(path)
	if !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("error = %v, want config error", err)
	}
}

func TestIsRuleEnabled(t *testing.T) {
	cfg := Default()
	cfg.Rules.Enabled = []string{"A", "B"}
	cfg.Rules.Disabled = []string{"B"}

	tests := []struct {
		ruleID string
		want   bool
	}{
		{"A", true},
		{"B", false}, // disabled wins over enabled
		{"C", false}, // not in the enabled list
	}
	for _, tt := range tests {
		if got := cfg.IsRuleEnabled(tt.ruleID); got != tt.want {
			t.Errorf("IsRuleEnabled(%q) = %v, want %v", tt.ruleID, got, tt.want)
		}
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_API_URL", "")
	os.Unsetenv("GITHUB_API_URL")

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if creds.Token != "ghp_test" {
		t.Errorf("token = %q", creds.Token)
	}
	if creds.APIURL != "https://api.github.com" {
		t.Errorf("api url = %q", creds.APIURL)
	}
}

func TestLoadCredentialsRequiresToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	os.Unsetenv("GITHUB_TOKEN")

	if _, err := LoadCredentials(); err == nil {
		t.Fatal("missing token should fail")
	}
}
