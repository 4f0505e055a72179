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
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Xenorf/gh-workflow-auditor/pkg/constants"
	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

// Config is the file-based configuration. Every field has a working
// default; the file only overrides.
type Config struct {
	Version string `yaml:"version"`
	Rules   Rules  `yaml:"rules"`
	Output  Output `yaml:"output"`
	Scan    Scan   `yaml:"scan"`
}

// Rules controls which rules run and which action owners are trusted.
type Rules struct {
	// Enabled limits evaluation to the listed rule IDs. Empty means all.
	Enabled []string `yaml:"enabled"`
	// Disabled turns off the listed rule IDs. Takes precedence over
	// Enabled.
	Disabled []string `yaml:"disabled"`
	// TrustedOwners extends the trusted action namespaces beyond the
	// GitHub-owned defaults.
	TrustedOwners []string `yaml:"trusted_owners"`
}

// Output controls report rendering.
type Output struct {
	Format          string `yaml:"format"`       // cli, json, markdown, sarif
	File            string `yaml:"file"`         // empty writes to stdout
	MinSeverity     string `yaml:"min_severity"` // INFO and up by default
	ShowRemediation bool   `yaml:"show_remediation"`
}

// Scan controls traversal behavior.
type Scan struct {
	Workers  int `yaml:"workers"`
	PageSize int `yaml:"page_size"`
}

// Credentials are read from the environment, never from the config file.
type Credentials struct {
	Token  string `env:"GITHUB_TOKEN,required"`
	APIURL string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version: "1",
		Output: Output{
			Format:          constants.OutputFormatCLI,
			MinSeverity:     "INFO",
			ShowRemediation: true,
		},
		Scan: Scan{
			Workers:  constants.DefaultWorkers,
			PageSize: constants.DefaultPageSize,
		},
	}
}

// Load reads a config file over the defaults. An empty path tries the
// default file name and falls back to pure defaults when it does not exist;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = constants.DefaultConfigFileName
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, errors.NewConfigError(fmt.Sprintf("cannot read config file %s", path), err)
	}

	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("invalid config file %s", path), err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCredentials parses the token and endpoint from the environment.
func LoadCredentials() (*Credentials, error) {
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return nil, errors.NewConfigError("missing or invalid environment credentials", err)
	}
	return &creds, nil
}

func (c *Config) validate() error {
	switch c.Output.Format {
	case constants.OutputFormatCLI, constants.OutputFormatJSON,
		constants.OutputFormatMarkdown, constants.OutputFormatSARIF:
	default:
		return errors.NewConfigError(
			fmt.Sprintf("unknown output format %q", c.Output.Format), nil)
	}
	if c.Scan.Workers < 0 || c.Scan.PageSize < 0 {
		return errors.NewConfigError("scan.workers and scan.page_size must be positive", nil)
	}
	return nil
}

// IsRuleEnabled applies the enabled/disabled lists. Disabled wins; an empty
// enabled list means every rule runs.
func (c *Config) IsRuleEnabled(ruleID string) bool {
	for _, disabled := range c.Rules.Disabled {
		if disabled == ruleID {
			return false
		}
	}
	if len(c.Rules.Enabled) == 0 {
		return true
	}
	for _, enabled := range c.Rules.Enabled {
		if enabled == ruleID {
			return true
		}
	}
	return false
}
