package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

// Document is the canonical in-memory representation of one GitHub Actions
// workflow definition. It is produced by Parse and is never mutated by the
// rule engine.
type Document struct {
	Repository  string // owner/name, set by the caller after parsing
	Path        string
	Name        string
	Triggers    []Trigger
	Permissions Permissions
	Env         map[string]string
	Jobs        []Job // document order
	Warnings    []string
}

// Trigger is one normalized entry of the workflow's "on" block.
type Trigger struct {
	Kind   string
	Config map[string]interface{}
	Line   int
}

// Access is the canonical permission level for a scope.
type Access string

const (
	AccessRead  Access = "read"
	AccessWrite Access = "write"
	AccessNone  Access = "none"
)

// Permissions is the canonical form of a workflow- or job-level permissions
// block. The YAML shorthand strings read-all/write-all/none map onto All;
// per-scope mappings fill Scopes. Declared false means the block was absent,
// which GitHub treats as the broad default token.
type Permissions struct {
	Declared bool
	All      Access
	Scopes   map[string]Access
}

// Job is one entry of the workflow's "jobs" mapping, in document order.
type Job struct {
	ID          string
	Name        string
	RunsOn      []string
	Permissions *Permissions
	Needs       []string
	If          string
	Env         map[string]string
	Steps       []Step
	Line        int
}

// SelfHosted reports whether the job explicitly targets a self-hosted
// runner. Labels produced by unresolvable expressions do not count, so a
// matrix-driven runs-on never classifies as self-hosted.
func (j Job) SelfHosted() bool {
	for _, label := range j.RunsOn {
		if label == "self-hosted" {
			return true
		}
	}
	return false
}

// Step is one step of a job. A step is either an action step (Uses set) or
// a run step (Run set); GitHub rejects workflows declaring both.
type Step struct {
	Index int
	ID    string
	Name  string
	If    string
	Uses  string
	Run   string
	Shell string
	With  map[string]string
	Env   map[string]string
	Line  int
}

// IsRun reports whether the step executes inline shell.
func (s Step) IsRun() bool { return s.Run != "" }

// IsAction reports whether the step invokes a reusable action.
func (s Step) IsAction() bool { return s.Uses != "" }

// HasTrigger reports whether the document declares any of the given trigger
// kinds.
func (d *Document) HasTrigger(kinds ...string) bool {
	for _, trigger := range d.Triggers {
		for _, kind := range kinds {
			if trigger.Kind == kind {
				return true
			}
		}
	}
	return false
}

// rawWorkflow is the permissive YAML shape. Triggers, permissions and jobs
// are kept as nodes because they accept several shorthand forms and because
// mapping order and line numbers must survive normalization.
type rawWorkflow struct {
	Name        string            `yaml:"name"`
	On          yaml.Node         `yaml:"on"`
	Permissions yaml.Node         `yaml:"permissions"`
	Env         map[string]string `yaml:"env"`
	Jobs        yaml.Node         `yaml:"jobs"`
}

type rawJob struct {
	Name        string            `yaml:"name"`
	RunsOn      yaml.Node         `yaml:"runs-on"`
	Permissions yaml.Node         `yaml:"permissions"`
	Needs       yaml.Node         `yaml:"needs"`
	If          string            `yaml:"if"`
	Env         map[string]string `yaml:"env"`
	Steps       yaml.Node         `yaml:"steps"`
}

type rawStep struct {
	ID    string                 `yaml:"id"`
	Name  string                 `yaml:"name"`
	If    string                 `yaml:"if"`
	Uses  string                 `yaml:"uses"`
	Run   string                 `yaml:"run"`
	Shell string                 `yaml:"shell"`
	With  map[string]interface{} `yaml:"with"`
	Env   map[string]string      `yaml:"env"`
}

// Parse converts raw workflow YAML into the canonical Document. Unknown
// top-level keys are ignored for forward compatibility; a missing or empty
// jobs mapping is a parse error tagged with the offending path. A dangling
// needs reference is recorded as a warning, not an error.
func Parse(content []byte) (*Document, error) {
	var raw rawWorkflow
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, errors.NewParseError("invalid workflow YAML", err, "")
	}

	doc := &Document{
		Name: raw.Name,
		Env:  raw.Env,
	}

	triggers, warnings, err := normalizeTriggers(&raw.On)
	if err != nil {
		return nil, err
	}
	doc.Triggers = triggers
	doc.Warnings = append(doc.Warnings, warnings...)

	permissions, err := normalizePermissions(&raw.Permissions, "permissions")
	if err != nil {
		return nil, err
	}
	doc.Permissions = permissions

	jobs, warnings, err := normalizeJobs(&raw.Jobs)
	if err != nil {
		return nil, err
	}
	doc.Jobs = jobs
	doc.Warnings = append(doc.Warnings, warnings...)

	return doc, nil
}

// isZeroNode reports whether the node was never populated by decoding.
func isZeroNode(node *yaml.Node) bool {
	return node == nil || node.Kind == 0
}

func nodeTypeError(path string, node *yaml.Node) error {
	return errors.NewParseError(
		fmt.Sprintf("unexpected YAML node for %s at line %d", path, node.Line),
		nil,
		path,
	)
}
