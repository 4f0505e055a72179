package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

// normalizeTriggers resolves the three accepted shapes of the "on" block:
// a bare event string, a sequence of event strings, and a mapping from event
// to configuration. Trigger kinds are unique per document; a duplicate kind
// keeps the first occurrence and records a warning.
func normalizeTriggers(node *yaml.Node) ([]Trigger, []string, error) {
	if isZeroNode(node) {
		return nil, nil, errors.NewParseError("workflow declares no trigger", nil, "on")
	}

	var warnings []string
	seen := make(map[string]bool)
	var triggers []Trigger

	add := func(kind string, config map[string]interface{}, line int) {
		if seen[kind] {
			warnings = append(warnings, fmt.Sprintf("duplicate trigger %q ignored", kind))
			return
		}
		seen[kind] = true
		triggers = append(triggers, Trigger{Kind: kind, Config: config, Line: line})
	}

	switch node.Kind {
	case yaml.ScalarNode:
		add(node.Value, nil, node.Line)

	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, nil, nodeTypeError("on", item)
			}
			add(item.Value, nil, item.Line)
		}

	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			var config map[string]interface{}
			if value.Kind == yaml.MappingNode {
				if err := value.Decode(&config); err != nil {
					return nil, nil, errors.NewParseError("invalid trigger configuration", err, "on."+key.Value)
				}
			}
			add(key.Value, config, key.Line)
		}

	default:
		return nil, nil, nodeTypeError("on", node)
	}

	return triggers, warnings, nil
}

// normalizePermissions resolves the bare-string shorthand (read-all,
// write-all, none) and the per-scope mapping into the canonical Permissions
// shape. An absent block stays undeclared.
func normalizePermissions(node *yaml.Node, path string) (Permissions, error) {
	if isZeroNode(node) || node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return Permissions{}, nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Value {
		case "read-all":
			return Permissions{Declared: true, All: AccessRead}, nil
		case "write-all":
			return Permissions{Declared: true, All: AccessWrite}, nil
		case "none", "{}":
			return Permissions{Declared: true, All: AccessNone}, nil
		default:
			return Permissions{}, errors.NewParseError(
				fmt.Sprintf("unknown permissions shorthand %q", node.Value), nil, path)
		}

	case yaml.MappingNode:
		scopes := make(map[string]Access, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			switch Access(value.Value) {
			case AccessRead, AccessWrite, AccessNone:
				scopes[key.Value] = Access(value.Value)
			default:
				return Permissions{}, errors.NewParseError(
					fmt.Sprintf("invalid access level %q", value.Value), nil, path+"."+key.Value)
			}
		}
		return Permissions{Declared: true, Scopes: scopes}, nil
	}

	return Permissions{}, nodeTypeError(path, node)
}

// normalizeJobs decodes the jobs mapping in document order. At least one job
// is structurally required. Job ids are unique by YAML mapping semantics;
// dangling needs references are reported as warnings.
func normalizeJobs(node *yaml.Node) ([]Job, []string, error) {
	if isZeroNode(node) {
		return nil, nil, errors.NewParseError("workflow has no jobs", nil, "jobs")
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil, nodeTypeError("jobs", node)
	}
	if len(node.Content) == 0 {
		return nil, nil, errors.NewParseError("jobs mapping is empty", nil, "jobs")
	}

	var warnings []string
	jobs := make([]Job, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		jobPath := "jobs." + key.Value

		var raw rawJob
		if err := value.Decode(&raw); err != nil {
			return nil, nil, errors.NewParseError("invalid job definition", err, jobPath)
		}

		job := Job{
			ID:   key.Value,
			Name: raw.Name,
			If:   raw.If,
			Env:  raw.Env,
			Line: key.Line,
		}

		labels, err := normalizeRunsOn(&raw.RunsOn, jobPath+".runs-on")
		if err != nil {
			return nil, nil, err
		}
		job.RunsOn = labels

		if !isZeroNode(&raw.Permissions) {
			permissions, err := normalizePermissions(&raw.Permissions, jobPath+".permissions")
			if err != nil {
				return nil, nil, err
			}
			job.Permissions = &permissions
		}

		needs, err := normalizeNeeds(&raw.Needs, jobPath+".needs")
		if err != nil {
			return nil, nil, err
		}
		job.Needs = needs

		steps, err := normalizeSteps(&raw.Steps, jobPath+".steps")
		if err != nil {
			return nil, nil, err
		}
		job.Steps = steps

		jobs = append(jobs, job)
	}

	ids := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		ids[job.ID] = true
	}
	for _, job := range jobs {
		for _, need := range job.Needs {
			if !ids[need] {
				warnings = append(warnings,
					fmt.Sprintf("job %q needs unknown job %q", job.ID, need))
			}
		}
	}

	return jobs, warnings, nil
}

// normalizeSteps decodes the step sequence, keeping order and source lines.
func normalizeSteps(node *yaml.Node, path string) ([]Step, error) {
	if isZeroNode(node) {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, nodeTypeError(path, node)
	}

	steps := make([]Step, 0, len(node.Content))
	for index, item := range node.Content {
		var raw rawStep
		if err := item.Decode(&raw); err != nil {
			return nil, errors.NewParseError("invalid step definition", err,
				fmt.Sprintf("%s[%d]", path, index))
		}
		steps = append(steps, Step{
			Index: index,
			ID:    raw.ID,
			Name:  raw.Name,
			If:    raw.If,
			Uses:  raw.Uses,
			Run:   raw.Run,
			Shell: raw.Shell,
			With:  stringifyWith(raw.With),
			Env:   raw.Env,
			Line:  item.Line,
		})
	}
	return steps, nil
}

// normalizeRunsOn accepts a bare label, a sequence of labels, or the group
// form {group, labels}. Expression labels are kept verbatim; they simply
// never match the self-hosted marker.
func normalizeRunsOn(node *yaml.Node, path string) ([]string, error) {
	if isZeroNode(node) {
		return nil, nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, nil

	case yaml.SequenceNode:
		labels := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			labels = append(labels, item.Value)
		}
		return labels, nil

	case yaml.MappingNode:
		var group struct {
			Group  string    `yaml:"group"`
			Labels yaml.Node `yaml:"labels"`
		}
		if err := node.Decode(&group); err != nil {
			return nil, errors.NewParseError("invalid runs-on block", err, path)
		}
		labels, err := normalizeRunsOn(&group.Labels, path+".labels")
		if err != nil {
			return nil, err
		}
		if group.Group != "" {
			labels = append(labels, "group:"+group.Group)
		}
		return labels, nil
	}

	return nil, nodeTypeError(path, node)
}

func normalizeNeeds(node *yaml.Node, path string) ([]string, error) {
	if isZeroNode(node) {
		return nil, nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return []string{node.Value}, nil

	case yaml.SequenceNode:
		needs := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			needs = append(needs, item.Value)
		}
		return needs, nil
	}

	return nil, nodeTypeError(path, node)
}

// stringifyWith flattens scalar action inputs to strings. Non-scalar inputs
// (nested mappings, lists) are rare and are rendered with %v; rules only
// inspect expression text, so the exact rendering of composites is not
// significant.
func stringifyWith(with map[string]interface{}) map[string]string {
	if len(with) == 0 {
		return nil
	}
	out := make(map[string]string, len(with))
	for key, value := range with {
		switch v := value.(type) {
		case string:
			out[key] = v
		default:
			out[key] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
