// Package shell provides structural analysis of run-step scripts. It parses
// commands with mvdan.cc/sh instead of matching strings so that comments,
// heredoc bodies and quoting do not confuse the rules.
package shell

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Parse parses a script as POSIX-compatible shell.
func Parse(script string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	return parser.Parse(strings.NewReader(script), "")
}

// ExecutesCommands reports whether the script contains at least one command
// invocation. A script that is empty or consists only of comments and
// variable assignments does not execute anything. Scripts that fail to parse
// are treated as executing: the runner will still hand them to a shell.
func ExecutesCommands(script string) bool {
	if strings.TrimSpace(script) == "" {
		return false
	}

	file, err := Parse(script)
	if err != nil {
		return true
	}

	executes := false
	syntax.Walk(file, func(node syntax.Node) bool {
		if executes {
			return false
		}
		if call, ok := node.(*syntax.CallExpr); ok && len(call.Args) > 0 {
			executes = true
			return false
		}
		return true
	})
	return executes
}

// ReferencedVariables returns the names of shell variables the script reads,
// in first-use order. $VAR and ${VAR} forms both count; GitHub expression
// interpolations are not shell variables and are ignored.
func ReferencedVariables(script string) []string {
	file, err := Parse(script)
	if err != nil {
		return nil
	}

	var names []string
	seen := make(map[string]bool)
	syntax.Walk(file, func(node syntax.Node) bool {
		if param, ok := node.(*syntax.ParamExp); ok && param.Param != nil {
			name := param.Param.Value
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		return true
	})
	return names
}

// ReferencesVariable reports whether the script reads the given variable.
func ReferencesVariable(script, name string) bool {
	for _, ref := range ReferencedVariables(script) {
		if ref == name {
			return true
		}
	}
	return false
}
