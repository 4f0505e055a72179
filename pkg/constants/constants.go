// Package constants centralizes application-wide defaults.
package constants

// Application metadata.
const (
	AppName    = "gh-workflow-auditor"
	AppUsage   = "Audit GitHub Actions workflows for exploitable misconfigurations"
	AppVersion = "1.0.0"
)

// Entity types accepted on the command line.
const (
	EntityTypeRepo = "repo"
	EntityTypeOrg  = "org"
	EntityTypeUser = "user"
)

// Workflow location within a repository.
const WorkflowsPath = ".github/workflows"

// Output formats.
const (
	OutputFormatCLI      = "cli"
	OutputFormatJSON     = "json"
	OutputFormatMarkdown = "markdown"
	OutputFormatSARIF    = "sarif"
)

// Scan defaults.
const (
	DefaultWorkers  = 4
	DefaultPageSize = 100
)

// DefaultConfigFileName is looked up in the working directory when no
// config flag is given.
const DefaultConfigFileName = ".ghauditor.yml"
