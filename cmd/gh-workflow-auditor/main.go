package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/Xenorf/gh-workflow-auditor/pkg/audit"
	"github.com/Xenorf/gh-workflow-auditor/pkg/config"
	"github.com/Xenorf/gh-workflow-auditor/pkg/constants"
	"github.com/Xenorf/gh-workflow-auditor/pkg/github"
	"github.com/Xenorf/gh-workflow-auditor/pkg/policies"
	"github.com/Xenorf/gh-workflow-auditor/pkg/report"
	"github.com/Xenorf/gh-workflow-auditor/pkg/resolver"
	"github.com/Xenorf/gh-workflow-auditor/pkg/rules"
)

func main() {
	app := &cli.App{
		Name:    constants.AppName,
		Version: constants.AppVersion,
		Usage:   constants.AppUsage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Entity type to scan (repo, org, user)",
				Value:   constants.EntityTypeRepo,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format (cli, json, markdown, sarif)",
			},
			&cli.StringFlag{
				Name:    "output-file",
				Aliases: []string{"f"},
				Usage:   "Output file path (if not specified, prints to stdout)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path (" + constants.DefaultConfigFileName + ")",
			},
			&cli.StringFlag{
				Name:    "policy",
				Aliases: []string{"p"},
				Usage:   "Custom Rego policy file or directory",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent repository fetches",
			},
			&cli.StringFlag{
				Name:  "min-severity",
				Usage: "Minimum severity level to report (CRITICAL, HIGH, MEDIUM, LOW, INFO)",
			},
			&cli.BoolFlag{
				Name:  "no-owner-audit",
				Usage: "Skip the post-scan action owner existence audit",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (trace, debug, info, warn, error)",
				Value: "info",
			},
		},
		ArgsUsage: "<owner/name | organization | username>",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one identifier is required, got %d", c.NArg())
	}
	identifier := c.Args().First()

	log := hclog.New(&hclog.LoggerOptions{
		Name:  constants.AppName,
		Level: hclog.LevelFromString(c.String("log-level")),
	})

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlagOverrides(c, cfg)

	entity, err := resolver.ParseEntityType(c.String("type"))
	if err != nil {
		return err
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := github.NewClient(creds.Token, creds.APIURL, log)
	if err != nil {
		return err
	}
	if err := client.ValidateToken(ctx); err != nil {
		return err
	}

	res := resolver.New(client, log, resolver.Options{
		Workers:  cfg.Scan.Workers,
		PageSize: cfg.Scan.PageSize,
	})
	engine := rules.NewEngine(rules.StandardRules(rules.Options{
		TrustedOwners: cfg.Rules.TrustedOwners,
	}), cfg)

	var ownerChecker audit.OwnerChecker
	if !c.Bool("no-owner-audit") {
		ownerChecker = client
	}
	auditor := audit.New(res, engine, ownerChecker, log)

	if policyPath := c.String("policy"); policyPath != "" {
		policyFiles, err := policies.LoadPolicyFiles(policyPath)
		if err != nil {
			return err
		}
		auditor.WithPolicies(policies.NewEngine(policyFiles))
	}

	result, runErr := auditor.Run(ctx, entity, identifier)
	if result == nil {
		return runErr
	}
	if runErr != nil {
		log.Error("scan incomplete, reporting partial results", "error", runErr)
	}

	generator := report.NewGenerator(result, cfg.Output.Format, cfg.Output.File)
	generator.MinSeverity = minSeverity(cfg.Output.MinSeverity)
	generator.ShowRemediation = cfg.Output.ShowRemediation
	if err := generator.Generate(); err != nil {
		return err
	}
	return runErr
}

// applyFlagOverrides lets command-line flags win over the config file.
func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if format := c.String("output"); format != "" {
		cfg.Output.Format = strings.ToLower(format)
	}
	if file := c.String("output-file"); file != "" {
		cfg.Output.File = file
	}
	if severity := c.String("min-severity"); severity != "" {
		cfg.Output.MinSeverity = strings.ToUpper(severity)
	}
	if workers := c.Int("workers"); workers > 0 {
		cfg.Scan.Workers = workers
	}
}

func minSeverity(value string) rules.Severity {
	severity := rules.Severity(strings.ToUpper(value))
	if _, known := rules.SeverityLevels[severity]; known {
		return severity
	}
	return rules.Info
}
