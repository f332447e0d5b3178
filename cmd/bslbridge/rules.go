package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bslbridge/bslbridge/internal/output"
	"github.com/bslbridge/bslbridge/pkg/models"
	"github.com/urfave/cli/v2"
)

func rulesCmd() *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "List the rule catalogue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repository",
				Aliases: []string{"r"},
				Usage:   "Only list rules of this repository",
			},
			&cli.StringFlag{
				Name:  "tag",
				Usage: "Only list rules carrying this tag",
			},
		},
		Action: runRulesCmd,
	}
}

func runRulesCmd(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(c.Context, e)
	if err != nil {
		return err
	}

	repo := c.String("repository")
	tag := c.String("tag")
	var rules []models.RuleDefinition
	for _, r := range ws.catalog.Rules() {
		if repo != "" && r.Key.Repository != repo {
			continue
		}
		if tag != "" && !r.HasTag(tag) {
			continue
		}
		rules = append(rules, r)
	}

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		sev := string(r.DefaultSeverity)
		if formatter.Colored() {
			sev = output.SeverityColor(sev, sev)
		}
		rows = append(rows, []string{
			r.Key.String(),
			r.Name,
			string(r.Type),
			sev,
			formatEffort(r.Remediation),
			strings.Join(r.Tags, ","),
		})
	}

	table := output.NewTable(
		"Rules",
		[]string{"Key", "Name", "Type", "Severity", "Effort", "Tags"},
		rows,
		[]string{"Total", fmt.Sprintf("%d", len(rules)), "", "", "", ""},
		rules,
	)
	return formatter.Output(table)
}

func formatEffort(r models.Remediation) string {
	switch r.Function {
	case models.RemediationLinear:
		return fmt.Sprintf("%gmin/unit", r.BaseMinutes)
	case models.RemediationLinearOffset:
		return fmt.Sprintf("%gmin + %gmin/unit", r.BaseMinutes, r.PerUnitMinutes)
	default:
		return fmt.Sprintf("%gmin", r.BaseMinutes)
	}
}

func profilesCmd() *cli.Command {
	return &cli.Command{
		Name:  "profiles",
		Usage: "List assembled quality profiles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "show",
				Aliases: []string{"s"},
				Usage:   "Show the activations of one profile",
			},
		},
		Action: runProfilesCmd,
	}
}

func runProfilesCmd(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(c.Context, e)
	if err != nil {
		return err
	}

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if name := c.String("show"); name != "" {
		p, err := ws.profiles.Require(name)
		if err != nil {
			return err
		}
		return formatter.Output(activationTable(ws, p))
	}

	profiles := ws.profiles.All()
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		marker := ""
		if p.Name == e.cfg.Analysis.Profile {
			marker = "*"
		}
		rows = append(rows, []string{marker, p.Name, p.Language, fmt.Sprintf("%d", len(p.Activations))})
	}
	table := output.NewTable(
		"Quality Profiles",
		[]string{"", "Name", "Language", "Rules"},
		rows,
		nil,
		profiles,
	)
	return formatter.Output(table)
}

func activationTable(ws *workspace, p models.Profile) *output.Table {
	keys := p.Keys()
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		act, _ := p.Activation(key)
		rule, _ := ws.catalog.Rule(key)

		sev := ""
		if rule != nil {
			sev = string(rule.DefaultSeverity)
		}
		if act.Severity != nil {
			sev = string(*act.Severity)
		}

		params := make([]string, 0, len(act.Params))
		for k, v := range act.Params {
			params = append(params, k+"="+v)
		}
		sort.Strings(params)

		rows = append(rows, []string{key.String(), sev, strings.Join(params, " ")})
	}
	return output.NewTable(
		p.Name,
		[]string{"Rule", "Severity", "Parameters"},
		rows,
		[]string{"Total", "", fmt.Sprintf("%d", len(rows))},
		p,
	)
}
