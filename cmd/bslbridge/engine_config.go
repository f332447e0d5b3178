package main

import (
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func engineConfigCmd() *cli.Command {
	return &cli.Command{
		Name:  "engine-config",
		Usage: "Write the engine diagnostics configuration for a profile",
		Description: `Mirrors the active profile into the engine's configuration: inactive
rules are disabled, active rules carry their parameters coerced to the
declared types. Without --write the document is printed.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "Quality profile to mirror (default from config)",
			},
			&cli.StringFlag{
				Name:    "write",
				Aliases: []string{"w"},
				Usage:   "Write the configuration to this path",
			},
		},
		Action: runEngineConfigCmd,
	}
}

func runEngineConfigCmd(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(c.Context, e)
	if err != nil {
		return err
	}
	p, err := ws.profile(c.String("profile"))
	if err != nil {
		return err
	}

	if path := c.String("write"); path != "" {
		if err := ws.writeEngineConfig(p, path); err != nil {
			return err
		}
		color.Green("Wrote engine configuration for %q to %s", p.Name, path)
		return nil
	}

	ec, err := ws.engineConfig(p)
	if err != nil {
		return err
	}
	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(ec)
}
