package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bslbridge/bslbridge/pkg/config"
	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Create a bslbridge configuration file with defaults",
		ArgsUsage: "[path]",
		Description: `Creates a bslbridge.toml configuration file in the current directory.

Examples:
  bslbridge init                            # Creates bslbridge.toml
  bslbridge init .bslbridge/bslbridge.toml  # Creates config in .bslbridge
  bslbridge init --force                    # Overwrite existing config file`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite existing config file",
			},
		},
		Action: runInitCmd,
	}
}

func runInitCmd(c *cli.Context) error {
	outputPath := "bslbridge.toml"
	if c.Args().Len() > 0 {
		outputPath = c.Args().First()
	}

	if _, err := os.Stat(outputPath); err == nil && !c.Bool("force") {
		return fmt.Errorf("config file %q already exists (use --force to overwrite)", outputPath)
	}

	if err := ensureDir(filepath.Dir(outputPath)); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", outputPath, err)
	}

	content, err := generateDefaultConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	color.Green("Created %s", outputPath)
	fmt.Fprintln(c.App.ErrWriter, "Set engine.rules_file and engine.command (or engine.reports) before running analyze.")
	return nil
}

func generateDefaultConfig() (string, error) {
	content, err := toml.Marshal(config.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to marshal config to TOML: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# bslbridge configuration\n")
	buf.WriteString("# Engine positions default to zero-based lines and columns (LSP),\n")
	buf.WriteString("# host positions to one-based lines and zero-based columns.\n\n")
	buf.Write(content)
	return buf.String(), nil
}
