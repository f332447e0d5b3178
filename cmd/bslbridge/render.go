package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bslbridge/bslbridge/internal/output"
	"github.com/bslbridge/bslbridge/pkg/markup"
	"github.com/urfave/cli/v2"
)

func renderCmd() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a rule description written in engine markup to HTML",
		ArgsUsage: "<file|->",
		Action:    runRenderCmd,
	}
}

func runRenderCmd(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected one description file, or - for stdin")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	var src []byte
	if name := c.Args().First(); name == "-" {
		src, err = io.ReadAll(c.App.Reader)
	} else {
		src, err = os.ReadFile(name)
	}
	if err != nil {
		return fmt.Errorf("read description: %w", err)
	}

	html := markup.NewRenderer().Render(string(src))

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	switch formatter.Format() {
	case output.FormatJSON, output.FormatTOON:
		return formatter.Output(map[string]string{"html": html})
	default:
		_, err = fmt.Fprintln(formatter.Writer(), html)
		return err
	}
}
