package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bslbridge/bslbridge/internal/logging"
	"github.com/bslbridge/bslbridge/internal/output"
	"github.com/bslbridge/bslbridge/pkg/config"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

// Exit codes.
const (
	exitError       = 1
	exitFilesFailed = 2
)

// getPaths returns paths from positional args, defaulting to ["."]
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"."}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stderr).RunContext(ctx, os.Args); err != nil {
		code := exitError
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		if msg := err.Error(); msg != "" {
			color.Red("Error: %v", msg)
		}
		os.Exit(code)
	}
}

func newApp(logOut io.Writer) *cli.App {
	return &cli.App{
		Name:    "bslbridge",
		Usage:   "Bridge a BSL analysis engine to a code-quality host",
		Version: version,
		Description: `bslbridge loads the rule catalogue of a 1C:Enterprise (BSL) analysis engine,
assembles quality profiles, runs the engine over source files and converts its
diagnostics and measures into host issues and metrics.`,
		Metadata: map[string]any{"logOut": logOut},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"BSLBRIDGE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the engine result cache",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		// Exit codes are handled in main so tests can run the app in-process.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			rulesCmd(),
			profilesCmd(),
			analyzeCmd(),
			importCmd(),
			renderCmd(),
			engineConfigCmd(),
			cacheCmd(),
			initCmd(),
		},
	}
}

// env bundles what every command derives from the global flags.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

// loadEnv reads the configuration named by --config (or the default
// locations), applies global flag overrides and validates the result.
func loadEnv(c *cli.Context) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if f := c.String("format"); f != "" {
		cfg.Output.Format = f
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logOut, _ := c.App.Metadata["logOut"].(io.Writer)
	if logOut == nil {
		logOut = os.Stderr
	}
	logger, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// formatter opens the output selected by --format and --output.
func (e *env) formatter(c *cli.Context) (*output.Formatter, error) {
	return output.NewFormatter(output.ParseFormat(e.cfg.Output.Format), c.String("output"), e.cfg.Output.Color)
}
