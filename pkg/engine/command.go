package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandAnalyzer runs an engine executable once per file. The file content
// is written to stdin and an Analysis document is read from stdout.
//
// Arguments may contain the placeholders {path}, {config} and {language}.
type CommandAnalyzer struct {
	Args       []string
	ConfigPath string
	Language   string
	Timeout    time.Duration
}

// NewCommandAnalyzer validates args and returns an analyzer.
func NewCommandAnalyzer(args []string, configPath, language string, timeout time.Duration) (*CommandAnalyzer, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, errors.New("engine command is empty")
	}
	return &CommandAnalyzer{Args: args, ConfigPath: configPath, Language: language, Timeout: timeout}, nil
}

// AnalyzeFile implements Analyzer.
func (c *CommandAnalyzer) AnalyzeFile(ctx context.Context, path string, content []byte) (*Analysis, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := c.expand(path)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("engine on %s: %w", path, ctxErr)
		}
		return nil, fmt.Errorf("engine on %s: %w: %s", path, err, tail(stderr.String(), 512))
	}

	var a Analysis
	if err := json.Unmarshal(stdout.Bytes(), &a); err != nil {
		return nil, fmt.Errorf("engine on %s: decode output: %w", path, err)
	}
	return &a, nil
}

// Fingerprint implements Fingerprinter. It covers the argument template, the
// configuration path and the language.
func (c *CommandAnalyzer) Fingerprint() string {
	parts := append([]string{"command"}, c.Args...)
	parts = append(parts, c.ConfigPath, c.Language)
	return strings.Join(parts, "\x00")
}

func (c *CommandAnalyzer) expand(path string) []string {
	r := strings.NewReplacer("{path}", path, "{config}", c.ConfigPath, "{language}", c.Language)
	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = r.Replace(a)
	}
	return out
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
