package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bslbridge/bslbridge/internal/cache"
	"github.com/bslbridge/bslbridge/internal/testutil"
	"github.com/bslbridge/bslbridge/pkg/config"
	"github.com/bslbridge/bslbridge/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestGetPaths verifies path handling from CLI arguments.
func TestGetPaths(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "no args defaults to current dir",
			args:     []string{},
			expected: []string{"."},
		},
		{
			name:     "single path",
			args:     []string{"/foo/bar"},
			expected: []string{"/foo/bar"},
		},
		{
			name:     "multiple paths",
			args:     []string{"/foo", "/bar"},
			expected: []string{"/foo", "/bar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &cli.App{
				Action: func(c *cli.Context) error {
					assert.Equal(t, tt.expected, getPaths(c))
					return nil
				},
			}
			require.NoError(t, app.Run(append([]string{"test"}, tt.args...)))
		})
	}
}

// reportFor is an engine report with one magic number diagnostic on line 2
// of the common module and one diagnostic of an inactive ACC rule.
const reportFor = `{
  "sourceDir": "",
  "fileinfos": [
    {
      "path": "src/CommonModules/Common/Ext/Module.bsl",
      "diagnostics": [
        {
          "range": {"start": {"line": 1, "character": 5}, "end": {"line": 1, "character": 7}},
          "severity": "Warning",
          "code": "MagicNumber",
          "source": "bsl-language-server",
          "message": "Magic number 42"
        },
        {
          "range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 9}},
          "severity": "Information",
          "code": "2",
          "source": "acc",
          "message": "Unused variable"
        }
      ],
      "metrics": {"procedures": 1, "functions": 0, "lines": 3, "ncloc": 3, "comments": 0,
                  "statements": 1, "nclocData": [1, 2, 3], "cognitiveComplexity": 0, "cyclomaticComplexity": 1}
    }
  ]
}`

const projectConfig = `
[engine]
rules_file = "rules.yaml"
%s

[host]
output_dir = "out"

[analysis]
source_dirs = ["src"]

[cache]
enabled = false

[reporters.acc]
enabled = true
rules_files = ["acc-rules.json"]
`

// setupProject creates a project with config and report and changes into it.
// engine holds extra keys of the [engine] table.
func setupProject(t *testing.T, engine, extraConfig string) string {
	t.Helper()
	root := testutil.Project(t)
	testutil.CreateFileTree(t, root, map[string]string{
		"bslbridge.toml": fmt.Sprintf(projectConfig, engine) + extraConfig,
		"report.json":    reportFor,
	})
	t.Chdir(root)
	return root
}

func runApp(t *testing.T, args ...string) error {
	t.Helper()
	app := newApp(io.Discard)
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	return app.RunContext(t.Context(), append([]string{"bslbridge"}, args...))
}

func readJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func TestRulesCommand(t *testing.T) {
	setupProject(t, "", "")

	require.NoError(t, runApp(t, "-f", "json", "-o", "rules.json", "rules"))
	var rules []struct {
		Key  string `json:"key"`
		Type string `json:"type"`
	}
	readJSONFile(t, "rules.json", &rules)

	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, r.Key)
	}
	assert.Contains(t, keys, "bsl-language-server:LineLength")
	assert.Contains(t, keys, "bsl-language-server:MagicNumber")
	assert.Contains(t, keys, "acc-rules:1")

	require.NoError(t, runApp(t, "-f", "json", "-o", "acc.json", "rules", "--repository", "acc-rules"))
	rules = nil
	readJSONFile(t, "acc.json", &rules)
	assert.Len(t, rules, 2)
}

func TestProfilesCommand(t *testing.T) {
	setupProject(t, "", "")

	require.NoError(t, runApp(t, "-f", "json", "-o", "profiles.json", "profiles"))
	var profiles []struct {
		Name string `json:"name"`
	}
	readJSONFile(t, "profiles.json", &profiles)

	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "Sonar way")
	assert.Contains(t, names, "BSL - all rules")
	assert.Contains(t, names, "ACC - full check")
	assert.Contains(t, names, "ACC - 1C:Compatible")

	require.NoError(t, runApp(t, "-f", "json", "-o", "sonar.json", "profiles", "--show", "Sonar way"))
	var sonar struct {
		Activations map[string]struct {
			Params map[string]string `json:"params"`
		} `json:"activations"`
	}
	readJSONFile(t, "sonar.json", &sonar)
	require.Contains(t, sonar.Activations, "bsl-language-server:LineLength")
	assert.Equal(t, "140", sonar.Activations["bsl-language-server:LineLength"].Params["maxLineLength"])

	assert.Error(t, runApp(t, "profiles", "--show", "Missing"))
}

func TestProfilesCommandAppliesOverrides(t *testing.T) {
	setupProject(t, "", `
[[profiles.overrides]]
profile = "Sonar way"
rule = "bsl-language-server:MagicNumber"
active = false
`)

	require.NoError(t, runApp(t, "-f", "json", "-o", "sonar.json", "profiles", "--show", "Sonar way"))
	var sonar struct {
		Activations map[string]json.RawMessage `json:"activations"`
	}
	readJSONFile(t, "sonar.json", &sonar)
	assert.NotContains(t, sonar.Activations, "bsl-language-server:MagicNumber")
	assert.Contains(t, sonar.Activations, "bsl-language-server:LineLength")
}

func TestAnalyzeWithReport(t *testing.T) {
	root := setupProject(t, "", "")

	require.NoError(t, runApp(t, "-f", "json", "-o", "run.json", "analyze", "--no-progress", "--report", "report.json"))

	var summary struct {
		Files   int    `json:"files"`
		Failed  int    `json:"failed"`
		Profile string `json:"profile"`
	}
	readJSONFile(t, "run.json", &summary)
	assert.Equal(t, 2, summary.Files)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, "Sonar way", summary.Profile)

	var report host.GenericReport
	readJSONFile(t, filepath.Join(root, "out", host.IssuesFile), &report)

	byRule := make(map[string]host.GenericIssue)
	for _, is := range report.Issues {
		byRule[is.EngineID+":"+is.RuleID] = is
	}
	magic, ok := byRule["bsl-language-server:MagicNumber"]
	require.True(t, ok, "issues: %+v", report.Issues)
	assert.Equal(t, 2, magic.PrimaryLocation.TextRange.StartLine)
	assert.Equal(t, 5, magic.PrimaryLocation.TextRange.StartColumn)
	assert.Equal(t, 7, magic.PrimaryLocation.TextRange.EndColumn)
	assert.Equal(t, "MINOR", magic.Severity)

	// The ACC rule is inactive in the profile but still reported externally.
	_, ok = byRule["acc-rules:2"]
	assert.True(t, ok, "external ACC issue missing: %+v", report.Issues)

	assert.FileExists(t, filepath.Join(root, "out", host.MeasuresFile))
	assert.FileExists(t, filepath.Join(root, "out", host.ProfilesFile))
	assert.FileExists(t, filepath.Join(root, "out", host.TokensFile))
}

func TestImportCommand(t *testing.T) {
	root := setupProject(t, "", "")

	require.NoError(t, runApp(t, "-o", "run.txt", "import", "--no-progress", "report.json"))
	out := testutil.ReadFile(t, "run.txt")
	assert.Contains(t, out, "BSL Analysis")
	assert.Contains(t, out, "Magic number 42")

	var report host.GenericReport
	readJSONFile(t, filepath.Join(root, "out", host.IssuesFile), &report)
	assert.NotEmpty(t, report.Issues)

	assert.Error(t, runApp(t, "import"), "import without reports")
}

func TestAnalyzeFailOnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	root := setupProject(t, `command = ["sh", "-c", "exit 3", "{path}"]`, "")

	err := runApp(t, "-o", "run.txt", "analyze", "--no-progress", "--fail-on-error")
	require.Error(t, err)
	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "got %v", err)
	assert.Equal(t, exitFilesFailed, ec.ExitCode())

	// The engine configuration mirrors the active profile.
	var ec2 map[string]any
	readJSONFile(t, filepath.Join(root, "out", "engine-config.json"), &ec2)
	assert.Contains(t, ec2, "diagnostics")

	// Without the flag a failing file does not fail the run.
	require.NoError(t, runApp(t, "-o", "run.txt", "analyze", "--no-progress"))
	assert.Contains(t, testutil.ReadFile(t, "run.txt"), "FAILED")
}

func TestAnalyzeNoEngine(t *testing.T) {
	setupProject(t, "", "")
	err := runApp(t, "analyze", "--no-progress")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no engine configured")
}

func TestAnalyzeMissingRulesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	err := runApp(t, "rules")
	require.ErrorIs(t, err, errNoEngineRules)
}

func TestInvalidConfigStopsBeforeLoading(t *testing.T) {
	setupProject(t, "", "")
	testutil.WriteFile(t, "bad.toml", "[output]\nformat = \"xml\"\n")
	err := runApp(t, "--config", "bad.toml", "rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestEngineConfigCommand(t *testing.T) {
	setupProject(t, "", "")

	require.NoError(t, runApp(t, "-o", "ec.json", "engine-config", "--profile", "Sonar way"))
	var doc struct {
		Diagnostics struct {
			Parameters map[string]any `json:"parameters"`
		} `json:"diagnostics"`
	}
	readJSONFile(t, "ec.json", &doc)
	params := doc.Diagnostics.Parameters
	assert.Equal(t, false, params["ParseError"])
	assert.Equal(t, true, params["MagicNumber"])
	assert.Equal(t, map[string]any{"maxLineLength": float64(140)}, params["LineLength"])
	assert.NotContains(t, params, "1", "reporter rules are not engine diagnostics")

	require.NoError(t, runApp(t, "engine-config", "--write", "conf/engine.json"))
	assert.FileExists(t, "conf/engine.json")
}

func TestRenderCommand(t *testing.T) {
	setupProject(t, "", "")
	testutil.WriteFile(t, "desc.md", "## Описание\n\nНе более **120** символов.\n")

	require.NoError(t, runApp(t, "-o", "desc.html", "render", "desc.md"))
	html := testutil.ReadFile(t, "desc.html")
	assert.Contains(t, html, "<strong>120</strong>")
	assert.Contains(t, html, "<h2")

	assert.Error(t, runApp(t, "render"))
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, runApp(t, "init"))
	content := testutil.ReadFile(t, "bslbridge.toml")
	assert.True(t, strings.HasPrefix(content, "# bslbridge configuration"))
	assert.Contains(t, content, "[engine]")

	cfg, err := config.Load("bslbridge.toml")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Analysis.Profile, cfg.Analysis.Profile)
	assert.Equal(t, 1, cfg.Host.LineBase)

	assert.Error(t, runApp(t, "init"), "existing file without --force")
	require.NoError(t, runApp(t, "init", "--force"))

	require.NoError(t, runApp(t, "init", filepath.Join(".bslbridge", "bslbridge.toml")))
	assert.FileExists(t, filepath.Join(dir, ".bslbridge", "bslbridge.toml"))
}

func TestVersionVariable(t *testing.T) {
	assert.NotEmpty(t, version)
	assert.Equal(t, version, newApp(io.Discard).Version)
}

func TestCacheCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	rc, err := cache.New(config.DefaultConfig().Cache.Dir, time.Hour, true)
	require.NoError(t, err)
	require.NoError(t, rc.Set("a.bsl", "h", []byte(`{}`)))
	require.NoError(t, rc.Set("b.bsl", "h", []byte(`{}`)))

	require.NoError(t, runApp(t, "-f", "json", "-o", "stats.json", "cache", "stats"))
	var stats cache.Stats
	readJSONFile(t, "stats.json", &stats)
	assert.Equal(t, 2, stats.Entries)

	require.NoError(t, runApp(t, "cache", "clear"))
	after, err := rc.Stats()
	require.NoError(t, err)
	assert.Zero(t, after.Entries)
}
