// Package testutil holds file helpers and BSL project fixtures shared by
// package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// RulesDump is a small engine rules dump with two rules and one preset.
const RulesDump = `repository:
  key: bsl-language-server
  name: BSL Language Server
  language: bsl
  engine_id: bsl-language-server
rules:
  - code: LineLength
    name: Line length
    description: "Line is longer than **maxLineLength**"
    type: CODE_SMELL
    severity: MINOR
    minutes_to_fix: 1
    activated_by_default: true
    parameters:
      - key: maxLineLength
        type: Integer
        default_value: "120"
  - code: MagicNumber
    name: Magic number
    description: "Avoid magic numbers"
    type: CODE_SMELL
    severity: MINOR
    minutes_to_fix: 1
    activated_by_default: true
  - code: ParseError
    name: Parse error
    type: ERROR
    severity: CRITICAL
    minutes_to_fix: 5
    point_span: line
profiles:
  - name: Sonar way
    rules:
      - rule: LineLength
        params:
          maxLineLength: "140"
      - rule: MagicNumber
`

// ACCRules is an ACC reporter rules file in JSON form.
const ACCRules = `{
  "rules": [
    {"code": "1", "name": "Module structure", "description": "<p>Keep the standard module structure</p>",
     "type": "CODE_SMELL", "severity": "MAJOR", "active": true, "needForCertificate": true, "effortMinutes": 2},
    {"code": "2", "name": "Unused variable", "type": "CODE_SMELL", "severity": "MINOR", "active": false, "effortMinutes": 1}
  ]
}`

// Module is a BSL module with a magic number on line 2 (one-based).
const Module = "Процедура Тест()\n\tА = 42;\nКонецПроцедуры\n"

// WriteFile writes content to a file, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// ReadFile reads content from a file.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// CreateFileTree creates multiple files from a map of path -> content.
func CreateFileTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		WriteFile(t, filepath.Join(root, name), content)
	}
}

// Project lays out a BSL project under a temp dir: a rules dump, an ACC
// rules file and two modules under src/. It returns the project root.
func Project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	CreateFileTree(t, root, map[string]string{
		"rules.yaml":     RulesDump,
		"acc-rules.json": ACCRules,
	})
	CreateFileTree(t, filepath.Join(root, "src"), map[string]string{
		"CommonModules/Common/Ext/Module.bsl":  Module,
		"Documents/Order/Ext/ObjectModule.bsl": "Процедура ПередЗаписью(Отказ)\nКонецПроцедуры\n",
	})
	return root
}
