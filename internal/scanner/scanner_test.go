package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bslbridge/bslbridge/internal/testutil"
	"github.com/bslbridge/bslbridge/pkg/config"
)

func relSet(t *testing.T, root string, paths []string) map[string]bool {
	t.Helper()
	absRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		rel, _ := filepath.Rel(absRoot, p)
		out[filepath.ToSlash(rel)] = true
	}
	return out
}

func TestNewScanner(t *testing.T) {
	s := NewScanner(nil)
	if s == nil {
		t.Fatal("NewScanner(nil) returned nil")
	}
	if s.config == nil {
		t.Error("scanner.config should not be nil when passing nil")
	}

	cfg := config.DefaultConfig()
	s = NewScanner(cfg)
	if s.config != cfg {
		t.Error("scanner.config should be the provided config")
	}
}

func TestScanDir(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"CommonModules/Common/Ext/Module.bsl":  "Процедура А()\nКонецПроцедуры\n",
		"Documents/Order/Ext/ObjectModule.BSL": "\n",
		"scripts/build.os":                     "Сообщить(1);\n",
		"Documents/Order/Ext/Form.xml":         "<form/>\n",
		"README.md":                            "# readme\n",
	})

	s := NewScanner(nil)
	result, err := s.ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}

	found := relSet(t, tmpDir, result)
	if len(found) != 3 {
		t.Errorf("ScanDir() found %v, want 3 source files", found)
	}
	for _, want := range []string{
		"CommonModules/Common/Ext/Module.bsl",
		"Documents/Order/Ext/ObjectModule.BSL",
		"scripts/build.os",
	} {
		if !found[want] {
			t.Errorf("ScanDir() should find %s", want)
		}
	}
}

func TestScanDirExcludes(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"src/Module.bsl":                 "\n",
		"src/Module_generated.bsl":       "\n",
		"node_modules/pkg/Module.bsl":    "\n",
		"vendor/lib/Module.bsl":          "\n",
		".bslbridge/cache/Module.bsl":    "\n",
		"src/vendor_helpers/Helpers.bsl": "\n",
	})

	cfg := config.DefaultConfig()
	cfg.Exclude.Patterns = []string{"*_generated.bsl"}
	cfg.Exclude.Dirs = append(cfg.Exclude.Dirs, "vendor")

	result, err := NewScanner(cfg).ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}

	found := relSet(t, tmpDir, result)
	if len(found) != 2 || !found["src/Module.bsl"] || !found["src/vendor_helpers/Helpers.bsl"] {
		t.Errorf("ScanDir() = %v, want src/Module.bsl and src/vendor_helpers/Helpers.bsl", found)
	}
}

func TestScanDirWithGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		".gitignore":          "skipme\n*.tmp.bsl\n",
		"Module.bsl":          "\n",
		"skipme/Skipped.bsl":  "\n",
		"src/Scratch.tmp.bsl": "\n",
		"src/App.bsl":         "\n",
	})

	cfg := config.DefaultConfig()
	cfg.Exclude.Gitignore = true

	result, err := NewScanner(cfg).ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}

	found := relSet(t, tmpDir, result)
	if !found["Module.bsl"] || !found["src/App.bsl"] {
		t.Errorf("ScanDir() = %v, missing tracked files", found)
	}
	if found["skipme/Skipped.bsl"] || found["src/Scratch.tmp.bsl"] {
		t.Errorf("ScanDir() = %v, should honor .gitignore", found)
	}
}

func TestScanDirDisabledGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		".gitignore":         "skipme\n",
		"skipme/Skipped.bsl": "\n",
	})

	cfg := config.DefaultConfig()
	cfg.Exclude.Gitignore = false

	result, err := NewScanner(cfg).ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("ScanDir() found %d files, want 1 with gitignore disabled", len(result))
	}
}

func TestScanAssignsModules(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"src/cf/CommonModules/A/Ext/Module.bsl": "\n",
		"src/cfe/Ext/Module.bsl":                "\n",
		"tools/deploy.os":                       "\n",
	})

	cfg := config.DefaultConfig()
	cfg.Analysis.SourceDirs = []string{"src/cf", "src/cfe", "missing"}

	sources, err := NewScanner(cfg).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("Scan() found %d files, want 2", len(sources))
	}

	modules := make(map[string]string)
	for _, src := range sources {
		modules[filepath.Base(filepath.Dir(filepath.Dir(src.Path)))] = src.Module
	}
	if modules["A"] != "src/cf" {
		t.Errorf("module of src/cf file = %q, want src/cf", modules["A"])
	}
	if modules["cfe"] != "src/cfe" {
		t.Errorf("module of src/cfe file = %q, want src/cfe", modules["cfe"])
	}
}

func TestScanDeduplicatesOverlappingDirs(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"src/Module.bsl": "\n",
		"Root.bsl":       "\n",
	})

	cfg := config.DefaultConfig()
	cfg.Analysis.SourceDirs = []string{"src", "."}

	sources, err := NewScanner(cfg).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("Scan() = %v, want 2 files", sources)
	}
	// Sorted by path, so Root.bsl comes first.
	if sources[0].Module != "" || sources[1].Module != "src" {
		t.Errorf("modules = %q, %q; want \"\", src", sources[0].Module, sources[1].Module)
	}
}

func TestScanDirEmptyDirectory(t *testing.T) {
	result, err := NewScanner(nil).ScanDir(t.TempDir())
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("ScanDir() on empty dir found %d files", len(result))
	}
}

func TestScanFile(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"Module.bsl": "\n",
		"Form.xml":   "<form/>\n",
	})

	tests := []struct {
		name string
		want bool
	}{
		{"Module.bsl", true},
		{"Form.xml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewScanner(nil).ScanFile(filepath.Join(tmpDir, tt.name))
			if err != nil {
				t.Fatalf("ScanFile() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ScanFile(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	ok, err := NewScanner(nil).ScanFile(tmpDir)
	if err != nil || ok {
		t.Errorf("ScanFile(dir) = %v, %v; want false, nil", ok, err)
	}
}

func TestScanFileNonExistent(t *testing.T) {
	if _, err := NewScanner(nil).ScanFile("/nonexistent/Module.bsl"); err == nil {
		t.Error("ScanFile() should return error for non-existent file")
	}
}

func TestFilterBySize(t *testing.T) {
	tmpDir := t.TempDir()
	small := filepath.Join(tmpDir, "Small.bsl")
	large := filepath.Join(tmpDir, "Large.bsl")
	if err := os.WriteFile(small, make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(large, make([]byte, 2000), 0644); err != nil {
		t.Fatal(err)
	}
	files := []Source{{Path: small}, {Path: large}, {Path: filepath.Join(tmpDir, "Gone.bsl")}}

	tests := []struct {
		name        string
		maxSize     int64
		wantFiles   int
		wantSkipped int
	}{
		{"no limit", 0, 3, 0},
		{"limit excludes large and missing", 1000, 1, 2},
		{"limit includes all existing", 5000, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered, skipped := FilterBySize(files, tt.maxSize)
			if len(filtered) != tt.wantFiles {
				t.Errorf("FilterBySize() returned %d files, want %d", len(filtered), tt.wantFiles)
			}
			if skipped != tt.wantSkipped {
				t.Errorf("FilterBySize() skipped %d, want %d", skipped, tt.wantSkipped)
			}
		})
	}
}

func TestIsWithinRoot(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"same path", tmpDir, true},
		{"child path", filepath.Join(tmpDir, "src", "Module.bsl"), true},
		{"path outside root", "/some/other/path", false},
		{"parent path", filepath.Dir(tmpDir), false},
		{"similar prefix but different dir", tmpDir + "2/Module.bsl", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWithinRoot(tt.path, tmpDir); got != tt.want {
				t.Errorf("isWithinRoot(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFindGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	if result := findGitRoot(tmpDir); result != "" {
		t.Errorf("findGitRoot() on non-git dir should return empty string, got %q", result)
	}

	if err := os.Mkdir(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatalf("Failed to create .git dir: %v", err)
	}
	subDir := filepath.Join(tmpDir, "src", "cf")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}

	if result := findGitRoot(subDir); result != tmpDir {
		t.Errorf("findGitRoot() from subdir should return %q, got %q", tmpDir, result)
	}
}

func TestScanDirWithUnresolvableSymlink(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Symlink("/nonexistent/path/Module.bsl", filepath.Join(tmpDir, "Dangling.bsl")); err != nil {
		t.Skip("Symlinks not supported on this system")
	}
	testutil.CreateFileTree(t, tmpDir, map[string]string{"Real.bsl": "\n"})

	result, err := NewScanner(nil).ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("ScanDir() should find 1 file (skipping dangling symlink), got %d", len(result))
	}
}

func TestScanDirWithSymlinkOutsideRoot(t *testing.T) {
	tmpDir := t.TempDir()
	outside := t.TempDir()
	testutil.CreateFileTree(t, outside, map[string]string{"Outside.bsl": "\n"})
	testutil.CreateFileTree(t, tmpDir, map[string]string{"Inside.bsl": "\n"})

	if err := os.Symlink(filepath.Join(outside, "Outside.bsl"), filepath.Join(tmpDir, "Linked.bsl")); err != nil {
		t.Skip("Symlinks not supported on this system")
	}

	result, err := NewScanner(nil).ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	for _, f := range result {
		if filepath.Base(f) == "Linked.bsl" {
			t.Error("ScanDir() should not follow symlinks outside the root directory")
		}
	}
}
