package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bslbridge/bslbridge/pkg/config"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Source is a discovered source file and the module it belongs to.
type Source struct {
	Path   string
	Module string
}

// Scanner finds BSL source files in a directory.
type Scanner struct {
	config   *config.Config
	matchers []gitignore.Matcher
	// base is the directory exclusion paths are made relative to.
	base string
}

// NewScanner returns a scanner for the source dirs, suffixes and
// exclusions of cfg.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// findGitRoot walks up from start to the directory holding .git, or "".
func findGitRoot(start string) string {
	dir := start
	for {
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadExcludePatterns compiles exclude.patterns with gitignore syntax and adds
// the repository's .gitignore files when exclude.gitignore is set.
func (s *Scanner) loadExcludePatterns(root string) {
	s.matchers = nil
	s.base = root

	var patterns []gitignore.Pattern
	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}

	if s.config.Exclude.Gitignore {
		if gitRoot := findGitRoot(root); gitRoot != "" {
			if gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil); err == nil {
				patterns = append(patterns, gitPatterns...)
				s.base = gitRoot
			}
		}
	}

	if len(patterns) > 0 {
		s.matchers = append(s.matchers, gitignore.NewMatcher(patterns))
	}
}

// isExcluded checks if a path matches any exclusion pattern or excluded
// directory.
func (s *Scanner) isExcluded(path string, isDir bool) bool {
	rel, err := filepath.Rel(s.base, path)
	if err != nil || rel == "." {
		return false
	}
	if isDir {
		for _, dir := range s.config.Exclude.Dirs {
			if filepath.Base(path) == dir {
				return true
			}
		}
	} else if s.config.ShouldExclude(rel) {
		return true
	}

	pathParts := strings.Split(rel, string(filepath.Separator))
	for _, m := range s.matchers {
		if m.Match(pathParts, isDir) {
			return true
		}
	}
	return false
}

// ScanDir recursively scans a directory for files with a configured source
// suffix. Paths that escape root through symlinks are skipped.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	files := make([]string, 0, 1024)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.loadExcludePatterns(absRoot)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if s.isExcluded(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.isExcluded(path, false) || !s.config.HasSuffix(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})

	return files, walkErr
}

// Scan walks every configured source directory under root and returns the
// discovered files sorted by path, each assigned to its module. A file
// reachable from several source directories is listed once.
func (s *Scanner) Scan(root string) ([]Source, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	dirs := s.config.Analysis.SourceDirs
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	seen := make(map[string]bool)
	var out []Source
	for _, dir := range dirs {
		start := dir
		if !filepath.IsAbs(start) {
			start = filepath.Join(absRoot, dir)
		}
		if _, err := os.Stat(start); os.IsNotExist(err) {
			continue
		}
		files, err := s.ScanDir(start)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if seen[f] || !isWithinRoot(f, absRoot) {
				continue
			}
			seen[f] = true
			out = append(out, Source{Path: f, Module: s.config.ModuleFor(absRoot, f)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// isWithinRoot reports whether path stays under root after cleaning.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	// Add separator to prevent "/root2" matching "/root"
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// ScanFile reports whether a single BSL file passes the suffix and
// exclusion filters.
func (s *Scanner) ScanFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	if info.IsDir() {
		return false, nil
	}

	if s.base == "" {
		abs, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return false, err
		}
		s.loadExcludePatterns(abs)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	if s.isExcluded(abs, false) {
		return false, nil
	}

	return s.config.HasSuffix(path), nil
}

// FilterBySize drops sources larger than maxSize bytes and reports how many
// were dropped. A non-positive maxSize keeps everything.
func FilterBySize(files []Source, maxSize int64) ([]Source, int) {
	if maxSize <= 0 {
		return files, 0
	}

	filtered := make([]Source, 0, len(files))
	skipped := 0

	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil || info.Size() > maxSize {
			skipped++
			continue
		}
		filtered = append(filtered, f)
	}

	return filtered, skipped
}
