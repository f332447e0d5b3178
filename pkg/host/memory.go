package host

import (
	"context"
	"sort"
	"sync"

	"github.com/bslbridge/bslbridge/pkg/models"
)

// Memory records everything it receives. It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	rules    []models.RuleDefinition
	profiles []models.Profile
	issues   map[string][]models.HostIssue
	files    map[string]models.FileMeasurement
	tokens   map[string]FileTokens
	project  *models.ProjectMeasurement
}

// NewMemory returns an empty recorder.
func NewMemory() *Memory {
	return &Memory{
		issues: make(map[string][]models.HostIssue),
		files:  make(map[string]models.FileMeasurement),
		tokens: make(map[string]FileTokens),
	}
}

var _ Host = (*Memory)(nil)

func (m *Memory) PublishRules(ctx context.Context, rules []models.RuleDefinition, profiles []models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]models.RuleDefinition(nil), rules...)
	m.profiles = append([]models.Profile(nil), profiles...)
	return nil
}

func (m *Memory) ReportIssues(ctx context.Context, path string, issues []models.HostIssue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[path] = append(m.issues[path], issues...)
	return nil
}

func (m *Memory) ReportFile(ctx context.Context, fm models.FileMeasurement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fm.Path] = fm
	return nil
}

func (m *Memory) ReportTokens(ctx context.Context, t FileTokens) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.Path] = t
	return nil
}

func (m *Memory) ReportProject(ctx context.Context, pm models.ProjectMeasurement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.project = &pm
	return nil
}

// Rules returns the published rules.
func (m *Memory) Rules() []models.RuleDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules
}

// Profiles returns the published profiles.
func (m *Memory) Profiles() []models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles
}

// Issues returns the issues reported for path.
func (m *Memory) Issues(path string) []models.HostIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issues[path]
}

// AllIssues returns every reported issue ordered by path.
func (m *Memory) AllIssues() []models.HostIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.issues))
	for p := range m.issues {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var out []models.HostIssue
	for _, p := range paths {
		out = append(out, m.issues[p]...)
	}
	return out
}

// File returns the measurement reported for path.
func (m *Memory) File(path string) (models.FileMeasurement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm, ok := m.files[path]
	return fm, ok
}

// Tokens returns the tokens reported for path.
func (m *Memory) Tokens(path string) (FileTokens, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[path]
	return t, ok
}

// Project returns the reported project measurement, if any.
func (m *Memory) Project() (models.ProjectMeasurement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.project == nil {
		return models.ProjectMeasurement{}, false
	}
	return *m.project, true
}
