package models

// Metric keys produced by the engine and understood by the default registry.
const (
	MetricNcloc                  = "ncloc"
	MetricLines                  = "lines"
	MetricFiles                  = "files"
	MetricStatements             = "statements"
	MetricFunctions              = "functions"
	MetricComplexity             = "complexity"
	MetricCognitiveComplexity    = "cognitive_complexity"
	MetricCommentLines           = "comment_lines"
	MetricNestingDepth           = "nesting_depth"
	MetricComplexityMax          = "complexity_max"
	MetricCommentLinesDensity    = "comment_lines_density"
	MetricDuplicatedLinesDensity = "duplicated_lines_density"
)

// EngineMetrics lists the measures the engine declares for every file.
var EngineMetrics = []string{
	MetricNcloc,
	MetricLines,
	MetricStatements,
	MetricFunctions,
	MetricComplexity,
	MetricCognitiveComplexity,
	MetricCommentLines,
	MetricNestingDepth,
	MetricComplexityMax,
	MetricCommentLinesDensity,
}

// FileMeasurement holds the engine's numeric measurements for one file.
// CodeLines lists the 1-based lines containing code.
type FileMeasurement struct {
	Path      string             `json:"path"`
	Module    string             `json:"module,omitempty"`
	Values    map[string]float64 `json:"values"`
	CodeLines []int              `json:"code_lines,omitempty"`
}

// ProjectMeasurement is the batch-level rollup of file measurements.
type ProjectMeasurement struct {
	Files   int                           `json:"files"`
	Values  map[string]float64            `json:"values"`
	Modules map[string]map[string]float64 `json:"modules,omitempty"`
}
