// Package complexity estimates the cost of a SPARQL query from its text so
// callers can refuse expensive queries before running them.
package complexity

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/exocortex/exoql/pkg/errors"
)

// TimeClass is a coarse asymptotic running time in the dataset size n.
type TimeClass int

const (
	Constant TimeClass = iota
	Logarithmic
	Linear
	Linearithmic
	Quadratic
	Cubic
	Exponential
)

var timeClassNames = []string{"O(1)", "O(log n)", "O(n)", "O(n log n)", "O(n^2)", "O(n^3)", "O(2^n)"}

func (c TimeClass) String() string {
	if c < 0 || int(c) >= len(timeClassNames) {
		return "unknown"
	}
	return timeClassNames[c]
}

// ParseTimeClass parses the notation String produces.
func ParseTimeClass(s string) (TimeClass, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "²", "^2")
	for i, name := range timeClassNames {
		if strings.EqualFold(name, normalized) {
			return TimeClass(i), nil
		}
	}
	return 0, errors.New(errors.CodeConfigValidateInvalidValue, "unknown time complexity class",
		errors.Field("class", s))
}

func (c TimeClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *TimeClass) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// RiskLevel grades a report for humans.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Thresholds bound what the analyzer allows.
type Thresholds struct {
	MaxCost           int           `yaml:"max_cost" json:"max_cost"`
	MaxTriplePatterns int           `yaml:"max_triple_patterns" json:"max_triple_patterns"`
	MaxJoinComplexity int           `yaml:"max_join_complexity" json:"max_join_complexity"`
	MaxSubqueryDepth  int           `yaml:"max_subquery_depth" json:"max_subquery_depth"`
	MaxMemoryBytes    uint64        `yaml:"max_memory_bytes" json:"max_memory_bytes"`
	MaxExecutionTime  time.Duration `yaml:"max_execution_time" json:"max_execution_time"`
	MaxTimeClass      TimeClass     `yaml:"max_time_class" json:"max_time_class"`
}

// DefaultThresholds returns the limits used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxCost:           1000,
		MaxTriplePatterns: 50,
		MaxJoinComplexity: 25,
		MaxSubqueryDepth:  3,
		MaxMemoryBytes:    100 << 20,
		MaxExecutionTime:  30 * time.Second,
		MaxTimeClass:      Linearithmic,
	}
}

// Sizing assumptions behind the memory and time estimates.
const (
	assumedDatasetSize = 10_000
	bytesPerBinding    = 100
)

// Analyzer checks queries against thresholds. It never executes a query.
type Analyzer struct {
	thresholds Thresholds
}

func NewAnalyzer(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// Thresholds returns the limits the analyzer enforces.
func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

// Analyze estimates the cost of query and checks it against the thresholds.
// Text that is not valid SPARQL is still analyzed on a best-effort basis.
func (a *Analyzer) Analyze(query string) *Report {
	m := measure(tokenize(query))

	r := &Report{
		Metrics:         m,
		Cost:            cost(m),
		TimeClass:       timeClass(m),
		Violations:      []string{},
		Recommendations: []string{},
	}
	r.EstimatedMemoryBytes = resultRows(r.TimeClass) * uint64(max(1, m.Variables)) * bytesPerBinding
	r.EstimatedDuration = estimatedDuration(estimatedRows(r.TimeClass), r.Cost)
	r.EstimatedDurationMs = r.EstimatedDuration.Milliseconds()

	a.check(r)
	r.Allowed = len(r.Violations) == 0
	r.Risk = a.risk(r)
	return r
}

func cost(m Metrics) int {
	c := 10*m.TriplePatterns +
		15*m.JoinComplexity +
		5*m.Filters +
		25*m.ExpensiveFilters +
		20*m.Optionals +
		15*m.Unions +
		20*m.Minus +
		50*m.SubqueryDepth +
		10*m.PropertyPaths +
		100*m.UnboundedPaths +
		10*m.Aggregates +
		200*m.CartesianProducts
	if m.HasOrderBy {
		c += 20
	}
	if m.HasGroupBy {
		c += 15
	}
	if m.HasDistinct {
		c += 10
	}
	return c
}

func timeClass(m Metrics) TimeClass {
	if m.TriplePatterns == 0 {
		return Constant
	}
	switch power := m.CartesianProducts + m.UnboundedPaths; {
	case power >= 2:
		return Cubic
	case power == 1:
		return Quadratic
	}
	if m.JoinComplexity > 0 || m.HasOrderBy || m.HasGroupBy || m.HasDistinct {
		return Linearithmic
	}
	if m.maxPatternVariables <= 1 {
		return Logarithmic
	}
	return Linear
}

func estimatedRows(c TimeClass) uint64 {
	n := uint64(assumedDatasetSize)
	logN := uint64(math.Ceil(math.Log2(float64(n))))
	switch c {
	case Constant:
		return 1
	case Logarithmic:
		return logN
	case Linear:
		return n
	case Linearithmic:
		return n * logN
	case Quadratic:
		return n * n
	default:
		return n * n * n
	}
}

// resultRows is the number of solutions held at once. Sorting, grouping and
// connected joins cost n log n steps but still hold at most n solutions.
func resultRows(c TimeClass) uint64 {
	if c == Linearithmic {
		return assumedDatasetSize
	}
	return estimatedRows(c)
}

// estimatedDuration assumes a microsecond per row, scaled up by cost.
func estimatedDuration(rows uint64, cost int) time.Duration {
	us := float64(rows) * float64(100+cost) / 100
	ns := us * float64(time.Microsecond)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

func (a *Analyzer) check(r *Report) {
	th, m := a.thresholds, r.Metrics
	violate := func(msg string, recommendations ...string) {
		r.Violations = append(r.Violations, msg)
		for _, rec := range recommendations {
			if !contains(r.Recommendations, rec) {
				r.Recommendations = append(r.Recommendations, rec)
			}
		}
	}

	if m.TriplePatterns > th.MaxTriplePatterns {
		violate(fmt.Sprintf("query has %d triple patterns, limit is %d", m.TriplePatterns, th.MaxTriplePatterns),
			"Split the query into smaller queries or drop triple patterns that do not narrow the result")
	}
	if m.JoinComplexity > th.MaxJoinComplexity {
		violate(fmt.Sprintf("join complexity %d exceeds limit %d", m.JoinComplexity, th.MaxJoinComplexity),
			"Reduce the number of variables shared between patterns, or bind some of them to constants")
	}
	if m.SubqueryDepth > th.MaxSubqueryDepth {
		violate(fmt.Sprintf("subquery nesting depth %d exceeds limit %d", m.SubqueryDepth, th.MaxSubqueryDepth),
			"Flatten nested subqueries into a single group pattern")
	}
	if r.Cost > th.MaxCost {
		violate(fmt.Sprintf("estimated cost %d exceeds limit %d", r.Cost, th.MaxCost),
			"Add FILTER constraints or bound terms to make patterns more selective")
	}
	if r.TimeClass > th.MaxTimeClass {
		recs := []string{"Connect every triple pattern to the others through a shared variable"}
		if m.UnboundedPaths > 0 {
			recs = append(recs, "Replace * and + property paths with fixed-length paths where possible")
		}
		violate(fmt.Sprintf("time complexity %s exceeds limit %s", r.TimeClass, th.MaxTimeClass), recs...)
	}
	if r.EstimatedMemoryBytes > th.MaxMemoryBytes {
		violate(fmt.Sprintf("estimated memory %s exceeds limit %s",
			humanize.IBytes(r.EstimatedMemoryBytes), humanize.IBytes(th.MaxMemoryBytes)),
			"Add a LIMIT clause or project fewer variables")
	}
	if r.EstimatedDuration > th.MaxExecutionTime {
		violate(fmt.Sprintf("estimated execution time %s exceeds limit %s", r.EstimatedDuration, th.MaxExecutionTime),
			"Add a LIMIT clause or split the query")
	}
}

func (a *Analyzer) risk(r *Report) RiskLevel {
	th, m := a.thresholds, r.Metrics
	switch {
	case len(r.Violations) >= 3 || r.TimeClass >= Cubic:
		return RiskCritical
	case len(r.Violations) > 0:
		return RiskHigh
	case r.Cost*2 > th.MaxCost || m.TriplePatterns*2 > th.MaxTriplePatterns || m.JoinComplexity*2 > th.MaxJoinComplexity:
		return RiskMedium
	default:
		return RiskLow
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
