package complexity

import "strings"

// Metrics are the structural counts the estimates derive from.
type Metrics struct {
	TriplePatterns    int  `yaml:"triple_patterns" json:"triple_patterns"`
	Variables         int  `yaml:"variables" json:"variables"`
	JoinComplexity    int  `yaml:"join_complexity" json:"join_complexity"`
	Filters           int  `yaml:"filters" json:"filters"`
	ExpensiveFilters  int  `yaml:"expensive_filters" json:"expensive_filters"`
	Optionals         int  `yaml:"optionals" json:"optionals"`
	Unions            int  `yaml:"unions" json:"unions"`
	Minus             int  `yaml:"minus" json:"minus"`
	SubqueryDepth     int  `yaml:"subquery_depth" json:"subquery_depth"`
	PropertyPaths     int  `yaml:"property_paths" json:"property_paths"`
	UnboundedPaths    int  `yaml:"unbounded_paths" json:"unbounded_paths"`
	Aggregates        int  `yaml:"aggregates" json:"aggregates"`
	CartesianProducts int  `yaml:"cartesian_products" json:"cartesian_products"`
	HasOrderBy        bool `yaml:"has_order_by" json:"has_order_by"`
	HasGroupBy        bool `yaml:"has_group_by" json:"has_group_by"`
	HasDistinct       bool `yaml:"has_distinct" json:"has_distinct"`
	HasLimit          bool `yaml:"has_limit" json:"has_limit"`

	maxPatternVariables int
}

var expensiveFunctions = map[string]bool{
	"REGEX": true, "REPLACE": true, "EXISTS": true,
	"CONTAINS": true, "STRSTARTS": true, "STRENDS": true,
}

var aggregateFunctions = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true,
	"MAX": true, "SAMPLE": true, "GROUP_CONCAT": true,
}

func measure(toks []token) Metrics {
	var m Metrics
	vars := make(map[string]struct{})
	for i, t := range toks {
		next := token{}
		if i+1 < len(toks) {
			next = toks[i+1]
		}
		switch t.kind {
		case tokVariable:
			vars[t.text] = struct{}{}
		case tokWord:
			word := strings.ToUpper(t.text)
			switch {
			case word == "FILTER":
				m.Filters++
			case word == "OPTIONAL":
				m.Optionals++
			case word == "UNION":
				m.Unions++
			case word == "MINUS":
				m.Minus++
			case word == "DISTINCT" && !aggregateFunctions[prevWord(toks, i)]:
				m.HasDistinct = true
			case word == "LIMIT":
				m.HasLimit = true
			case word == "ORDER" && next.keyword("BY"):
				m.HasOrderBy = true
			case word == "GROUP" && next.keyword("BY"):
				m.HasGroupBy = true
			case expensiveFunctions[word]:
				m.ExpensiveFilters++
			case aggregateFunctions[word] && next.is("("):
				m.Aggregates++
			}
		}
	}
	m.Variables = len(vars)

	w := &walker{toks: toks, occurrences: make(map[string]int)}
	w.walk()
	m.TriplePatterns = w.patterns
	m.SubqueryDepth = w.maxSubqueryDepth
	m.PropertyPaths = w.paths
	m.UnboundedPaths = w.unboundedPaths
	m.CartesianProducts = w.cartesian
	m.maxPatternVariables = w.maxPatternVariables
	for _, n := range w.occurrences {
		if n > 1 {
			m.JoinComplexity += n - 1
		}
	}
	return m
}

// prevWord returns the word two tokens back, which is the function name for
// COUNT(DISTINCT ...).
func prevWord(toks []token, i int) string {
	if i >= 2 && toks[i-1].is("(") && toks[i-2].kind == tokWord {
		return strings.ToUpper(toks[i-2].text)
	}
	return ""
}

// walker counts triple patterns by tracking how many terms the current
// statement has seen. Filters, BIND expressions and VALUES data are skipped
// so their terms are not mistaken for pattern positions.
type walker struct {
	toks []token
	pos  int

	depth         int
	frames        [][][]string
	selectDepths  []int
	stmtTerms     int
	subjectVars   []string
	predicateVars []string
	objectVars    []string
	mergeNext     bool
	inPath        bool
	unbounded     bool

	patterns            int
	paths               int
	unboundedPaths      int
	cartesian           int
	maxSubqueryDepth    int
	maxPatternVariables int
	occurrences         map[string]int
}

func (w *walker) walk() {
	for w.pos < len(w.toks) {
		t := w.toks[w.pos]
		w.pos++

		switch {
		case t.is("{"):
			w.depth++
			w.frames = append(w.frames, nil)
			w.resetStatement()
		case t.is("}"):
			w.closeFrame()
		case t.keyword("CONSTRUCT"):
			if w.pos < len(w.toks) && w.toks[w.pos].is("{") {
				w.pos++
				w.skipBalanced("{", "}")
			}
		case t.keyword("VALUES"):
			w.skipValues()
		case w.depth == 0:
			// prologue, projection and solution modifiers
		case t.keyword("SELECT"):
			w.selectDepths = append(w.selectDepths, w.depth)
			w.maxSubqueryDepth = max(w.maxSubqueryDepth, len(w.selectDepths))
			w.skipUntil("{")
		case t.keyword("FILTER"):
			w.resetStatement()
			w.skipExpression()
		case t.keyword("BIND"):
			w.resetStatement()
			if w.pos < len(w.toks) && w.toks[w.pos].is("(") {
				w.pos++
				w.skipBalanced("(", ")")
			}
		case t.keyword("GRAPH") || t.keyword("SERVICE"):
			w.resetStatement()
			for w.pos < len(w.toks) && !w.toks[w.pos].is("{") {
				w.pos++
			}
		case t.keyword("ORDER") || t.keyword("GROUP") || t.keyword("HAVING") ||
			t.keyword("LIMIT") || t.keyword("OFFSET"):
			w.skipToGroupEnd()
		case t.is("."):
			w.resetStatement()
		case t.is(";"):
			w.stmtTerms = min(w.stmtTerms, 1)
			w.predicateVars, w.objectVars = nil, nil
			w.resetPath()
		case t.is(","):
			w.stmtTerms = min(w.stmtTerms, 2)
			w.objectVars = nil
		case t.is("/") || t.is("|"):
			w.inPath = true
			w.mergeNext = true
		case t.is("^"):
			w.inPath = true
		case t.is("*") || t.is("+"):
			w.inPath = true
			w.unbounded = true
		case t.is("?"):
			w.inPath = true
		case t.is("["):
			w.term(token{kind: tokBlank})
		case t.isTerm():
			w.term(t)
		case t.kind == tokWord:
			w.resetStatement()
		}
	}
}

func (w *walker) term(t token) {
	if w.mergeNext {
		w.mergeNext = false
		return
	}
	if w.stmtTerms == 3 {
		w.resetStatement()
	}
	w.stmtTerms++
	var v []string
	if t.kind == tokVariable {
		v = []string{t.text}
	}
	switch w.stmtTerms {
	case 1:
		w.subjectVars = v
	case 2:
		w.predicateVars = v
	case 3:
		w.objectVars = v
		w.completePattern()
	}
}

func (w *walker) completePattern() {
	w.patterns++
	if w.inPath {
		w.paths++
		if w.unbounded {
			w.unboundedPaths++
		}
	}
	var vars []string
	for _, group := range [][]string{w.subjectVars, w.predicateVars, w.objectVars} {
		for _, v := range group {
			if !contains(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	for _, v := range vars {
		w.occurrences[v]++
	}
	w.maxPatternVariables = max(w.maxPatternVariables, len(vars))
	if len(w.frames) > 0 {
		w.frames[len(w.frames)-1] = append(w.frames[len(w.frames)-1], vars)
	}
	w.resetPath()
}

func (w *walker) resetPath() {
	w.inPath, w.unbounded, w.mergeNext = false, false, false
}

func (w *walker) resetStatement() {
	w.stmtTerms = 0
	w.subjectVars, w.predicateVars, w.objectVars = nil, nil, nil
	w.resetPath()
}

// closeFrame ends a group and counts the disconnected pattern clusters in it.
func (w *walker) closeFrame() {
	w.resetStatement()
	if len(w.frames) > 0 {
		frame := w.frames[len(w.frames)-1]
		w.frames = w.frames[:len(w.frames)-1]
		if components := countComponents(frame); components > 1 {
			w.cartesian += components - 1
		}
	}
	w.depth = max(0, w.depth-1)
	for len(w.selectDepths) > 0 && w.selectDepths[len(w.selectDepths)-1] > w.depth {
		w.selectDepths = w.selectDepths[:len(w.selectDepths)-1]
	}
}

// countComponents groups patterns connected by shared variables. Patterns
// without variables are existence checks and join nothing.
func countComponents(patterns [][]string) int {
	parent := make([]int, len(patterns))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	owner := make(map[string]int)
	for i, vars := range patterns {
		for _, v := range vars {
			if j, ok := owner[v]; ok {
				parent[find(i)] = find(j)
			} else {
				owner[v] = i
			}
		}
	}
	roots := make(map[int]struct{})
	for i, vars := range patterns {
		if len(vars) > 0 {
			roots[find(i)] = struct{}{}
		}
	}
	return len(roots)
}

func (w *walker) skipUntil(punct string) {
	for w.pos < len(w.toks) && !w.toks[w.pos].is(punct) {
		w.pos++
	}
}

// skipBalanced advances past the close that matches an already consumed open.
func (w *walker) skipBalanced(open, closing string) {
	level := 1
	for w.pos < len(w.toks) && level > 0 {
		switch t := w.toks[w.pos]; {
		case t.is(open):
			level++
		case t.is(closing):
			level--
		}
		w.pos++
	}
}

// skipExpression skips a FILTER constraint. EXISTS groups are left in place
// because their patterns run against the store.
func (w *walker) skipExpression() {
	if w.pos >= len(w.toks) {
		return
	}
	t := w.toks[w.pos]
	switch {
	case t.keyword("NOT") || t.keyword("EXISTS"):
		return
	case t.is("("):
		w.pos++
		w.skipBalanced("(", ")")
	case t.kind == tokWord || t.kind == tokPrefixedName || t.kind == tokIRI:
		w.pos++
		if w.pos < len(w.toks) && w.toks[w.pos].is("(") {
			w.pos++
			w.skipBalanced("(", ")")
		}
	}
}

// skipValues skips the variable list and the data block of VALUES.
func (w *walker) skipValues() {
	w.skipUntil("{")
	if w.pos < len(w.toks) {
		w.pos++
		w.skipBalanced("{", "}")
	}
	w.resetStatement()
}

// skipToGroupEnd skips sub-SELECT modifiers up to the brace closing the
// enclosing group, leaving that brace to be consumed.
func (w *walker) skipToGroupEnd() {
	paren := 0
	for w.pos < len(w.toks) {
		t := w.toks[w.pos]
		switch {
		case t.is("("):
			paren++
		case t.is(")"):
			paren--
		case t.is("}") && paren <= 0:
			return
		}
		w.pos++
	}
}
