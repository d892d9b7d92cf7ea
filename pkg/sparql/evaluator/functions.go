package evaluator

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// evaluateFunctionCall evaluates a function call expression
func (e *Evaluator) evaluateFunctionCall(expr *parser.FunctionCallExpression, binding *store.Binding) (rdf.Term, error) {
	// these look at their arguments lazily
	switch expr.Function {
	case "BOUND":
		return e.evaluateBound(expr.Arguments, binding)
	case "IF":
		return e.evaluateIf(expr.Arguments, binding)
	case "COALESCE":
		for _, arg := range expr.Arguments {
			if term, err := e.Evaluate(arg, binding); err == nil {
				return term, nil
			}
		}
		return nil, typeErrorf("COALESCE: no argument is bound")
	}

	args := make([]rdf.Term, len(expr.Arguments))
	for i, arg := range expr.Arguments {
		term, err := e.Evaluate(arg, binding)
		if err != nil {
			return nil, err
		}
		args[i] = term
	}

	if strings.HasPrefix(expr.Function, rdf.XSDNamespace) {
		if len(args) != 1 {
			return nil, typeErrorf("cast to %s requires exactly 1 argument", expr.Function)
		}
		return cast(expr.Function, args[0])
	}

	fn, ok := builtins[expr.Function]
	if !ok {
		return nil, typeErrorf("unsupported function: %s", expr.Function)
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, typeErrorf("%s: wrong number of arguments (%d)", expr.Function, len(args))
	}
	return fn.call(e, args)
}

type builtin struct {
	minArgs, maxArgs int
	call             func(e *Evaluator, args []rdf.Term) (rdf.Term, error)
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"STR":            {1, 1, fnStr},
		"LANG":           {1, 1, fnLang},
		"DATATYPE":       {1, 1, fnDatatype},
		"ISIRI":          {1, 1, fnIsKind(rdf.TermTypeNamedNode)},
		"ISBLANK":        {1, 1, fnIsKind(rdf.TermTypeBlankNode)},
		"ISLITERAL":      {1, 1, fnIsKind(rdf.TermTypeLiteral)},
		"ISNUMERIC":      {1, 1, fnIsNumeric},
		"SAMETERM":       {2, 2, fnSameTerm},
		"IRI":            {1, 1, fnIRI},
		"BNODE":          {0, 1, fnBNode},
		"STRDT":          {2, 2, fnStrDT},
		"STRLANG":        {2, 2, fnStrLang},
		"UUID":           {0, 0, fnUUID},
		"STRUUID":        {0, 0, fnStrUUID},
		"STRLEN":         {1, 1, fnStrLen},
		"SUBSTR":         {2, 3, fnSubStr},
		"UCASE":          {1, 1, fnCase(cases.Upper)},
		"LCASE":          {1, 1, fnCase(cases.Lower)},
		"STRSTARTS":      {2, 2, fnStringTest(strings.HasPrefix)},
		"STRENDS":        {2, 2, fnStringTest(strings.HasSuffix)},
		"CONTAINS":       {2, 2, fnStringTest(strings.Contains)},
		"STRBEFORE":      {2, 2, fnStrBefore},
		"STRAFTER":       {2, 2, fnStrAfter},
		"ENCODE_FOR_URI": {1, 1, fnEncodeForURI},
		"CONCAT":         {0, -1, fnConcat},
		"LANGMATCHES":    {2, 2, fnLangMatches},
		"REGEX":          {2, 3, fnRegex},
		"REPLACE":        {3, 4, fnReplace},
		"ABS":            {1, 1, fnNumeric(math.Abs, absInteger)},
		"CEIL":           {1, 1, fnNumeric(math.Ceil, nil)},
		"FLOOR":          {1, 1, fnNumeric(math.Floor, nil)},
		"ROUND":          {1, 1, fnNumeric(roundHalfUp, nil)},
		"RAND":           {0, 0, fnRand},
		"NOW":            {0, 0, fnNow},
		"YEAR":           {1, 1, fnDatePart(func(t time.Time) int { return t.Year() })},
		"MONTH":          {1, 1, fnDatePart(func(t time.Time) int { return int(t.Month()) })},
		"DAY":            {1, 1, fnDatePart(func(t time.Time) int { return t.Day() })},
		"HOURS":          {1, 1, fnDatePart(func(t time.Time) int { return t.Hour() })},
		"MINUTES":        {1, 1, fnDatePart(func(t time.Time) int { return t.Minute() })},
		"SECONDS":        {1, 1, fnSeconds},
		"TIMEZONE":       {1, 1, fnTimezone},
		"TZ":             {1, 1, fnTZ},
		"MD5":            {1, 1, fnHash(md5.New)},
		"SHA1":           {1, 1, fnHash(sha1.New)},
		"SHA256":         {1, 1, fnHash(sha256.New)},
		"SHA384":         {1, 1, fnHash(sha512.New384)},
		"SHA512":         {1, 1, fnHash(sha512.New)},
	}
}

// BOUND inspects the binding directly instead of evaluating its argument.
func (e *Evaluator) evaluateBound(args []parser.Expression, binding *store.Binding) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrorf("BOUND requires exactly 1 argument")
	}
	varExpr, ok := args[0].(*parser.VariableExpression)
	if !ok {
		return nil, typeErrorf("BOUND requires a variable argument")
	}
	return rdf.NewBooleanLiteral(binding.Get(varExpr.Variable.Name) != nil), nil
}

// IF evaluates only the branch its condition selects.
func (e *Evaluator) evaluateIf(args []parser.Expression, binding *store.Binding) (rdf.Term, error) {
	if len(args) != 3 {
		return nil, typeErrorf("IF requires exactly 3 arguments")
	}
	cond, err := e.ebv(args[0], binding)
	if err != nil {
		return nil, err
	}
	if cond {
		return e.Evaluate(args[1], binding)
	}
	return e.Evaluate(args[2], binding)
}

// Term introspection

func fnStr(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	switch t := args[0].(type) {
	case *rdf.NamedNode:
		return rdf.NewLiteral(t.IRI), nil
	case *rdf.Literal:
		return rdf.NewLiteral(t.Value), nil
	default:
		return nil, typeErrorf("STR cannot be applied to %s", termKind(args[0]))
	}
}

func fnLang(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeErrorf("LANG requires a literal")
	}
	return rdf.NewLiteral(lit.Language), nil
}

func fnDatatype(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeErrorf("DATATYPE requires a literal")
	}
	return lit.EffectiveDatatype(), nil
}

func fnIsKind(kind rdf.TermType) func(*Evaluator, []rdf.Term) (rdf.Term, error) {
	return func(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
		return rdf.NewBooleanLiteral(args[0].Type() == kind), nil
	}
}

func fnIsNumeric(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	_, ok := numericOf(args[0], false)
	return rdf.NewBooleanLiteral(ok), nil
}

// sameTerm is identity of the stored term, unlike "=" which compares values.
func fnSameTerm(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	return rdf.NewBooleanLiteral(args[0].Key() == args[1].Key()), nil
}

func fnIRI(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	switch t := args[0].(type) {
	case *rdf.NamedNode:
		return t, nil
	case *rdf.Literal:
		if t.IsSimple() {
			return rdf.NewNamedNode(t.Value), nil
		}
	}
	return nil, typeErrorf("IRI requires an IRI or a simple literal")
}

func fnBNode(e *Evaluator, args []rdf.Term) (rdf.Term, error) {
	if len(args) == 1 {
		if lit, ok := args[0].(*rdf.Literal); !ok || !lit.IsSimple() {
			return nil, typeErrorf("BNODE requires a simple literal")
		}
	}
	return e.newBlank(), nil
}

func fnStrDT(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	lit, ok := args[0].(*rdf.Literal)
	dt, dtOK := args[1].(*rdf.NamedNode)
	if !ok || !lit.IsSimple() || !dtOK {
		return nil, typeErrorf("STRDT requires a simple literal and an IRI")
	}
	return rdf.NewLiteralWithDatatype(lit.Value, dt), nil
}

func fnStrLang(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	lit, ok := args[0].(*rdf.Literal)
	tag, tagOK := args[1].(*rdf.Literal)
	if !ok || !lit.IsSimple() || !tagOK || tag.Value == "" {
		return nil, typeErrorf("STRLANG requires a simple literal and a language tag")
	}
	return rdf.NewLiteralWithLanguage(lit.Value, tag.Value), nil
}

func fnUUID(_ *Evaluator, _ []rdf.Term) (rdf.Term, error) {
	return rdf.NewNamedNode("urn:uuid:" + uuid.NewString()), nil
}

func fnStrUUID(_ *Evaluator, _ []rdf.Term) (rdf.Term, error) {
	return rdf.NewLiteral(uuid.NewString()), nil
}

// Strings

// stringArg accepts simple, xsd:string and language-tagged literals.
func stringArg(name string, term rdf.Term) (*rdf.Literal, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok || (!lit.IsSimple() && lit.Language == "") {
		return nil, typeErrorf("%s requires a string literal, got %s", name, termKind(term))
	}
	return lit, nil
}

// stringPair checks argument compatibility: the second argument is simple or
// carries the same language tag as the first.
func stringPair(name string, args []rdf.Term) (*rdf.Literal, *rdf.Literal, error) {
	a, err := stringArg(name, args[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := stringArg(name, args[1])
	if err != nil {
		return nil, nil, err
	}
	if b.Language != "" && b.Language != a.Language {
		return nil, nil, typeErrorf("%s: incompatible language tags", name)
	}
	return a, b, nil
}

// like builds a literal with value and the language or datatype of src.
func like(src *rdf.Literal, value string) *rdf.Literal {
	if src.Language != "" {
		return rdf.NewLiteralWithLanguage(value, src.Language)
	}
	return &rdf.Literal{Value: value, Datatype: src.Datatype}
}

func fnStrLen(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	lit, err := stringArg("STRLEN", args[0])
	if err != nil {
		return nil, err
	}
	return rdf.NewIntegerLiteral(int64(len([]rune(lit.Value)))), nil
}

// fnSubStr keeps the characters at 1-based positions p with
// start <= p < start+length, clamped to the string.
func fnSubStr(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	lit, err := stringArg("SUBSTR", args[0])
	if err != nil {
		return nil, err
	}
	start, ok := numericOf(args[1], false)
	if !ok {
		return nil, typeErrorf("SUBSTR start must be numeric")
	}
	runes := []rune(lit.Value)
	from := roundHalfUp(start.f)
	to := math.Inf(1)
	if len(args) == 3 {
		length, ok := numericOf(args[2], false)
		if !ok {
			return nil, typeErrorf("SUBSTR length must be numeric")
		}
		to = from + roundHalfUp(length.f)
	}
	if math.IsNaN(from) || math.IsNaN(to) {
		return like(lit, ""), nil
	}
	from = math.Max(from, 1)
	to = math.Min(to, float64(len(runes)+1))
	if from >= to {
		return like(lit, ""), nil
	}
	return like(lit, string(runes[int(from)-1:int(to)-1])), nil
}

func fnCase(mapper func(language.Tag, ...cases.Option) cases.Caser) func(*Evaluator, []rdf.Term) (rdf.Term, error) {
	return func(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
		lit, err := stringArg("UCASE/LCASE", args[0])
		if err != nil {
			return nil, err
		}
		tag := language.Und
		if lit.Language != "" {
			if parsed, err := language.Parse(lit.Language); err == nil {
				tag = parsed
			}
		}
		return like(lit, mapper(tag).String(lit.Value)), nil
	}
}

func fnStringTest(test func(s, sub string) bool) func(*Evaluator, []rdf.Term) (rdf.Term, error) {
	return func(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
		a, b, err := stringPair("string test", args)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(test(a.Value, b.Value)), nil
	}
}

// fnStrBefore returns the part before the first match. An empty separator
// yields an empty string that keeps the first argument's tag; no match
// yields a plain empty string.
func fnStrBefore(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	a, b, err := stringPair("STRBEFORE", args)
	if err != nil {
		return nil, err
	}
	if b.Value == "" {
		return like(a, ""), nil
	}
	i := strings.Index(a.Value, b.Value)
	if i < 0 {
		return rdf.NewLiteral(""), nil
	}
	return like(a, a.Value[:i]), nil
}

// fnStrAfter returns the part after the first match. An empty separator
// yields the whole first argument.
func fnStrAfter(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	a, b, err := stringPair("STRAFTER", args)
	if err != nil {
		return nil, err
	}
	if b.Value == "" {
		return a, nil
	}
	i := strings.Index(a.Value, b.Value)
	if i < 0 {
		return rdf.NewLiteral(""), nil
	}
	return like(a, a.Value[i+len(b.Value):]), nil
}

// fnEncodeForURI percent-encodes every byte outside the unreserved set.
func fnEncodeForURI(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	lit, err := stringArg("ENCODE_FOR_URI", args[0])
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for i := 0; i < len(lit.Value); i++ {
		c := lit.Value[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return rdf.NewLiteral(sb.String()), nil
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// fnConcat keeps a language tag only when every argument shares it.
func fnConcat(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	var sb strings.Builder
	lang := ""
	for i, arg := range args {
		lit, err := stringArg("CONCAT", arg)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			lang = lit.Language
		} else if lit.Language != lang {
			lang = ""
		}
		sb.WriteString(lit.Value)
	}
	if lang != "" {
		return rdf.NewLiteralWithLanguage(sb.String(), lang), nil
	}
	return rdf.NewLiteral(sb.String()), nil
}

// fnLangMatches matches a tag against a basic language range: "*" matches
// any non-empty tag, otherwise the range equals the tag or a prefix of it
// ending at a subtag boundary.
func fnLangMatches(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	tagLit, err := stringArg("LANGMATCHES", args[0])
	if err != nil {
		return nil, err
	}
	rangeLit, err := stringArg("LANGMATCHES", args[1])
	if err != nil {
		return nil, err
	}
	tag := strings.ToLower(tagLit.Value)
	langRange := strings.ToLower(rangeLit.Value)

	if langRange == "*" {
		return rdf.NewBooleanLiteral(tag != ""), nil
	}
	matched := tag != "" && (tag == langRange || strings.HasPrefix(tag, langRange+"-"))
	return rdf.NewBooleanLiteral(matched), nil
}

func fnRegex(e *Evaluator, args []rdf.Term) (rdf.Term, error) {
	text, err := stringArg("REGEX", args[0])
	if err != nil {
		return nil, err
	}
	re, err := e.compileRegex("REGEX", args[1:])
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(re.MatchString(text.Value)), nil
}

var groupReference = regexp.MustCompile(`\$(\d+)`)

func fnReplace(e *Evaluator, args []rdf.Term) (rdf.Term, error) {
	text, err := stringArg("REPLACE", args[0])
	if err != nil {
		return nil, err
	}
	replacement, err := stringArg("REPLACE", args[2])
	if err != nil {
		return nil, err
	}
	patternArgs := []rdf.Term{args[1]}
	if len(args) == 4 {
		patternArgs = append(patternArgs, args[3])
	}
	re, err := e.compileRegex("REPLACE", patternArgs)
	if err != nil {
		return nil, err
	}
	if re.MatchString("") {
		return nil, typeErrorf("REPLACE pattern matches the empty string")
	}
	template := groupReference.ReplaceAllString(replacement.Value, "$${$1}")
	return like(text, re.ReplaceAllString(text.Value, template)), nil
}

// compileRegex translates XPath regex flags: i, m and s map onto RE2 flags,
// x strips whitespace from the pattern and q quotes it.
func (e *Evaluator) compileRegex(name string, args []rdf.Term) (*regexp.Regexp, error) {
	pattern, err := stringArg(name, args[0])
	if err != nil {
		return nil, err
	}
	flags := ""
	if len(args) > 1 {
		flagLit, err := stringArg(name, args[1])
		if err != nil {
			return nil, err
		}
		flags = flagLit.Value
	}

	cacheKey := flags + "\x00" + pattern.Value
	if re, ok := e.regexCache().Get(cacheKey); ok {
		return re, nil
	}

	expr := pattern.Value
	var goFlags string
	for _, flag := range flags {
		switch flag {
		case 'i', 'm', 's':
			goFlags += string(flag)
		case 'x':
			expr = strings.Join(strings.Fields(expr), "")
		case 'q':
			expr = regexp.QuoteMeta(pattern.Value)
		default:
			return nil, typeErrorf("%s: unsupported flag %q", name, flag)
		}
	}
	if goFlags != "" {
		expr = "(?" + goFlags + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, typeErrorf("%s: invalid pattern: %v", name, err)
	}
	e.regexCache().Add(cacheKey, re)
	return re, nil
}

// Numerics

// roundHalfUp rounds ties toward positive infinity for both signs.
func roundHalfUp(x float64) float64 {
	f := math.Floor(x)
	if x-f >= 0.5 {
		f++
	}
	return f
}

// absInteger is ABS on an int64. ok is false for math.MinInt64.
func absInteger(v int64) (int64, bool) {
	if v >= 0 {
		return v, true
	}
	if v == math.MinInt64 {
		return 0, false
	}
	return -v, true
}

// fnNumeric lifts op to a numeric built-in. Integers go through intOp and
// stay exact; a nil intOp means the function is the identity on integers.
func fnNumeric(op func(float64) float64, intOp func(int64) (int64, bool)) func(*Evaluator, []rdf.Term) (rdf.Term, error) {
	return func(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
		n, ok := numericOf(args[0], false)
		if !ok {
			return nil, typeErrorf("numeric function requires a numeric argument")
		}
		if n.kind == kindInteger {
			if intOp == nil {
				return rdf.NewIntegerLiteral(n.i), nil
			}
			if v, ok := intOp(n.i); ok {
				return rdf.NewIntegerLiteral(v), nil
			}
			return numeric{kind: kindDecimal, f: op(n.f)}.literal(), nil
		}
		return numeric{kind: n.kind, f: op(n.f)}.literal(), nil
	}
}

func fnRand(e *Evaluator, _ []rdf.Term) (rdf.Term, error) {
	return rdf.NewDoubleLiteral(e.random()), nil
}

// Dates

func fnNow(e *Evaluator, _ []rdf.Term) (rdf.Term, error) {
	return rdf.NewDateTimeLiteral(e.now), nil
}

func fnDatePart(part func(time.Time) int) func(*Evaluator, []rdf.Term) (rdf.Term, error) {
	return func(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
		t, ok := dateTimeOf(args[0], true)
		if !ok {
			return nil, typeErrorf("date accessor requires a dateTime")
		}
		return rdf.NewIntegerLiteral(int64(part(t))), nil
	}
}

func fnSeconds(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	t, ok := dateTimeOf(args[0], true)
	if !ok {
		return nil, typeErrorf("SECONDS requires a dateTime")
	}
	seconds := float64(t.Second()) + float64(t.Nanosecond())/1e9
	return rdf.NewDecimalLiteral(seconds), nil
}

func fnTimezone(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	t, ok := dateTimeOf(args[0], true)
	if !ok || !hasTimezone(args[0].(*rdf.Literal).Value) {
		return nil, typeErrorf("TIMEZONE requires a dateTime with a timezone")
	}
	_, offset := t.Zone()
	return rdf.NewLiteralWithDatatype(dayTimeDuration(offset), rdf.NewNamedNode(rdf.XSDNamespace+"dayTimeDuration")), nil
}

func fnTZ(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
	t, ok := dateTimeOf(args[0], true)
	if !ok {
		return nil, typeErrorf("TZ requires a dateTime")
	}
	if !hasTimezone(args[0].(*rdf.Literal).Value) {
		return rdf.NewLiteral(""), nil
	}
	_, offset := t.Zone()
	if offset == 0 {
		return rdf.NewLiteral("Z"), nil
	}
	return rdf.NewLiteral(t.Format("-07:00")), nil
}

func dayTimeDuration(offsetSeconds int) string {
	if offsetSeconds == 0 {
		return "PT0S"
	}
	sign := ""
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	hours, minutes := offsetSeconds/3600, (offsetSeconds%3600)/60
	out := sign + "PT"
	if hours > 0 {
		out += strconv.Itoa(hours) + "H"
	}
	if minutes > 0 {
		out += strconv.Itoa(minutes) + "M"
	}
	return out
}

// Hashes

func fnHash(newHash func() hash.Hash) func(*Evaluator, []rdf.Term) (rdf.Term, error) {
	return func(_ *Evaluator, args []rdf.Term) (rdf.Term, error) {
		lit, ok := args[0].(*rdf.Literal)
		if !ok || !lit.IsSimple() {
			return nil, typeErrorf("hash functions require a simple literal")
		}
		h := newHash()
		h.Write([]byte(lit.Value))
		return rdf.NewLiteral(hex.EncodeToString(h.Sum(nil))), nil
	}
}

// Casts

func cast(datatype string, term rdf.Term) (rdf.Term, error) {
	if _, ok := term.(*rdf.BlankNode); ok {
		return nil, typeErrorf("cannot cast a blank node")
	}
	target := rdf.NewNamedNode(datatype)
	lexical := term.String()
	switch t := term.(type) {
	case *rdf.NamedNode:
		if datatype != rdf.XSDString.IRI {
			return nil, typeErrorf("cannot cast an IRI to %s", datatype)
		}
		return rdf.NewLiteralWithDatatype(t.IRI, target), nil
	case *rdf.Literal:
		lexical = strings.TrimSpace(t.Value)
		if datatype == rdf.XSDString.IRI {
			return rdf.NewLiteralWithDatatype(t.Value, target), nil
		}
	}
	lit := term.(*rdf.Literal)

	if kind, ok := numericKindOf(target); ok {
		var n numeric
		if src, ok := numericOf(lit, true); ok {
			n = src
		} else if b, ok := booleanOf(lit); ok {
			n = intNumeric(0)
			if b {
				n = intNumeric(1)
			}
		} else {
			return nil, typeErrorf("cannot cast %q to %s", lexical, datatype)
		}
		switch {
		case kind == kindInteger && n.kind != kindInteger:
			if math.IsNaN(n.f) || n.f >= math.MaxInt64 || n.f < math.MinInt64 {
				return nil, typeErrorf("cannot cast %q to %s", lexical, datatype)
			}
			n = intNumeric(int64(n.f))
		case kind != kindInteger:
			n = numeric{kind: kind, f: n.f}
		}
		out := n.literal()
		out.Datatype = target
		return out, nil
	}

	switch datatype {
	case rdf.XSDBoolean.IRI:
		if b, ok := booleanOf(lit); ok {
			return rdf.NewBooleanLiteral(b), nil
		}
		if n, ok := numericOf(lit, false); ok {
			return rdf.NewBooleanLiteral(!n.isZero()), nil
		}
		switch lexical {
		case "true", "1":
			return rdf.NewBooleanLiteral(true), nil
		case "false", "0":
			return rdf.NewBooleanLiteral(false), nil
		}
	case rdf.XSDDateTime.IRI:
		if _, ok := dateTimeOf(lit, true); ok {
			return rdf.NewLiteralWithDatatype(lexical, rdf.XSDDateTime), nil
		}
	}
	return nil, typeErrorf("cannot cast %q to %s", lexical, datatype)
}
