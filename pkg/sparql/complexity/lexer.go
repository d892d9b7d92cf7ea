package complexity

import "strings"

type tokenKind int

const (
	tokVariable tokenKind = iota
	tokIRI
	tokPrefixedName
	tokLiteral
	tokNumber
	tokBlank
	tokWord
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// isTerm reports whether the token can fill a triple pattern position.
func (t token) isTerm() bool {
	switch t.kind {
	case tokVariable, tokIRI, tokPrefixedName, tokLiteral, tokNumber, tokBlank:
		return true
	case tokWord:
		switch strings.ToUpper(t.text) {
		case "A", "TRUE", "FALSE":
			return true
		}
	}
	return false
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

func (t token) keyword(kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

// tokenize splits query text into coarse tokens. It never fails: anything it
// does not recognize becomes a one-character punctuation token.
func tokenize(src string) []token {
	var toks []token
	pos := 0
	for pos < len(src) {
		ch := src[pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			pos++
		case ch == '#':
			for pos < len(src) && src[pos] != '\n' {
				pos++
			}
		case ch == '"' || ch == '\'':
			end := skipString(src, pos)
			end = skipLiteralSuffix(src, end)
			toks = append(toks, token{tokLiteral, src[pos:end]})
			pos = end
		case ch == '<':
			if end, ok := iriEnd(src, pos); ok {
				toks = append(toks, token{tokIRI, src[pos:end]})
				pos = end
				continue
			}
			toks = append(toks, token{tokPunct, "<"})
			pos++
		case (ch == '?' || ch == '$') && pos+1 < len(src) && isNameChar(src[pos+1]):
			end := pos + 1
			for end < len(src) && isNameChar(src[end]) {
				end++
			}
			toks = append(toks, token{tokVariable, src[pos+1 : end]})
			pos = end
		case ch == '_' && pos+1 < len(src) && src[pos+1] == ':':
			end := localEnd(src, pos+2)
			toks = append(toks, token{tokBlank, src[pos:end]})
			pos = end
		case isDigit(ch):
			end := pos
			for end < len(src) && (isDigit(src[end]) || src[end] == '.' && end+1 < len(src) && isDigit(src[end+1]) ||
				src[end] == 'e' || src[end] == 'E') {
				end++
			}
			toks = append(toks, token{tokNumber, src[pos:end]})
			pos = end
		case isNameStart(ch) || ch == ':':
			end := pos
			for end < len(src) && isNameChar(src[end]) {
				end++
			}
			if end < len(src) && src[end] == ':' {
				end = localEnd(src, end+1)
				toks = append(toks, token{tokPrefixedName, src[pos:end]})
			} else {
				toks = append(toks, token{tokWord, src[pos:end]})
			}
			pos = end
		default:
			toks = append(toks, token{tokPunct, string(ch)})
			pos++
		}
	}
	return toks
}

func skipString(src string, pos int) int {
	quote := src[pos]
	long := strings.Repeat(string(quote), 3)
	if strings.HasPrefix(src[pos:], long) {
		if end := strings.Index(src[pos+3:], long); end >= 0 {
			return pos + 3 + end + 3
		}
		return len(src)
	}
	i := pos + 1
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		}
		i++
	}
	return len(src)
}

// skipLiteralSuffix consumes @lang or ^^datatype after a string.
func skipLiteralSuffix(src string, pos int) int {
	switch {
	case pos < len(src) && src[pos] == '@':
		pos++
		for pos < len(src) && (isNameChar(src[pos]) || src[pos] == '-') {
			pos++
		}
	case strings.HasPrefix(src[pos:], "^^"):
		pos += 2
		if end, ok := iriEnd(src, pos); ok {
			return end
		}
		for pos < len(src) && isNameChar(src[pos]) {
			pos++
		}
		if pos < len(src) && src[pos] == ':' {
			pos = localEnd(src, pos+1)
		}
	}
	return pos
}

// iriEnd finds the end of <...> when the bracket opens an IRI rather than a
// less-than comparison.
func iriEnd(src string, pos int) (int, bool) {
	for i := pos + 1; i < len(src); i++ {
		switch src[i] {
		case '>':
			return i + 1, true
		case ' ', '\t', '\n', '\r', '<', '"', '{', '}':
			return 0, false
		}
	}
	return 0, false
}

func localEnd(src string, pos int) int {
	end := pos
	for end < len(src) && (isNameChar(src[end]) || src[end] == '.' || src[end] == '-' || src[end] == ':') {
		end++
	}
	for end > pos && src[end-1] == '.' {
		end--
	}
	return end
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isNameStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_' || ch >= 0x80
}

func isNameChar(ch byte) bool {
	return isNameStart(ch) || isDigit(ch)
}
