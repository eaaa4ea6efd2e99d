package script

import (
	"strings"
	"unicode"
)

type region uint8

const (
	regionCode region = iota
	regionComment
	regionQuoted
)

// lexer follows SQL text rune by rune and tells live code apart from
// comments and quoted runs (strings and quoted identifiers).
type lexer struct {
	quote rune // ', " or ` while inside a quoted run
	line  bool // inside -- comment
	block bool // inside /* */ comment
}

// state is the region the next rune belongs to, unless it opens one.
func (l *lexer) state() region {
	switch {
	case l.line, l.block:
		return regionComment
	case l.quote != 0:
		return regionQuoted
	}
	return regionCode
}

// next consumes the token starting at rs[i] and returns its width in runes
// and its region. Quote and comment delimiters belong to what they delimit.
func (l *lexer) next(rs []rune, i int) (int, region) {
	c := rs[i]
	followedBy := func(r rune) bool { return i+1 < len(rs) && rs[i+1] == r }
	switch {
	case l.line:
		if c == '\n' {
			l.line = false
		}
		return 1, regionComment
	case l.block:
		if c == '*' && followedBy('/') {
			l.block = false
			return 2, regionComment
		}
		return 1, regionComment
	case l.quote != 0:
		if c == l.quote {
			l.quote = 0
		}
		return 1, regionQuoted
	case c == '-' && followedBy('-'):
		l.line = true
		return 2, regionComment
	case c == '/' && followedBy('*'):
		l.block = true
		return 2, regionComment
	case c == '\'' || c == '"' || c == '`':
		l.quote = c
		return 1, regionQuoted
	}
	return 1, regionCode
}

// SplitStatements splits rendered SQL on semicolons that sit outside quoted
// strings, quoted identifiers and comments. Fragments holding nothing but
// whitespace and comments are dropped.
func SplitStatements(sql string) []string {
	var (
		out     []string
		start   int
		content bool // fragment has something besides comments
		lx      lexer
	)
	rs := []rune(sql)
	flush := func(end int) {
		if content {
			out = append(out, strings.TrimSpace(string(rs[start:end])))
		}
		start, content = end+1, false
	}

	for i := 0; i < len(rs); {
		c := rs[i]
		n, reg := lx.next(rs, i)
		switch {
		case reg == regionQuoted:
			content = true
		case reg == regionCode && c == ';':
			flush(i)
		case reg == regionCode && !unicode.IsSpace(c):
			content = true
		}
		i += n
	}
	if start < len(rs) {
		flush(len(rs))
	}
	return out
}
