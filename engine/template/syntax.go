package template

import "fmt"

// syntaxScan runs a lightweight structural parse over the code body:
// bracket balance, string termination and comment handling. Diagnostics
// carry 1-based line/column positions.
func (v *Validator) syntaxScan(code string) []ValidationError {
	s := &scanner{code: []rune(code), line: 1, col: 1}
	return s.run()
}

type openBracket struct {
	ch   rune
	line int
	col  int
}

type scanner struct {
	code []rune
	pos  int
	line int
	col  int

	stack []openBracket
	errs  []ValidationError
}

func (s *scanner) run() []ValidationError {
	for s.pos < len(s.code) {
		ch := s.code[s.pos]
		switch {
		case ch == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case ch == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case ch == '\'' || ch == '"' || ch == '`':
			s.skipString(ch)
		case ch == '(' || ch == '[' || ch == '{':
			s.stack = append(s.stack, openBracket{ch: ch, line: s.line, col: s.col})
			s.advance()
		case ch == ')' || ch == ']' || ch == '}':
			s.closeBracket(ch)
			s.advance()
		default:
			s.advance()
		}
	}
	for _, open := range s.stack {
		s.errs = append(s.errs, ValidationError{
			Type:    ErrorTypeSyntax,
			Message: fmt.Sprintf("Unclosed '%c'", open.ch),
			Line:    open.line,
			Column:  open.col,
		})
	}
	return s.errs
}

func matchingOpen(close rune) rune {
	switch close {
	case ')':
		return '('
	case ']':
		return '['
	default:
		return '{'
	}
}

func (s *scanner) closeBracket(ch rune) {
	want := matchingOpen(ch)
	if len(s.stack) == 0 {
		s.errs = append(s.errs, ValidationError{
			Type:    ErrorTypeSyntax,
			Message: fmt.Sprintf("Unexpected '%c'", ch),
			Line:    s.line,
			Column:  s.col,
		})
		return
	}
	top := s.stack[len(s.stack)-1]
	if top.ch != want {
		s.errs = append(s.errs, ValidationError{
			Type:    ErrorTypeSyntax,
			Message: fmt.Sprintf("Mismatched '%c': expected closing for '%c'", ch, top.ch),
			Line:    s.line,
			Column:  s.col,
		})
	}
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *scanner) skipString(quote rune) {
	startLine, startCol := s.line, s.col
	s.advance()
	for s.pos < len(s.code) {
		ch := s.code[s.pos]
		if ch == '\\' {
			s.advance()
			s.advance()
			continue
		}
		if ch == quote {
			s.advance()
			return
		}
		// Template literals may span lines; quoted strings may not.
		if ch == '\n' && quote != '`' {
			break
		}
		s.advance()
	}
	s.errs = append(s.errs, ValidationError{
		Type:    ErrorTypeSyntax,
		Message: "Unterminated string literal",
		Line:    startLine,
		Column:  startCol,
	})
}

func (s *scanner) skipLineComment() {
	for s.pos < len(s.code) && s.code[s.pos] != '\n' {
		s.advance()
	}
}

func (s *scanner) skipBlockComment() {
	s.advance()
	s.advance()
	for s.pos < len(s.code) {
		if s.code[s.pos] == '*' && s.peek(1) == '/' {
			s.advance()
			s.advance()
			return
		}
		s.advance()
	}
}

func (s *scanner) peek(n int) rune {
	if s.pos+n >= len(s.code) {
		return 0
	}
	return s.code[s.pos+n]
}

func (s *scanner) advance() {
	if s.pos >= len(s.code) {
		return
	}
	if s.code[s.pos] == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	s.pos++
}
