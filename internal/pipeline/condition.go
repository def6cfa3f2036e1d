package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	commonerrors "github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
)

// Conditions are small boolean expressions over run context fields, parsed
// into an expression tree rather than handed to an embedded scripting engine.
// Supported forms:
//
//	event == "tag"
//	branch != "main"
//	startswith(tag, "C_")
//	env.DEPLOY_DOCS == "true"
//	event == "tag" && !startswith(tag, "C_")
//
// Fields: event, branch, tag, ref, env.NAME. Evaluation is pure; any env.NAME
// not present in the run context is rejected during pipeline validation,
// never mid-run.

// Expr is a parsed condition expression
type Expr interface {
	// Eval evaluates the expression against a run context
	Eval(rc *RunContext) bool

	collectEnvRefs(refs map[string]struct{})
}

// EnvRefs returns the env keys an expression reads, sorted
func EnvRefs(e Expr) []string {
	set := make(map[string]struct{})
	e.collectEnvRefs(set)

	refs := make([]string, 0, len(set))
	for k := range set {
		refs = append(refs, k)
	}
	sort.Strings(refs)
	return refs
}

// term is either a string literal or a run context field reference
type term struct {
	literal string
	field   string
	isField bool
}

func (t term) resolve(rc *RunContext) string {
	if !t.isField {
		return t.literal
	}
	switch t.field {
	case "event":
		return string(rc.Event())
	case "branch":
		return rc.Branch()
	case "tag":
		return rc.Tag()
	case "ref":
		return rc.Ref()
	}
	if name, ok := strings.CutPrefix(t.field, "env."); ok {
		val, _ := rc.LookupEnv(name)
		return val
	}
	return ""
}

func (t term) collectEnvRefs(refs map[string]struct{}) {
	if !t.isField {
		return
	}
	if name, ok := strings.CutPrefix(t.field, "env."); ok {
		refs[name] = struct{}{}
	}
}

type compareExpr struct {
	left   term
	right  term
	negate bool
}

func (e *compareExpr) Eval(rc *RunContext) bool {
	equal := e.left.resolve(rc) == e.right.resolve(rc)
	return equal != e.negate
}

func (e *compareExpr) collectEnvRefs(refs map[string]struct{}) {
	e.left.collectEnvRefs(refs)
	e.right.collectEnvRefs(refs)
}

type prefixExpr struct {
	value  term
	prefix term
}

func (e *prefixExpr) Eval(rc *RunContext) bool {
	return strings.HasPrefix(e.value.resolve(rc), e.prefix.resolve(rc))
}

func (e *prefixExpr) collectEnvRefs(refs map[string]struct{}) {
	e.value.collectEnvRefs(refs)
	e.prefix.collectEnvRefs(refs)
}

type andExpr struct{ left, right Expr }

func (e *andExpr) Eval(rc *RunContext) bool {
	return e.left.Eval(rc) && e.right.Eval(rc)
}

func (e *andExpr) collectEnvRefs(refs map[string]struct{}) {
	e.left.collectEnvRefs(refs)
	e.right.collectEnvRefs(refs)
}

type orExpr struct{ left, right Expr }

func (e *orExpr) Eval(rc *RunContext) bool {
	return e.left.Eval(rc) || e.right.Eval(rc)
}

func (e *orExpr) collectEnvRefs(refs map[string]struct{}) {
	e.left.collectEnvRefs(refs)
	e.right.collectEnvRefs(refs)
}

type notExpr struct{ inner Expr }

func (e *notExpr) Eval(rc *RunContext) bool {
	return !e.inner.Eval(rc)
}

func (e *notExpr) collectEnvRefs(refs map[string]struct{}) {
	e.inner.collectEnvRefs(refs)
}

// ---- lexer ----

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch c {
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case '=':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokEq, text: "==", pos: start}, nil
		}
		return token{}, l.errorf(start, "expected '==', found '='")
	case '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokNeq, text: "!=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokNot, text: "!", pos: start}, nil
	case '&':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '&' {
			l.pos += 2
			return token{kind: tokAnd, text: "&&", pos: start}, nil
		}
		return token{}, l.errorf(start, "expected '&&', found '&'")
	case '|':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '|' {
			l.pos += 2
			return token{kind: tokOr, text: "||", pos: start}, nil
		}
		return token{}, l.errorf(start, "expected '||', found '|'")
	case '"':
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != '"' {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
			}
			sb.WriteByte(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, l.errorf(start, "unterminated string literal")
		}
		l.pos++ // closing quote
		return token{kind: tokString, text: sb.String(), pos: start}, nil
	}

	if isIdentStart(c) {
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	}

	return token{}, l.errorf(start, "unexpected character %q", c)
}

func (l *lexer) errorf(pos int, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s at offset %d", commonerrors.ErrConditionSyntax, msg, pos)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '.' || (c >= '0' && c <= '9')
}

// ---- parser ----

type parser struct {
	lex  *lexer
	cur  token
	peek bool
}

// ParseCondition parses a condition expression into an evaluable tree
func ParseCondition(src string) (Expr, error) {
	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d",
			commonerrors.ErrConditionSyntax, p.cur.text, p.cur.pos)
	}
	return expr, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.cur.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ')' at offset %d",
				commonerrors.ErrConditionSyntax, p.cur.pos)
		}
		return expr, p.advance()

	case tokIdent:
		if p.cur.text == "startswith" {
			return p.parseStartswith()
		}
		return p.parseComparison()

	case tokString:
		return p.parseComparison()
	}

	return nil, fmt.Errorf("%w: unexpected %q at offset %d",
		commonerrors.ErrConditionSyntax, p.cur.text, p.cur.pos)
}

func (p *parser) parseStartswith() (Expr, error) {
	if err := p.advance(); err != nil { // consume 'startswith'
		return nil, err
	}
	if p.cur.kind != tokLParen {
		return nil, fmt.Errorf("%w: expected '(' after startswith at offset %d",
			commonerrors.ErrConditionSyntax, p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	value, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokComma {
		return nil, fmt.Errorf("%w: startswith takes two arguments, expected ',' at offset %d",
			commonerrors.ErrConditionSyntax, p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	prefix, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokRParen {
		return nil, fmt.Errorf("%w: expected ')' at offset %d",
			commonerrors.ErrConditionSyntax, p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	return &prefixExpr{value: value, prefix: prefix}, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	var negate bool
	switch p.cur.kind {
	case tokEq:
		negate = false
	case tokNeq:
		negate = true
	default:
		return nil, fmt.Errorf("%w: expected '==' or '!=' at offset %d",
			commonerrors.ErrConditionSyntax, p.cur.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	return &compareExpr{left: left, right: right, negate: negate}, nil
}

func (p *parser) parseTerm() (term, error) {
	switch p.cur.kind {
	case tokString:
		t := term{literal: p.cur.text}
		return t, p.advance()

	case tokIdent:
		name := p.cur.text
		if !isKnownField(name) {
			return term{}, fmt.Errorf("%w: %q at offset %d",
				commonerrors.ErrUnknownField, name, p.cur.pos)
		}
		t := term{field: name, isField: true}
		return t, p.advance()
	}

	return term{}, fmt.Errorf("%w: expected field or string literal at offset %d",
		commonerrors.ErrConditionSyntax, p.cur.pos)
}

func isKnownField(name string) bool {
	switch name {
	case "event", "branch", "tag", "ref":
		return true
	}
	if rest, ok := strings.CutPrefix(name, "env."); ok {
		return rest != ""
	}
	return false
}
