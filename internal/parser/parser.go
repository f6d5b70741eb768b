// Package parser turns DSL source text into a spanned syntax tree.
//
// Statements are recovered independently: a malformed statement yields a
// diagnostic and the parser resynchronizes at the next semicolon, so one
// error does not hide errors in later statements.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/diag"
)

type parser struct {
	toks  []token
	pos   int
	diags []*diag.Diagnostic
}

// Parse parses a whole program. The returned program contains every
// statement that parsed cleanly; diagnostics carry the rest.
func Parse(filename, src string) (*ast.Program, []*diag.Diagnostic) {
	p := &parser{toks: lex(filename, src)}
	prog := &ast.Program{}

	for !p.at(tokEOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			p.report(err)
			p.synchronize()
			continue
		}
		prog.Stmts = append(prog.Stmts, stmt)
	}
	return prog, p.diags
}

// ParseExpr parses a single expression, as used when replaying
// certificate steps. The entire input must be consumed.
func ParseExpr(src string) (ast.Expr, error) {
	p := &parser{toks: lex("", src)}
	e, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("parse expression: %s", err.Message)
	}
	if !p.at(tokEOF) {
		return nil, fmt.Errorf("parse expression: trailing input at %s", p.peek().span)
	}
	return e, nil
}

type parseError struct {
	Span     diag.Span
	Expected string
	Found    string
	Message  string
	Hint     string
}

func (p *parser) errExpected(expected string) *parseError {
	t := p.peek()
	return &parseError{
		Span:     t.span,
		Expected: expected,
		Found:    t.describe(),
		Message:  fmt.Sprintf("expected %s, found %s", expected, t.describe()),
	}
}

func (p *parser) report(err *parseError) {
	p.diags = append(p.diags, &diag.Diagnostic{
		Stage:    diag.StageParse,
		Rule:     "syntax",
		Severity: diag.SeverityError,
		Message:  err.Message,
		Hint:     err.Hint,
		Span:     err.Span,
	})
}

// synchronize skips to just past the next semicolon (or EOF) so the next
// statement can be parsed independently.
func (p *parser) synchronize() {
	for !p.at(tokEOF) {
		if p.at(tokSemi) {
			p.advance()
			return
		}
		p.advance()
	}
}

func (p *parser) peek() token         { return p.toks[p.pos] }
func (p *parser) at(k tokenKind) bool { return p.toks[p.pos].kind == k }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind) (token, *parseError) {
	if !p.at(k) {
		return token{}, p.errExpected(k.String())
	}
	return p.advance(), nil
}

func (p *parser) atIdent(name string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.lexeme, name)
}

func (p *parser) parseStatement() (ast.Stmt, *parseError) {
	t := p.peek()
	if t.kind != tokIdent {
		return nil, p.errExpected("a statement keyword")
	}
	switch strings.ToLower(t.lexeme) {
	case "const":
		return p.parseConstDecl()
	case "symbol":
		return p.parseSymbolDecl()
	case "operator":
		return p.parseOperatorDecl()
	case "matrix":
		return p.parseNamedExprDecl("matrix")
	case "state":
		return p.parseNamedExprDecl("state")
	case "density":
		return p.parseNamedExprDecl("density")
	case "unitary":
		return p.parseNamedExprDecl("unitary")
	case "hamiltonian":
		return p.parseHamiltonianDef()
	case "func":
		return p.parseFunctionDef()
	case "measurement":
		return p.parseMeasurementDef()
	case "assume":
		return p.parseAssume()
	case "prove":
		return p.parseProve()
	default:
		e := p.errExpected("a statement keyword")
		e.Hint = fmt.Sprintf("statements begin with const, symbol, operator, matrix, state, density, unitary, Hamiltonian, func, measurement, assume, or prove; %q is none of these", t.lexeme)
		return nil, e
	}
}

func (p *parser) parseName() (token, *parseError) {
	t, err := p.expect(tokIdent)
	if err != nil {
		return token{}, err
	}
	if isKeyword(t.lexeme) {
		return token{}, &parseError{
			Span:    t.span,
			Message: fmt.Sprintf("cannot use keyword %q as a name", t.lexeme),
		}
	}
	return t, nil
}

func (p *parser) parseConstDecl() (ast.Stmt, *parseError) {
	kw := p.advance()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.ConstDecl{Name: name.lexeme, Value: value, Sp: kw.span}, nil
}

func (p *parser) parseSymbolDecl() (ast.Stmt, *parseError) {
	kw := p.advance()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.SymbolDecl{Name: name.lexeme, Sp: kw.span}, nil
}

func (p *parser) parseOperatorDecl() (ast.Stmt, *parseError) {
	kw := p.advance()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	dim := 0
	if p.at(tokLParen) {
		p.advance()
		num, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		n, convErr := strconv.Atoi(num.lexeme)
		if convErr != nil || n <= 0 {
			return nil, &parseError{
				Span:    num.span,
				Message: fmt.Sprintf("operator dimension must be a positive integer, found %q", num.lexeme),
			}
		}
		dim = n
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.OperatorDecl{Name: name.lexeme, Dim: dim, Sp: kw.span}, nil
}

func (p *parser) parseNamedExprDecl(kind string) (ast.Stmt, *parseError) {
	kw := p.advance()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	switch kind {
	case "matrix":
		return &ast.MatrixDecl{Name: name.lexeme, Value: value, Sp: kw.span}, nil
	case "state":
		return &ast.StateDecl{Name: name.lexeme, Value: value, Sp: kw.span}, nil
	case "density":
		return &ast.DensityDecl{Name: name.lexeme, Value: value, Sp: kw.span}, nil
	default:
		return &ast.UnitaryDecl{Name: name.lexeme, Value: value, Sp: kw.span}, nil
	}
}

func (p *parser) parseParamList() ([]string, *parseError) {
	var params []string
	if !p.at(tokLParen) {
		return nil, nil
	}
	p.advance()
	for {
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		params = append(params, name.lexeme)
		if p.at(tokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *parser) parseHamiltonianDef() (ast.Stmt, *parseError) {
	kw := p.advance()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.HamiltonianDef{Name: name.lexeme, Params: params, Body: body, Sp: kw.span}, nil
}

func (p *parser) parseFunctionDef() (ast.Stmt, *parseError) {
	kw := p.advance()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.FunctionDef{Name: name.lexeme, Params: params, Body: body, Sp: kw.span}, nil
}

func (p *parser) parseMeasurementDef() (ast.Stmt, *parseError) {
	kw := p.advance()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign); err != nil {
		return nil, err
	}
	kindTok, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	var kind ast.MeasKind
	switch strings.ToLower(kindTok.lexeme) {
	case "projective":
		kind = ast.MeasProjective
	case "povm":
		kind = ast.MeasPOVM
	default:
		return nil, &parseError{
			Span:    kindTok.span,
			Message: fmt.Sprintf("expected projective or povm, found %q", kindTok.lexeme),
		}
	}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var ops []ast.Expr
	for {
		op, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		if p.at(tokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.MeasurementDef{Name: name.lexeme, Kind: kind, Operators: ops, Sp: kw.span}, nil
}

func (p *parser) parseAssume() (ast.Stmt, *parseError) {
	kw := p.advance()
	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.atIdent("is") {
		p.advance()
		id, ok := lhs.(*ast.Ident)
		if !ok {
			return nil, &parseError{
				Span:    lhs.Span(),
				Message: "property assumption requires a plain symbol on the left of 'is'",
			}
		}
		propTok, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		prop, ok := ast.PropertyKindFromName(strings.ToLower(propTok.lexeme))
		if !ok {
			return nil, &parseError{
				Span:    propTok.span,
				Message: fmt.Sprintf("unknown property %q", propTok.lexeme),
				Hint:    "known properties: real, complex, hermitian, unitary, psd, positive, trace_one",
			}
		}
		if _, err := p.expect(tokSemi); err != nil {
			return nil, err
		}
		return &ast.AssumeStmt{
			Assumption: ast.Assumption{Kind: ast.AssumeProperty, Symbol: id.Name, Property: prop, Sp: kw.span},
			Sp:         kw.span,
		}, nil
	}

	if _, err := p.expect(tokEqEq); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.AssumeStmt{
		Assumption: ast.Assumption{Kind: ast.AssumeRelation, LHS: lhs, RHS: rhs, Sp: kw.span},
		Sp:         kw.span,
	}, nil
}

func (p *parser) parseProve() (ast.Stmt, *parseError) {
	kw := p.advance()

	// prove hermitian(expr); style property goals
	if t := p.peek(); t.kind == tokIdent {
		if prop, ok := ast.PropertyKindFromName(strings.ToLower(t.lexeme)); ok && p.toks[p.pos+1].kind == tokLParen {
			p.advance()
			p.advance()
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen); err != nil {
				return nil, err
			}
			if _, err := p.expect(tokSemi); err != nil {
				return nil, err
			}
			return &ast.ProveStmt{
				Goal: ast.ProofGoal{Kind: ast.GoalProperty, Property: prop, Arg: arg},
				Sp:   kw.span,
			}, nil
		}
	}

	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokEqEq); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi); err != nil {
		return nil, err
	}
	return &ast.ProveStmt{
		Goal: ast.ProofGoal{Kind: ast.GoalIdentity, LHS: lhs, RHS: rhs},
		Sp:   kw.span,
	}, nil
}
