package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quanta-labs/qprove/internal/ast"
)

// Precedence, loosest to tightest: sum/difference, product/quotient,
// unary sign, right-associative power, postfix adjoint.

func (p *parser) parseExpr() (ast.Expr, *parseError) {
	return p.parseSum()
}

func (p *parser) parseSum() (ast.Expr, *parseError) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		op := p.advance()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		kind := ast.OpAdd
		if op.kind == tokMinus {
			kind = ast.OpSub
		}
		left = &ast.Binary{Op: kind, X: left, Y: right, Sp: op.span}
	}
	return left, nil
}

func (p *parser) parseProduct() (ast.Expr, *parseError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(tokStar) || p.at(tokSlash) {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		kind := ast.OpMul
		if op.kind == tokSlash {
			kind = ast.OpDiv
		}
		left = &ast.Binary{Op: kind, X: left, Y: right, Sp: op.span}
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expr, *parseError) {
	if p.at(tokMinus) {
		op := p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Neg{X: inner, Sp: op.span}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (ast.Expr, *parseError) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.at(tokCaret) {
		op := p.advance()
		// right associative: a^b^c = a^(b^c)
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: ast.OpPow, X: base, Y: exp, Sp: op.span}, nil
	}
	return base, nil
}

func (p *parser) parsePostfix() (ast.Expr, *parseError) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.at(tokAdjoint) {
		op := p.advance()
		e = &ast.Dagger{X: e, Sp: op.span}
	}
	return e, nil
}

func (p *parser) parsePrimary() (ast.Expr, *parseError) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.advance()
		v, err := strconv.ParseFloat(t.lexeme, 64)
		if err != nil {
			return nil, &parseError{
				Span:    t.span,
				Message: fmt.Sprintf("invalid number %q", t.lexeme),
			}
		}
		return &ast.Number{Value: complex(v, 0), Sp: t.span}, nil

	case tokIdent:
		if isKeyword(t.lexeme) {
			e := p.errExpected("an expression")
			e.Hint = fmt.Sprintf("keyword %q cannot appear inside an expression", t.lexeme)
			return nil, e
		}
		p.advance()
		if p.at(tokLParen) {
			return p.parseCall(t)
		}
		return &ast.Ident{Name: t.lexeme, Sp: t.span}, nil

	case tokLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case tokLBracket:
		return p.parseBracket()

	default:
		return nil, p.errExpected("an expression")
	}
}

// parseCall handles builtin and user function application. Builtins with
// dedicated AST nodes are lowered here so later stages only ever see the
// node forms.
func (p *parser) parseCall(name token) (ast.Expr, *parseError) {
	p.advance() // (
	var args []ast.Expr
	if !p.at(tokRParen) {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.at(tokComma) {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}

	arity := func(n int) *parseError {
		if len(args) != n {
			return &parseError{
				Span:    name.span,
				Message: fmt.Sprintf("%s takes %d argument(s), found %d", name.lexeme, n, len(args)),
			}
		}
		return nil
	}

	switch strings.ToLower(name.lexeme) {
	case "dagger":
		if err := arity(1); err != nil {
			return nil, err
		}
		return &ast.Dagger{X: args[0], Sp: name.span}, nil
	case "transpose":
		if err := arity(1); err != nil {
			return nil, err
		}
		return &ast.Transpose{X: args[0], Sp: name.span}, nil
	case "trace":
		if err := arity(1); err != nil {
			return nil, err
		}
		return &ast.Trace{X: args[0], Sp: name.span}, nil
	case "tensor":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &ast.Tensor{X: args[0], Y: args[1], Sp: name.span}, nil
	case "commutator":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &ast.Commutator{X: args[0], Y: args[1], Sp: name.span}, nil
	case "anticommutator":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &ast.AntiCommutator{X: args[0], Y: args[1], Sp: name.span}, nil
	default:
		return &ast.Call{Name: name.lexeme, Args: args, Sp: name.span}, nil
	}
}

// parseBracket parses [...] forms: a matrix literal when the first element
// is itself bracketed, a BracketPair for exactly two elements (resolved by
// the type checker to commutator or 2-vector), and a vector otherwise.
func (p *parser) parseBracket() (ast.Expr, *parseError) {
	open := p.advance() // [

	if p.at(tokLBracket) {
		var rows [][]ast.Expr
		for {
			if _, err := p.expect(tokLBracket); err != nil {
				return nil, err
			}
			var row []ast.Expr
			for {
				el, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				row = append(row, el)
				if p.at(tokComma) {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(tokRBracket); err != nil {
				return nil, err
			}
			rows = append(rows, row)
			if p.at(tokComma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		return &ast.Matrix{Rows: rows, Sp: open.span}, nil
	}

	var elems []ast.Expr
	for {
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
		if p.at(tokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(tokRBracket); err != nil {
		return nil, err
	}
	if len(elems) == 2 {
		return &ast.BracketPair{Left: elems[0], Right: elems[1], Sp: open.span}, nil
	}
	return &ast.Vector{Elems: elems, Sp: open.span}, nil
}
