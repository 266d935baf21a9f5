// Package parser implements a hand-rolled recursive-descent parser for
// the graph query language, producing a pkg/query.Query AST or a
// position-aware errs.ParseError.
package parser

import (
	"strconv"
	"strings"

	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/query"
)

type parser struct {
	lex *lexer
}

// Parse parses a query string into a query.Query.
func Parse(input string) (query.Query, error) {
	p := &parser{lex: newLexer(input)}
	q, err := p.parseQuery()
	if err != nil {
		return query.Query{}, err
	}
	if t := p.lex.peek(); t.kind != tokEOF {
		return query.Query{}, errs.ParseError("unexpected trailing input: "+t.text, t.pos)
	}
	return q, nil
}

func (p *parser) fail(msg string, pos int) error {
	return errs.ParseError(msg, pos)
}

func (p *parser) parseQuery() (query.Query, error) {
	q := query.Query{}

	if pre, agg, ok, err := p.tryParsePreamble(); err != nil {
		return query.Query{}, err
	} else if ok {
		q.Preamble = pre
		q.Aggregate = agg
	}

	var parts []query.Part
	for {
		part, err := p.parsePart()
		if err != nil {
			return query.Query{}, err
		}
		parts = append(parts, part)

		next := p.lex.peek()
		if next.kind == tokIdent && (next.text == "sort" || next.text == "limit") {
			break
		}
		if next.kind == tokEOF {
			break
		}
	}
	// store reversed: first-evaluated part last in the textual list.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	q.Parts = parts

	for {
		next := p.lex.peek()
		if next.kind != tokIdent {
			break
		}
		switch next.text {
		case "sort":
			p.lex.next()
			name := p.lex.next()
			order := "asc"
			if o := p.lex.peek(); o.kind == tokIdent && (o.text == "asc" || o.text == "desc") {
				p.lex.next()
				order = o.text
			}
			q.Sort = append(q.Sort, query.Sort{Name: name.text, Order: order})
		case "limit":
			p.lex.next()
			n := p.lex.next()
			v, err := strconv.Atoi(n.text)
			if err != nil {
				return query.Query{}, p.fail("expected integer after limit", n.pos)
			}
			q.Limit = &v
		default:
			return query.Query{}, p.fail("unexpected token: "+next.text, next.pos)
		}
		if p.lex.peek().kind == tokEOF {
			break
		}
	}

	return q, nil
}

// tryParsePreamble consumes either "aggregate(...): " or "(k=v,...):"
// if present, returning ok=false if the input has neither.
func (p *parser) tryParsePreamble() (map[string]any, *query.Aggregate, bool, error) {
	save := *p.lex
	t := p.lex.peek()

	if t.kind == tokIdent && t.text == "aggregate" {
		p.lex.next()
		if s := p.lex.next(); s.text != "(" {
			return nil, nil, false, p.fail("expected ( after aggregate", s.pos)
		}
		agg, err := p.parseAggregateBody()
		if err != nil {
			return nil, nil, false, err
		}
		if s := p.lex.next(); s.text != ")" {
			return nil, nil, false, p.fail("expected ) to close aggregate(...)", s.pos)
		}
		if s := p.lex.next(); s.text != ":" {
			return nil, nil, false, p.fail("expected : after aggregate(...)", s.pos)
		}
		return nil, agg, true, nil
	}

	if t.kind == tokSymbol && t.text == "(" {
		p.lex.next()
		kv := map[string]any{}
		for {
			name := p.lex.next()
			if name.kind != tokIdent {
				*p.lex = save
				return nil, nil, false, nil
			}
			eq := p.lex.next()
			if eq.text != "=" {
				*p.lex = save
				return nil, nil, false, nil
			}
			val, err := p.parseValue()
			if err != nil {
				*p.lex = save
				return nil, nil, false, nil
			}
			kv[name.text] = val
			next := p.lex.next()
			if next.text == "," {
				continue
			}
			if next.text == ")" {
				break
			}
			*p.lex = save
			return nil, nil, false, nil
		}
		colon := p.lex.peek()
		if colon.text != ":" {
			*p.lex = save
			return nil, nil, false, nil
		}
		p.lex.next()
		return kv, nil, true, nil
	}

	return nil, nil, false, nil
}

func (p *parser) parseAggregateBody() (*query.Aggregate, error) {
	agg := &query.Aggregate{}
	for {
		if p.lex.peek().text == ":" {
			break
		}
		name := p.lex.next()
		gv := query.AggregateVariable{Name: name.text}
		if as := p.lex.peek(); as.kind == tokIdent && as.text == "as" {
			p.lex.next()
			alias := p.lex.next()
			gv.As = alias.text
		}
		agg.GroupVars = append(agg.GroupVars, gv)
		if p.lex.peek().text == "," {
			p.lex.next()
			continue
		}
		break
	}
	if c := p.lex.next(); c.text != ":" {
		return nil, p.fail("expected : in aggregate group list", c.pos)
	}
	for {
		fn := p.lex.next()
		if lp := p.lex.next(); lp.text != "(" {
			return nil, p.fail("expected ( after aggregate function name", lp.pos)
		}
		fnDef := query.AggregateFunction{Func: fn.text}
		src := p.lex.next()
		if n, err := strconv.Atoi(src.text); err == nil && src.kind == tokNumber {
			fnDef.SourceIsInt = true
			fnDef.SourceInt = n
		} else {
			fnDef.Source = src.text
		}
		for p.lex.peek().kind == tokSymbol && (p.lex.peek().text == "+" || p.lex.peek().text == "-" || p.lex.peek().text == "*" || p.lex.peek().text == "/" || p.lex.peek().text == "%") {
			opTok := p.lex.next()
			numTok := p.lex.next()
			num, _ := strconv.ParseFloat(numTok.text, 64)
			fnDef.Ops = append(fnDef.Ops, query.AggregateOp{Operator: opTok.text, Number: num})
		}
		if rp := p.lex.next(); rp.text != ")" {
			return nil, p.fail("expected ) to close aggregate function", rp.pos)
		}
		if as := p.lex.peek(); as.kind == tokIdent && as.text == "as" {
			p.lex.next()
			alias := p.lex.next()
			fnDef.As = alias.text
		}
		agg.Functions = append(agg.Functions, fnDef)
		if p.lex.peek().text == "," {
			p.lex.next()
			continue
		}
		break
	}
	return agg, nil
}

func (p *parser) parsePart() (query.Part, error) {
	term, err := p.parseTerm()
	if err != nil {
		return query.Part{}, err
	}
	part := query.Part{Term: term}
	if p.lex.peek().text == "+" {
		p.lex.next()
		part.Pinned = true
	}
	if nav, ok, err := p.tryParseNavigation(); err != nil {
		return query.Part{}, err
	} else if ok {
		part.Navigation = nav
	}
	return part, nil
}

func (p *parser) parseTerm() (query.Term, error) {
	left, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	for {
		next := p.lex.peek()
		if next.kind == tokIdent && (next.text == "and" || next.text == "or") {
			p.lex.next()
			right, err := p.parseSimple()
			if err != nil {
				return nil, err
			}
			left = query.CombinedTerm{Left: left, Op: next.text, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) parseSimple() (query.Term, error) {
	if t := p.lex.peek(); t.kind == tokSymbol && t.text == "(" {
		p.lex.next()
		inner, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if c := p.lex.next(); c.text != ")" {
			return nil, p.fail("expected )", c.pos)
		}
		return inner, nil
	}
	return p.parseLeaf()
}

var predicateOps = map[string]bool{
	"<=": true, ">=": true, ">": true, "<": true, "==": true, "!=": true, "=~": true, "!~": true,
}

func (p *parser) parseLeaf() (query.Term, error) {
	t := p.lex.next()
	if t.kind == tokEOF {
		return nil, p.fail("unexpected end of query", t.pos)
	}

	if t.kind == tokIdent && t.text == "all" {
		return query.AllTerm{}, nil
	}
	if t.kind == tokIdent && t.text == "is" {
		if lp := p.lex.next(); lp.text != "(" {
			return nil, p.fail("expected ( after is", lp.pos)
		}
		var kinds []string
		for {
			k := p.lex.next()
			kinds = append(kinds, k.text)
			if p.lex.peek().text == "," {
				p.lex.next()
				continue
			}
			break
		}
		if rp := p.lex.next(); rp.text != ")" {
			return nil, p.fail("expected ) after is(...)", rp.pos)
		}
		return query.IsTerm{Kinds: kinds}, nil
	}
	if t.kind == tokIdent && t.text == "id" {
		if lp := p.lex.next(); lp.text != "(" {
			return nil, p.fail("expected ( after id", lp.pos)
		}
		id := p.lex.next()
		if rp := p.lex.next(); rp.text != ")" {
			return nil, p.fail("expected ) after id(...)", rp.pos)
		}
		return query.IdTerm{ID: id.text}, nil
	}

	if t.kind == tokIdent {
		name := t.text
		mod := query.ArrayModNone
		for _, m := range []query.ArrayMod{query.ArrayModForAll, query.ArrayModForAny, query.ArrayModForNone} {
			prefix := string(m) + "."
			if strings.HasPrefix(name, prefix) {
				mod = m
				name = strings.TrimPrefix(name, prefix)
			}
		}

		if p.lex.peek().text == "(" {
			p.lex.next()
			var args []any
			arg := ""
			first := true
			for p.lex.peek().text != ")" {
				v, err := p.parseValue()
				if err != nil {
					return nil, err
				}
				if first {
					if s, ok := v.(string); ok {
						arg = s
					}
					first = false
				} else {
					args = append(args, v)
				}
				if p.lex.peek().text == "," {
					p.lex.next()
					continue
				}
				break
			}
			if rp := p.lex.next(); rp.text != ")" {
				return nil, p.fail("expected ) to close function call", rp.pos)
			}
			return query.FunctionTerm{Fn: name, Arg: arg, Args: args}, nil
		}

		opTok := p.lex.next()
		op := opTok.text
		if op == "not" {
			inTok := p.lex.next()
			if inTok.text != "in" {
				return nil, p.fail("expected 'in' after 'not'", inTok.pos)
			}
			op = "not in"
		} else if op == "in" {
			// op stays "in"
		} else if !predicateOps[op] {
			return nil, p.fail("expected comparison operator, got "+op, opTok.pos)
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return query.Predicate{Name: name, Op: op, Value: val, Mod: mod}, nil
	}

	return nil, p.fail("unexpected token: "+t.text, t.pos)
}

func (p *parser) parseValue() (any, error) {
	t := p.lex.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		return parseNumber(t.text), nil
	case tokIdent:
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return t.text, nil
	case tokSymbol:
		if t.text == "[" {
			var arr []any
			for p.lex.peek().text != "]" {
				v, err := p.parseValue()
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
				if p.lex.peek().text == "," {
					p.lex.next()
					continue
				}
				break
			}
			p.lex.next() // ]
			return arr, nil
		}
	}
	return nil, p.fail("expected a value, got "+t.text, t.pos)
}

func (p *parser) tryParseNavigation() (*query.Navigation, bool, error) {
	t := p.lex.peek()
	if !(t.kind == tokSymbol && (t.text == "-" || t.text == "<-")) {
		return nil, false, nil
	}
	save := *p.lex
	direction := "out"
	if t.text == "<-" {
		direction = "in"
		p.lex.next()
	} else {
		p.lex.next()
	}

	nav := query.DefaultNavigation(direction)

	// optional edge type identifier
	if id := p.lex.peek(); id.kind == tokIdent {
		p.lex.next()
		nav.EdgeType = id.text
	}
	// optional [range]
	if p.lex.peek().text == "[" {
		p.lex.next()
		minTok := p.lex.next()
		minVal, _ := strconv.Atoi(minTok.text)
		nav.MinHops = minVal
		nav.MaxHops = minVal
		if sep := p.lex.peek(); sep.text == ":" || sep.text == ".." || sep.text == "," {
			p.lex.next()
			if p.lex.peek().text == "]" {
				nav.MaxHops = query.MaxHops
			} else {
				maxTok := p.lex.next()
				maxVal, _ := strconv.Atoi(maxTok.text)
				nav.MaxHops = maxVal
			}
		}
		if rb := p.lex.next(); rb.text != "]" {
			*p.lex = save
			return nil, false, nil
		}
	}

	closing := p.lex.next()
	switch {
	case direction == "in" && closing.text == "-":
	case direction == "out" && closing.text == "->":
	case direction == "out" && closing.text == "-":
		direction = "inout"
		nav.Direction = direction
	default:
		*p.lex = save
		return nil, false, nil
	}

	return &nav, true, nil
}
