package lang

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser is a recursive-descent parser over a fixed token stream,
// producing the typed AST nodes in ast.go. Grounded on the filter-DSL
// parser this language runtime supersedes, generalized from a single
// boolean-expression grammar to the full statement grammar of spec.md §6.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser tokenizes input and returns a Parser ready to parse one
// statement from it.
func NewParser(input string) (*Parser, error) {
	toks, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, err
	}
	return &Parser{tokens: toks}, nil
}

func (p *Parser) cur() Token  { return p.tokens[p.pos] }
func (p *Parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}
func (p *Parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}
func (p *Parser) at(t TokenType) bool { return p.cur().Type == t }
func (p *Parser) accept(t TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}
func (p *Parser) expect(t TokenType) (Token, error) {
	if !p.at(t) {
		return Token{}, fmt.Errorf("lang: expected token %v at %d:%d, got %v %q", t, p.cur().Line, p.cur().Column, p.cur().Type, p.cur().Value)
	}
	return p.advance(), nil
}

// ParseStatement parses exactly one top-level statement.
func (p *Parser) ParseStatement() (Node, error) {
	switch p.cur().Type {
	case TokSelect:
		return p.parseSelect()
	case TokInsert:
		return p.parseInsert()
	case TokUpdate:
		return p.parseUpdate()
	case TokDelete:
		return p.parseDelete()
	case TokCreate:
		return p.parseCreate()
	case TokDrop:
		return p.parseDrop()
	case TokRefresh:
		return p.parseRefresh()
	case TokShow:
		return p.parseShow()
	case TokDescribe:
		return p.parseDescribe()
	case TokAnalyze:
		return p.parseAnalyze()
	case TokFunction:
		return p.parseFunctionDef()
	case TokLet:
		return p.parseLet()
	case TokMatch:
		return p.parseMatch()
	case TokFor:
		return p.parseFor()
	case TokWhile:
		return p.parseWhile()
	case TokTry:
		return p.parseTry()
	default:
		return p.parseExpr()
	}
}

// ---- Data statements ----

func (p *Parser) parseSelect() (Node, error) {
	p.advance() // SELECT
	sel := &Select{}
	if p.accept(TokDistinct) {
		sel.Distinct = true
	}
	for {
		expr, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Columns = append(sel.Columns, expr)
		if !p.accept(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokFrom); err != nil {
		return nil, err
	}
	tbl, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	sel.From = tbl.Value

	if p.accept(TokJoin) {
		jtbl, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokOn); err != nil {
			return nil, err
		}
		onExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Join = &JoinClause{Table: jtbl.Value, On: onExpr}
	}

	if p.accept(TokWhere) {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = w
	}
	if p.accept(TokGroup) {
		if _, err := p.expect(TokBy); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, e)
			if !p.accept(TokComma) {
				break
			}
		}
	}
	if p.accept(TokHaving) {
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = h
	}
	if p.accept(TokOrder) {
		if _, err := p.expect(TokBy); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			term := OrderTerm{Expr: e}
			if p.accept(TokDesc) {
				term.Desc = true
			} else {
				p.accept(TokAsc)
			}
			sel.OrderBy = append(sel.OrderBy, term)
			if !p.accept(TokComma) {
				break
			}
		}
	}
	if p.accept(TokLimit) {
		n, err := p.expect(TokNumber)
		if err != nil {
			return nil, err
		}
		v, err := strconv.Atoi(n.Value)
		if err != nil {
			return nil, fmt.Errorf("lang: invalid LIMIT %q", n.Value)
		}
		sel.Limit = v
		sel.HasLimit = true
	}
	return sel, nil
}

// parseSelectItem accepts `*`, a window aggregate `@AGG(...)`, or a
// general expression.
func (p *Parser) parseSelectItem() (Node, error) {
	if p.at(TokStar) {
		p.advance()
		return Identifier{Name: "*"}, nil
	}
	if p.at(TokAt) {
		p.advance()
		call, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c, ok := call.(Call)
		if !ok {
			return nil, fmt.Errorf("lang: @ must be followed by an aggregate call")
		}
		return WindowCall{Agg: &c}, nil
	}
	return p.parseExpr()
}

func (p *Parser) parseInsert() (Node, error) {
	p.advance() // INSERT
	if _, err := p.expect(TokInto); err != nil {
		return nil, err
	}
	tbl, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	ins := &Insert{Table: tbl.Value}
	if p.accept(TokLParen) {
		for {
			c, err := p.expect(TokIdent)
			if err != nil {
				return nil, err
			}
			ins.Columns = append(ins.Columns, c.Value)
			if !p.accept(TokComma) {
				break
			}
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokValues); err != nil {
		return nil, err
	}
	for {
		if _, err := p.expect(TokLParen); err != nil {
			return nil, err
		}
		var row []Node
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if !p.accept(TokComma) {
				break
			}
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		ins.Rows = append(ins.Rows, row)
		if !p.accept(TokComma) {
			break
		}
	}
	return ins, nil
}

func (p *Parser) parseUpdate() (Node, error) {
	p.advance() // UPDATE
	tbl, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	upd := &Update{Table: tbl.Value, Set: map[string]Node{}}
	if _, err := p.expect(TokSet); err != nil {
		return nil, err
	}
	for {
		col, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAssign); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		upd.Set[col.Value] = val
		if !p.accept(TokComma) {
			break
		}
	}
	if p.accept(TokWhere) {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		upd.Where = w
	}
	return upd, nil
}

func (p *Parser) parseDelete() (Node, error) {
	p.advance() // DELETE
	if _, err := p.expect(TokFrom); err != nil {
		return nil, err
	}
	tbl, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	del := &Delete{Table: tbl.Value}
	if p.accept(TokWhere) {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		del.Where = w
	}
	return del, nil
}

func (p *Parser) parseCreate() (Node, error) {
	p.advance() // CREATE
	switch {
	case p.at(TokTable):
		return p.parseCreateTable()
	case p.at(TokIndex):
		return p.parseCreateIndex()
	case p.at(TokMaterialized):
		p.advance()
		if _, err := p.expect(TokView); err != nil {
			return nil, err
		}
		return p.parseCreateViewBody()
	default:
		return nil, fmt.Errorf("lang: expected TABLE, INDEX, or MATERIALIZED VIEW after CREATE, got %v", p.cur().Type)
	}
}

func (p *Parser) parseCreateTable() (Node, error) {
	p.advance() // TABLE
	tbl, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	ct := &CreateTable{Table: tbl.Value}
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	for {
		name, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		typ, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		col := ColumnDef{Name: name.Value, Type: strings.ToLower(typ.Value), Nullable: true}
		if p.accept(TokNot) {
			if _, err := p.expect(TokIdent); err != nil { // NULL keyword as ident
				return nil, err
			}
			col.Nullable = false
		}
		ct.Columns = append(ct.Columns, col)
		if !p.accept(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return ct, nil
}

func (p *Parser) parseCreateIndex() (Node, error) {
	p.advance() // INDEX
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokOn); err != nil {
		return nil, err
	}
	tbl, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	ci := &CreateIndex{Name: name.Value, Table: tbl.Value, Kind: "btree"}
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	for {
		c, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		ci.Columns = append(ci.Columns, c.Value)
		if !p.accept(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	if p.accept(TokUsing) {
		k, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		ci.Kind = strings.ToLower(k.Value)
	}
	if p.accept(TokUnique) {
		ci.Unique = true
	}
	return ci, nil
}

func (p *Parser) parseCreateViewBody() (Node, error) {
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokAs); err != nil {
		return nil, err
	}
	sel, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	return &CreateView{Name: name.Value, Select: sel.(*Select)}, nil
}

func (p *Parser) parseDrop() (Node, error) {
	p.advance() // DROP
	var kind DropKind
	switch p.cur().Type {
	case TokTable:
		kind = DropTableKind
	case TokIndex:
		kind = DropIndexKind
	case TokView:
		kind = DropViewKind
	default:
		return nil, fmt.Errorf("lang: expected TABLE, INDEX, or VIEW after DROP")
	}
	p.advance()
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	return &Drop{Kind: kind, Name: name.Value}, nil
}

func (p *Parser) parseRefresh() (Node, error) {
	p.advance() // REFRESH
	if _, err := p.expect(TokMaterialized); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokView); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	return &RefreshView{Name: name.Value}, nil
}

func (p *Parser) parseShow() (Node, error) {
	p.advance() // SHOW
	var kind ShowKind
	switch p.cur().Type {
	case TokTables:
		kind = ShowTables
	case TokIndexes:
		kind = ShowIndexes
	case TokViews:
		kind = ShowViews
	default:
		return nil, fmt.Errorf("lang: expected TABLES, INDEXES, or VIEWS after SHOW")
	}
	p.advance()
	return &Show{Kind: kind}, nil
}

func (p *Parser) parseDescribe() (Node, error) {
	p.advance() // DESCRIBE
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	return &Describe{Name: name.Value}, nil
}

func (p *Parser) parseAnalyze() (Node, error) {
	p.advance() // ANALYZE
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	return &Analyze{Name: name.Value}, nil
}

// ---- Procedural statements ----

func (p *Parser) parseFunctionDef() (Node, error) {
	p.advance() // FUNCTION
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	var params []string
	if !p.at(TokRParen) {
		for {
			pn, err := p.expect(TokIdent)
			if err != nil {
				return nil, err
			}
			params = append(params, pn.Value)
			if !p.accept(TokComma) {
				break
			}
		}
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionDef{Name: name.Value, Params: params, Body: body}, nil
}

func (p *Parser) parseBlock() ([]Node, error) {
	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	var body []Node
	for !p.at(TokRBrace) && !p.at(TokEOF) {
		stmt, err := p.ParseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
		p.accept(TokSemicolon)
	}
	if _, err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseLet() (Node, error) {
	p.advance() // LET
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokAssign); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Let{Name: name.Value, Value: val}, nil
}

func (p *Parser) parseMatch() (Node, error) {
	p.advance() // MATCH
	subj, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	m := &Match{Subject: subj}
	for p.accept(TokCase) {
		var pattern Node
		if p.at(TokIdent) && p.cur().Value == "_" {
			p.advance()
		} else {
			pattern, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(TokArrow); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Cases = append(m.Cases, MatchCase{Pattern: pattern, Body: body})
		p.accept(TokComma)
	}
	if _, err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Parser) parseFor() (Node, error) {
	p.advance() // FOR
	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokIn); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &For{Var: name.Value, Iter: iter, Body: body}, nil
}

func (p *Parser) parseWhile() (Node, error) {
	p.advance() // WHILE
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body}, nil
}

func (p *Parser) parseTry() (Node, error) {
	p.advance() // TRY
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokCatch); err != nil {
		return nil, err
	}
	catch, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Try{Body: body, Catch: catch}, nil
}

// ---- Expressions, by ascending precedence ----

func (p *Parser) parseExpr() (Node, error) { return p.parseCoalesce() }

func (p *Parser) parseCoalesce() (Node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.at(TokCoalesce) {
		p.advance()
		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: TokCoalesce, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: TokOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(TokAnd) {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: TokAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.accept(TokNot) {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: TokNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[TokenType]bool{
	TokEq: true, TokNotEq: true, TokGt: true, TokLt: true, TokGtEq: true, TokLtEq: true,
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for comparisonOps[p.cur().Type] {
		op := p.advance().Type
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TokPlus) || p.at(TokMinus) {
		op := p.advance().Type
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(TokStar) || p.at(TokSlash) {
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.accept(TokMinus) {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: TokMinus, Operand: operand}, nil
	}
	return p.parsePipe()
}

func (p *Parser) parsePipe() (Node, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for p.at(TokPipe) {
		p.advance()
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		left = Pipe{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePostfix() (Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(TokDot):
			p.advance()
			field, err := p.expect(TokIdent)
			if err != nil {
				return nil, err
			}
			expr = FieldAccess{Target: expr, Field: field.Value}
		case p.at(TokDoubleColon):
			p.advance()
			typ, err := p.expect(TokIdent)
			if err != nil {
				return nil, err
			}
			expr = Cast{Target: expr, Type: typ.Value}
		case p.at(TokLParen):
			call, ok := expr.(Identifier)
			if !ok {
				return expr, nil
			}
			p.advance()
			var args []Node
			if !p.at(TokRParen) {
				for {
					var a Node
					if p.at(TokStar) {
						p.advance()
						a = Identifier{Name: "*"}
					} else {
						var err error
						a, err = p.parseExpr()
						if err != nil {
							return nil, err
						}
					}
					args = append(args, a)
					if !p.accept(TokComma) {
						break
					}
				}
			}
			if _, err := p.expect(TokRParen); err != nil {
				return nil, err
			}
			expr = Call{Callee: Identifier{Name: call.Name}, Args: args}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.cur()
	switch tok.Type {
	case TokNumber:
		p.advance()
		if strings.Contains(tok.Value, ".") {
			f, err := strconv.ParseFloat(tok.Value, 64)
			if err != nil {
				return nil, err
			}
			return Literal{Value: f}, nil
		}
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, err
		}
		return Literal{Value: n}, nil
	case TokString:
		p.advance()
		return Literal{Value: tok.Value}, nil
	case TokIdent:
		p.advance()
		switch strings.ToLower(tok.Value) {
		case "true":
			return Literal{Value: true}, nil
		case "false":
			return Literal{Value: false}, nil
		case "null":
			return Literal{Value: nil}, nil
		}
		return Identifier{Name: tok.Value}, nil
	case TokLParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return e, nil
	case TokLBracket:
		p.advance()
		var elems []Node
		if !p.at(TokRBracket) {
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
				if !p.accept(TokComma) {
					break
				}
			}
		}
		if _, err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
		return ListLiteral{Elements: elems}, nil
	case TokLBrace:
		p.advance()
		lit := StructLiteral{}
		if !p.at(TokRBrace) {
			for {
				key, err := p.expect(TokIdent)
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(TokColon); err != nil {
					return nil, err
				}
				val, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				lit.Keys = append(lit.Keys, key.Value)
				lit.Values = append(lit.Values, val)
				if !p.accept(TokComma) {
					break
				}
			}
		}
		if _, err := p.expect(TokRBrace); err != nil {
			return nil, err
		}
		return lit, nil
	default:
		return nil, fmt.Errorf("lang: unexpected token %v %q at %d:%d", tok.Type, tok.Value, tok.Line, tok.Column)
	}
}
