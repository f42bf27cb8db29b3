// Package lang implements the embedded query/procedural language of
// spec.md §4.I/§6: a lexer, a recursive-descent parser producing a
// typed AST, and a tree-walking evaluator with lexical closures and
// trampolined tail calls.
package lang

import "fmt"

// TokenType enumerates every lexical category the grammar in spec.md §6
// requires: SQL-like keywords, procedural keywords, operators
// (`+ - * / == != > < >= <= and or not ?? :: |> @`), and punctuation.
type TokenType int

const (
	TokEOF TokenType = iota
	TokIdent
	TokNumber
	TokString

	// SQL-like keywords.
	TokSelect
	TokDistinct
	TokFrom
	TokJoin
	TokOn
	TokWhere
	TokGroup
	TokBy
	TokHaving
	TokOrder
	TokAsc
	TokDesc
	TokLimit
	TokInsert
	TokInto
	TokValues
	TokUpdate
	TokSet
	TokDelete
	TokCreate
	TokTable
	TokIndex
	TokUsing
	TokUnique
	TokMaterialized
	TokView
	TokAs
	TokDrop
	TokRefresh
	TokShow
	TokTables
	TokIndexes
	TokViews
	TokDescribe
	TokAnalyze
	TokAnd
	TokOr
	TokNot

	// Procedural keywords.
	TokFunction
	TokLet
	TokMatch
	TokCase
	TokFor
	TokIn
	TokWhile
	TokTry
	TokCatch
	TokModule
	TokMacro
	TokImport

	// Operators and punctuation.
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokEq
	TokNotEq
	TokGt
	TokLt
	TokGtEq
	TokLtEq
	TokAssign
	TokCoalesce // ??
	TokDoubleColon
	TokPipe // |>
	TokAt
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
	TokComma
	TokDot
	TokColon
	TokArrow // =>
	TokSemicolon
)

var keywords = map[string]TokenType{
	"select": TokSelect, "distinct": TokDistinct, "from": TokFrom, "join": TokJoin,
	"on": TokOn, "where": TokWhere, "group": TokGroup, "by": TokBy, "having": TokHaving,
	"order": TokOrder, "asc": TokAsc, "desc": TokDesc, "limit": TokLimit,
	"insert": TokInsert, "into": TokInto, "values": TokValues, "update": TokUpdate,
	"set": TokSet, "delete": TokDelete, "create": TokCreate, "table": TokTable,
	"index": TokIndex, "using": TokUsing, "unique": TokUnique,
	"materialized": TokMaterialized, "view": TokView, "as": TokAs, "drop": TokDrop,
	"refresh": TokRefresh, "show": TokShow, "tables": TokTables,
	"indexes": TokIndexes, "views": TokViews, "describe": TokDescribe,
	"analyze": TokAnalyze, "and": TokAnd, "or": TokOr, "not": TokNot,
	"function": TokFunction, "let": TokLet, "match": TokMatch, "case": TokCase,
	"for": TokFor, "in": TokIn, "while": TokWhile, "try": TokTry, "catch": TokCatch,
	"module": TokModule, "macro": TokMacro, "import": TokImport,
}

// Token is one lexeme with its source position.
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

func (t Token) String() string {
	return fmt.Sprintf("%d:%d %v %q", t.Line, t.Column, t.Type, t.Value)
}
