package lang

import "testing"

func tokenTypes(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func assertTypes(t *testing.T, input string, want []TokenType) {
	t.Helper()
	toks, err := NewLexer(input).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", input, err)
	}
	got := tokenTypes(toks)
	if len(got) != len(want) {
		t.Fatalf("Tokenize(%q) = %v, want %v", input, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("Tokenize(%q)[%d] = %v, want %v", input, i, got[i], want[i])
		}
	}
}

func TestLexerKeywordsCaseInsensitive(t *testing.T) {
	assertTypes(t, "SELECT * FROM t", []TokenType{TokSelect, TokStar, TokFrom, TokIdent, TokEOF})
	assertTypes(t, "select * from t", []TokenType{TokSelect, TokStar, TokFrom, TokIdent, TokEOF})
}

func TestLexerOperators(t *testing.T) {
	assertTypes(t, "a == b != c >= d <= e ?? f :: g |> h @ i",
		[]TokenType{
			TokIdent, TokEq, TokIdent, TokNotEq, TokIdent, TokGtEq, TokIdent, TokLtEq,
			TokIdent, TokCoalesce, TokIdent, TokDoubleColon, TokIdent, TokPipe, TokIdent,
			TokAt, TokIdent, TokEOF,
		})
}

func TestLexerStringEscapes(t *testing.T) {
	toks, err := NewLexer(`"hello\nworld"`).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Type != TokString || toks[0].Value != "hello\nworld" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestLexerLineAndColumnTracking(t *testing.T) {
	toks, err := NewLexer("a\nb").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Line != 1 {
		t.Fatalf("first token line = %d, want 1", toks[0].Line)
	}
	if toks[1].Line != 2 {
		t.Fatalf("second token line = %d, want 2", toks[1].Line)
	}
}

func TestLexerComment(t *testing.T) {
	assertTypes(t, "a -- trailing comment\nb", []TokenType{TokIdent, TokIdent, TokEOF})
}

func TestLexerNumberAndFloat(t *testing.T) {
	toks, err := NewLexer("42 3.14").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Value != "42" || toks[1].Value != "3.14" {
		t.Fatalf("got %+v", toks)
	}
}

func TestLexerUnterminatedStringErrors(t *testing.T) {
	if _, err := NewLexer(`"unterminated`).Tokenize(); err == nil {
		t.Fatalf("expected error for unterminated string")
	}
}
