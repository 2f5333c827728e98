package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_Modifiers(t *testing.T) {
	tok := NewTokenizer(DefaultMinWordLength)
	tests := []struct {
		name string
		raw  string
		want []Token
	}{
		{"plain words", "apple banana", []Token{{ModifierNone, "apple"}, {ModifierNone, "banana"}}},
		{"require and exclude", "+apple -banana", []Token{{ModifierRequire, "apple"}, {ModifierExclude, "banana"}}},
		{"phrase keeps quotes", `+"green apple" pear`, []Token{{ModifierRequire, `"green apple"`}, {ModifierNone, "pear"}}},
		{"unclosed quote", `"green apple`, []Token{{ModifierNone, `"green`}, {ModifierNone, "apple"}}},
		{"parentheses stripped", "(apple) (banana)", []Token{{ModifierNone, "apple"}, {ModifierNone, "banana"}}},
		{"leading or discarded", "|apple banana", []Token{{ModifierNone, "apple"}, {ModifierNone, "banana"}}},
		{"or merges into previous", "apple |banana", []Token{{ModifierOr, "apple"}, {ModifierOr, "banana"}}},
		{"or chain", "apple |banana |cherry", []Token{{ModifierOr, "apple"}, {ModifierOr, "banana"}, {ModifierOr, "cherry"}}},
		{"or after exclude", "-apple |banana", []Token{{ModifierOr, "apple"}, {ModifierOr, "banana"}}},
		{"lone modifier is a term", "apple - banana", []Token{{ModifierNone, "apple"}, {ModifierNone, "-"}, {ModifierNone, "banana"}}},
		{"extra whitespace", "  apple \t\n banana  ", []Token{{ModifierNone, "apple"}, {ModifierNone, "banana"}}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tok.Tokenize(tt.raw)
			assert.Equal(t, tt.want, q.Tokens)
		})
	}
}

func TestTokenize_WordValidity(t *testing.T) {
	tok := NewTokenizer(DefaultMinWordLength)

	q := tok.Tokenize("cat dog")
	assert.Equal(t, 0, q.ValidWords)
	assert.Equal(t, []string{"cat", "dog"}, q.InvalidWords)
	assert.True(t, q.Fatal())

	q = tok.Tokenize("about would")
	assert.True(t, q.Fatal(), "stop words only")

	q = tok.Tokenize("widgets cat the dog cat")
	assert.False(t, q.Fatal())
	assert.True(t, q.HasDroppedWords())
	assert.Equal(t, 1, q.ValidWords)
	assert.Equal(t, []string{"cat", "the", "dog"}, q.InvalidWords)
	require.Len(t, q.Tokens, 5, "invalid words stay in the token list")

	q = tok.Tokenize("")
	assert.False(t, q.Fatal())
	assert.False(t, q.HasDroppedWords())
	assert.Empty(t, q.InvalidWords)

	q = tok.Tokenize(`"the big widget"`)
	assert.Equal(t, 1, q.ValidWords)
	assert.Equal(t, []string{"the", "big"}, q.InvalidWords)
	assert.Equal(t, `"the big widget"`, q.Tokens[0].Term)
}

func TestTokenize_InvalidWordsListedOnceInFirstSeenOrder(t *testing.T) {
	tok := NewTokenizer(DefaultMinWordLength)
	q := tok.Tokenize(`dog widgets cat +dog "cat the" -the Cat`)
	assert.Equal(t, []string{"dog", "cat", "the", "Cat"}, q.InvalidWords)
	assert.Equal(t, 1, q.ValidWords)
	require.Len(t, q.Tokens, 7)
}

func TestTokenize_SubWordsCounted(t *testing.T) {
	tok := NewTokenizer(DefaultMinWordLength)
	q := tok.Tokenize("e-mail,server")
	assert.Equal(t, 2, q.ValidWords, "mail and server")
	assert.Equal(t, []string{"e"}, q.InvalidWords)
	require.Len(t, q.Tokens, 1)
	assert.Equal(t, "e-mail,server", q.Tokens[0].Term)
}

func TestIsValidWord(t *testing.T) {
	tok := NewTokenizer(DefaultMinWordLength)
	assert.True(t, tok.IsValidWord("golang"))
	assert.False(t, tok.IsValidWord("go"))
	assert.True(t, tok.IsValidWord("日本語学"), "length counts characters, not bytes")
	assert.False(t, tok.IsValidWord("日本"))
	assert.False(t, tok.IsValidWord("about"))
	assert.True(t, tok.IsValidWord("About"), "stop words are case-sensitive")

	short := NewTokenizer(2)
	assert.True(t, short.IsValidWord("ox"))
	assert.False(t, short.IsValidWord("go"), "stop words stay invalid at any length")
	assert.Equal(t, DefaultMinWordLength, NewTokenizer(0).minWordLength)
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"hello world", []string{"hello", "world"}},
		{"a,b.c/d", []string{"a", "b", "c", "d"}},
		{"x:y;z<w=v>u?t@s", []string{"x", "y", "z", "w", "v", "u", "t", "s"}},
		{"[a]b\\c^d`e{f|g}h~i", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}},
		{"under_score", []string{"under_score"}},
		{"don't", []string{"don't"}},
		{"café", []string{"café"}},
		{"+(-)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SplitWords(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToken_Text(t *testing.T) {
	assert.Equal(t, "two words", Token{Term: `"two words"`}.Text())
	assert.True(t, Token{Term: `"x"`}.IsPhrase())
	assert.False(t, Token{Term: `"`}.IsPhrase())
	assert.Equal(t, "plain", Token{Term: "plain"}.Text())
}
