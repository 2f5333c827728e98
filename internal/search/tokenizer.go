package search

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinWordLength is the shortest word, in characters, that counts as a valid search word.
const DefaultMinWordLength = 4

// Modifier is the boolean prefix of a query token.
type Modifier string

const (
	// ModifierNone marks a required term once rendered.
	ModifierNone Modifier = ""
	// ModifierRequire marks a required term.
	ModifierRequire Modifier = "+"
	// ModifierExclude marks a term that must not match.
	ModifierExclude Modifier = "-"
	// ModifierOr marks a term OR'd with its neighbours.
	ModifierOr Modifier = "|"
)

// Token is one (modifier, term) pair. Quoted phrases keep their quotes in Term.
type Token struct {
	Modifier Modifier
	Term     string
}

// IsPhrase reports whether the term is a double-quoted phrase.
func (t Token) IsPhrase() bool {
	return len(t.Term) >= 2 && t.Term[0] == '"' && t.Term[len(t.Term)-1] == '"'
}

// Text returns the term without surrounding phrase quotes.
func (t Token) Text() string {
	if t.IsPhrase() {
		return t.Term[1 : len(t.Term)-1]
	}
	return t.Term
}

// TokenizedQuery is the result of tokenizing a raw search string.
type TokenizedQuery struct {
	Tokens []Token
	// ValidWords counts constituent words that passed the length and stop-word checks.
	ValidWords int
	// InvalidWords lists rejected words in first-seen order, without duplicates.
	InvalidWords []string
}

// Fatal reports whether the query consists solely of invalid words and must not run.
func (q *TokenizedQuery) Fatal() bool {
	return q.ValidWords == 0 && len(q.InvalidWords) > 0
}

// HasDroppedWords reports whether some, but not all, words were rejected.
func (q *TokenizedQuery) HasDroppedWords() bool {
	return q.ValidWords > 0 && len(q.InvalidWords) > 0
}

// Tokenizer splits raw search input into boolean tokens and classifies its words.
type Tokenizer struct {
	minWordLength int
}

// NewTokenizer returns a tokenizer; minWordLength <= 0 uses DefaultMinWordLength.
func NewTokenizer(minWordLength int) *Tokenizer {
	if minWordLength <= 0 {
		minWordLength = DefaultMinWordLength
	}
	return &Tokenizer{minWordLength: minWordLength}
}

var parenStripper = strings.NewReplacer("(", "", ")", "")

// Tokenize parses raw into tokens. Grouping parentheses are discarded. A leading "|" is
// dropped; any other "|" also turns the previous token into an OR term.
func (t *Tokenizer) Tokenize(raw string) *TokenizedQuery {
	raw = strings.TrimSpace(parenStripper.Replace(raw))
	out := &TokenizedQuery{}
	seenInvalid := make(map[string]struct{})

	i, n := 0, len(raw)
	for i < n {
		if isQuerySpace(raw[i]) {
			i++
			continue
		}
		mod := ModifierNone
		if c := raw[i]; (c == '-' || c == '+' || c == '|') && i+1 < n && !isQuerySpace(raw[i+1]) {
			mod = Modifier(c)
			i++
		}

		var term string
		if raw[i] == '"' {
			if end := strings.IndexByte(raw[i+1:], '"'); end > 0 {
				term = raw[i : i+end+2]
				i += end + 2
			}
		}
		if term == "" {
			j := i
			for j < n && !isQuerySpace(raw[j]) {
				j++
			}
			term = raw[i:j]
			i = j
		}

		if mod == ModifierOr {
			if len(out.Tokens) > 0 {
				out.Tokens[len(out.Tokens)-1].Modifier = ModifierOr
			} else {
				mod = ModifierNone
			}
		}
		tok := Token{Modifier: mod, Term: term}
		out.Tokens = append(out.Tokens, tok)

		for _, word := range SplitWords(tok.Text()) {
			if t.IsValidWord(word) {
				out.ValidWords++
				continue
			}
			if _, dup := seenInvalid[word]; !dup {
				seenInvalid[word] = struct{}{}
				out.InvalidWords = append(out.InvalidWords, word)
			}
		}
	}
	return out
}

// IsValidWord reports whether word is long enough and not a stop word.
func (t *Tokenizer) IsValidWord(word string) bool {
	return utf8.RuneCountInString(word) >= t.minWordLength && !IsStopWord(word)
}

// SplitWords splits a term into its constituent words for validity checking.
func SplitWords(term string) []string {
	return strings.FieldsFunc(term, isWordDelimiter)
}

func isQuerySpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// isWordDelimiter matches ASCII controls, space, ( ) + , - . / : ; < = > ? @ [ \ ] ^ ` { | } ~ and DEL.
func isWordDelimiter(r rune) bool {
	switch {
	case r <= ' ':
		return true
	case r == '(' || r == ')' || r == '+':
		return true
	case r >= ',' && r <= '/':
		return true
	case r >= ':' && r <= '@':
		return true
	case r >= '[' && r <= '^':
		return true
	case r == '`':
		return true
	case r >= '{' && r <= 0x7f:
		return true
	}
	return false
}
