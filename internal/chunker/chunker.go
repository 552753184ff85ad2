package chunker

import (
	"strings"
	"unicode"
)

// DefaultMaxTokens is the page-text budget used when Options leaves it unset.
const DefaultMaxTokens = 3000

// Options controls how text is clipped.
type Options struct {
	MaxTokens int
}

// Clipped is the head of a document that fits the budget.
type Clipped struct {
	Text       string
	TokenCount int
	Truncated  bool
}

// Clip keeps the leading MaxTokens tokens of text, preserving the original
// line breaks and spacing inside the kept part.
// Tokens are approximated by whitespace-delimited words to avoid heavy dependencies.
func Clip(text string, opts Options) Clipped {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Clipped{}
	}

	count := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if inWord {
			continue
		}
		inWord = true
		if count == opts.MaxTokens {
			return Clipped{
				Text:       strings.TrimRightFunc(text[:i], unicode.IsSpace),
				TokenCount: count,
				Truncated:  true,
			}
		}
		count++
	}
	return Clipped{Text: text, TokenCount: count}
}
