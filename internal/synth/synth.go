// Package synth splits raw model output into the visible answer and a list
// of follow-up questions.
package synth

import (
	"regexp"
	"strings"
	"unicode"

	"page-assist/internal/locale"
)

const (
	// MaxExtracted caps questions taken from the model's own block.
	MaxExtracted = 4
	// MaxFallback caps questions taken from the static tables.
	MaxFallback = 3
)

// Response is an answer with its follow-up suggestions.
type Response struct {
	Answer      string   `json:"answer"`
	Suggestions []string `json:"suggestions"`
	// Extracted is true when the suggestions came from the model output.
	Extracted bool `json:"extracted"`
}

type headerPattern struct {
	locale string
	re     *regexp.Regexp
}

// Synthesizer holds compiled header patterns; it is safe for concurrent use.
type Synthesizer struct {
	catalog  *locale.Catalog
	patterns []headerPattern
}

// numbered line ending in a question mark: "1. What is X?", "2) ...", "3．..."
// Horizontal space includes no-break spaces; lines may end in CRLF.
var questionLine = regexp.MustCompile(`(?m)^[\p{Zs}\t]*(?:\*\*|__)?[\p{Zs}\t]*\d{1,2}[.)．、][\p{Zs}\t]*(.+?)[\p{Zs}\t]*\r?$`)

// New compiles one header pattern per locale of the catalog.
func New(catalog *locale.Catalog) *Synthesizer {
	s := &Synthesizer{catalog: catalog}
	for _, code := range catalog.Codes() {
		s.patterns = append(s.patterns, headerPattern{locale: code, re: compileHeader(catalog.Get(code).Headers)})
	}
	return s
}

// compileHeader matches a whole line holding one of phrases, optionally
// decorated as a markdown heading or bold text and followed by a colon.
func compileHeader(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	deco := `(?:\*\*|__)?`
	sp := `[\p{Zs}\t]*`
	expr := `(?im)^[\p{Zs}\t>]*(?:#{1,6}` + sp + `)?` + deco + sp + `(?:` + strings.Join(quoted, "|") + `)` + sp +
		deco + sp + `[:：]?` + sp + deco + sp + `\r?$`
	return regexp.MustCompile(expr)
}

// order puts the requested locale's pattern first, then the rest in catalog order.
func (s *Synthesizer) order(code string) []headerPattern {
	out := make([]headerPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		if p.locale == code {
			out = append(out, p)
		}
	}
	for _, p := range s.patterns {
		if p.locale != code {
			out = append(out, p)
		}
	}
	return out
}

// Split separates raw into answer and suggestions. The first header pattern
// (in locale priority order) that matches wins; its last occurrence marks the
// start of the block, which runs to the end of raw and is removed from the
// answer. When no header matches, or the block holds no well-formed question,
// suggestions come from the static table for (siteType, localeCode).
func (s *Synthesizer) Split(raw, localeCode, siteType string) Response {
	for _, p := range s.order(localeCode) {
		locs := p.re.FindAllStringIndex(raw, -1)
		if len(locs) == 0 {
			continue
		}
		last := locs[len(locs)-1]
		answer := strings.TrimRightFunc(raw[:last[0]], unicode.IsSpace)
		questions := extractQuestions(raw[last[1]:])
		if len(questions) == 0 {
			return Response{Answer: answer, Suggestions: s.fallback(siteType, localeCode)}
		}
		return Response{Answer: answer, Suggestions: questions, Extracted: true}
	}
	return Response{Answer: raw, Suggestions: s.fallback(siteType, localeCode)}
}

func extractQuestions(block string) []string {
	var out []string
	for _, m := range questionLine.FindAllStringSubmatch(block, -1) {
		q := strings.TrimSpace(strings.Trim(m[1], "*_ \t"))
		if q == "" || !(strings.HasSuffix(q, "?") || strings.HasSuffix(q, "？")) {
			continue
		}
		out = append(out, q)
		if len(out) == MaxExtracted {
			break
		}
	}
	return out
}

func (s *Synthesizer) fallback(siteType, code string) []string {
	set := s.catalog.Suggestions(siteType, code)
	if len(set) > MaxFallback {
		set = set[:MaxFallback]
	}
	out := make([]string, len(set))
	copy(out, set)
	return out
}
