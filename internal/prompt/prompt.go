// Package prompt composes the system and user prompts sent to a provider.
// Output is a pure function of the input and the locale tables.
package prompt

import (
	"fmt"
	"strings"

	"page-assist/internal/apperr"
	"page-assist/internal/chunker"
	"page-assist/internal/locale"
)

// SuggestionCount is how many follow-up questions the model is asked for.
const SuggestionCount = 3

// Input describes one question about one page.
type Input struct {
	URL      string
	Title    string
	PageText string
	Question string
	Locale   string
	// SiteType overrides detection from URL when set.
	SiteType string
}

// Prompt is the built prompt pair.
type Prompt struct {
	System    string
	User      string
	Locale    string
	SiteType  string
	Truncated bool
}

// Builder holds the immutable inputs shared by every prompt.
type Builder struct {
	catalog   *locale.Catalog
	product   string
	maxTokens int
}

// NewBuilder returns a Builder. maxTokens bounds the page text (in words);
// zero uses chunker.DefaultMaxTokens.
func NewBuilder(catalog *locale.Catalog, product string, maxTokens int) *Builder {
	if product == "" {
		product = "Page Assist"
	}
	return &Builder{catalog: catalog, product: product, maxTokens: maxTokens}
}

var siteHints = map[string]string{
	SiteYouTube:       "The page is a video. Its content is the title, description and transcript when available.",
	SiteGitHub:        "The page is a code repository or one of its files, issues or pull requests.",
	SiteWikipedia:     "The page is an encyclopedia article. Stay factual and neutral.",
	SiteStackOverflow: "The page is a programming Q&A thread. Prefer the accepted and highest voted answers.",
	SiteReddit:        "The page is a discussion thread. Distinguish the original post from the comments.",
	SiteNews:          "The page is a news article. Separate reported facts from opinion.",
	SiteShopping:      "The page is a product listing. Focus on features, price and reviews.",
	SiteDocs:          "The page is technical documentation. Quote exact names and include short examples when useful.",
}

// Build renders the prompts. The question must be non-empty and the locale
// supported; both are InvalidInput otherwise.
func (b *Builder) Build(in Input) (Prompt, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return Prompt{}, apperr.New(apperr.InvalidInput, "prompt.Build", "question is empty")
	}
	code, err := b.catalog.Normalize(in.Locale)
	if err != nil {
		return Prompt{}, err
	}
	loc := b.catalog.Get(code)

	site := in.SiteType
	if site == "" {
		site = DetectSiteType(in.URL)
	}

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are %s, an assistant that answers questions about the web page the user is viewing.\n", b.product)
	if hint, ok := siteHints[site]; ok {
		sys.WriteString(hint + "\n")
	}
	fmt.Fprintf(&sys, "Answer in %s. Base the answer on the page content and say so when the page does not contain the answer.\n", loc.Language)
	fmt.Fprintf(&sys, "After the answer, write a line containing exactly %q followed by %d short follow-up questions "+
		"the user might ask next, numbered \"1.\", \"2.\" and so on, each on its own line and ending with a question mark.",
		loc.Header, SuggestionCount)

	clipped := chunker.Clip(in.PageText, chunker.Options{MaxTokens: b.maxTokens})

	var user strings.Builder
	if title := strings.TrimSpace(in.Title); title != "" {
		fmt.Fprintf(&user, "Page title: %s\n", title)
	}
	if u := strings.TrimSpace(in.URL); u != "" {
		fmt.Fprintf(&user, "Page URL: %s\n", u)
	}
	user.WriteString("\nPage content:\n")
	if clipped.Text == "" {
		user.WriteString("(not available)\n")
	} else {
		user.WriteString("\"\"\"\n" + clipped.Text + "\n\"\"\"\n")
		if clipped.Truncated {
			user.WriteString("(content truncated)\n")
		}
	}
	fmt.Fprintf(&user, "\nQuestion: %s", question)

	return Prompt{
		System:    sys.String(),
		User:      user.String(),
		Locale:    code,
		SiteType:  site,
		Truncated: clipped.Truncated,
	}, nil
}
