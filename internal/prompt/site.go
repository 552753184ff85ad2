package prompt

import (
	"net/url"
	"strings"
)

// Site types recognised by DetectSiteType.
const (
	SiteYouTube       = "youtube"
	SiteGitHub        = "github"
	SiteWikipedia     = "wikipedia"
	SiteStackOverflow = "stackoverflow"
	SiteReddit        = "reddit"
	SiteNews          = "news"
	SiteShopping      = "shopping"
	SiteDocs          = "docs"
	SiteGeneric       = "generic"
)

var exactHosts = map[string]string{
	"youtube.com":           SiteYouTube,
	"youtu.be":              SiteYouTube,
	"github.com":            SiteGitHub,
	"gist.github.com":       SiteGitHub,
	"stackoverflow.com":     SiteStackOverflow,
	"superuser.com":         SiteStackOverflow,
	"serverfault.com":       SiteStackOverflow,
	"askubuntu.com":         SiteStackOverflow,
	"reddit.com":            SiteReddit,
	"old.reddit.com":        SiteReddit,
	"news.ycombinator.com":  SiteNews,
	"bbc.com":               SiteNews,
	"bbc.co.uk":             SiteNews,
	"cnn.com":               SiteNews,
	"nytimes.com":           SiteNews,
	"theguardian.com":       SiteNews,
	"reuters.com":           SiteNews,
	"apnews.com":            SiteNews,
	"washingtonpost.com":    SiteNews,
	"lemonde.fr":            SiteNews,
	"elpais.com":            SiteNews,
	"spiegel.de":            SiteNews,
	"etsy.com":              SiteShopping,
	"aliexpress.com":        SiteShopping,
	"walmart.com":           SiteShopping,
	"bestbuy.com":           SiteShopping,
	"pkg.go.dev":            SiteDocs,
	"developer.mozilla.org": SiteDocs,
	"learn.microsoft.com":   SiteDocs,
	"docs.python.org":       SiteDocs,
}

var hostSuffixes = []struct {
	suffix string
	site   string
}{
	{".wikipedia.org", SiteWikipedia},
	{".stackexchange.com", SiteStackOverflow},
	{".readthedocs.io", SiteDocs},
}

// shopping brands with many country domains (amazon.de, ebay.co.uk, ...)
var shoppingBrands = []string{"amazon", "ebay"}

// DetectSiteType classifies a page URL by host and path. Anything that is
// not a parseable absolute URL is generic.
func DetectSiteType(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return SiteGeneric
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.ToLower(u.Path)

	if site, ok := exactHosts[host]; ok {
		return site
	}
	for _, s := range hostSuffixes {
		if strings.HasSuffix(host, s.suffix) {
			return s.site
		}
	}
	for _, brand := range shoppingBrands {
		if host == brand+".com" || strings.HasPrefix(host, brand+".") {
			return SiteShopping
		}
	}
	switch {
	case strings.HasPrefix(host, "news."):
		return SiteNews
	case strings.HasPrefix(host, "docs.") || strings.HasPrefix(host, "developer.") ||
		strings.HasPrefix(path, "/docs/") || path == "/docs":
		return SiteDocs
	case strings.Contains(path, "/product/") || strings.Contains(path, "/dp/"):
		return SiteShopping
	}
	return SiteGeneric
}
