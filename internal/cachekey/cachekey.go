// Package cachekey derives content-addressed cache keys from a page identity.
//
// Keys are the lowercase hex SHA-256 of a canonical JSON document, so the same
// identity always maps to the same 64-character key and no timestamp or
// randomness ever enters the digest.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/url"
	"strings"

	"page-assist/internal/apperr"
)

// Length is the length of every derived key.
const Length = sha256.Size * 2

// Identity is what a caller knows about a page when it asks for a key.
type Identity struct {
	URL   string
	Title string
	// Content is page text the caller already holds. Only the hybrid strategy reads it.
	Content string
}

// Strategy turns an Identity into a key.
type Strategy interface {
	Name() string
	Derive(id Identity) (string, error)
}

const (
	NameHash   = "hash"
	NameURL    = "url"
	NameHybrid = "hybrid"
)

// Hash keys on (url, title): a retitled page is a miss.
type Hash struct{}

func (Hash) Name() string { return NameHash }

func (Hash) Derive(id Identity) (string, error) {
	u, err := NormalizeURL(id.URL)
	if err != nil {
		return "", err
	}
	return digest(canonical{URL: u, Title: normalizeTitle(id.Title)}), nil
}

// URLOnly keys on the url alone: title variants share one slot.
type URLOnly struct{}

func (URLOnly) Name() string { return NameURL }

func (URLOnly) Derive(id Identity) (string, error) {
	u, err := NormalizeURL(id.URL)
	if err != nil {
		return "", err
	}
	return digest(canonical{URL: u}), nil
}

// Hybrid keys on (url, title, content digest) when content is known and
// behaves like Hash otherwise.
type Hybrid struct{}

func (Hybrid) Name() string { return NameHybrid }

func (Hybrid) Derive(id Identity) (string, error) {
	u, err := NormalizeURL(id.URL)
	if err != nil {
		return "", err
	}
	c := canonical{URL: u, Title: normalizeTitle(id.Title)}
	if text := strings.TrimSpace(id.Content); text != "" {
		sum := sha256.Sum256([]byte(text))
		c.Content = hex.EncodeToString(sum[:])
	}
	return digest(c), nil
}

// Default is the strategy used when a caller does not pick one.
var Default Strategy = Hash{}

// ByName resolves a configured strategy name. Empty selects Default.
func ByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameHash:
		return Hash{}, nil
	case NameURL:
		return URLOnly{}, nil
	case NameHybrid:
		return Hybrid{}, nil
	default:
		return nil, apperr.New(apperr.InvalidInput, "cachekey", "unknown cache strategy "+name)
	}
}

// Valid reports whether key has the shape every strategy derives: Length
// lowercase hex characters.
func Valid(key string) bool {
	if len(key) != Length {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// canonical has a fixed field order; encoding/json emits struct fields in
// declaration order, so equal values always serialize to equal bytes.
type canonical struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

func digest(c canonical) string {
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// NormalizeURL validates an absolute http(s) url and returns its canonical form.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.New(apperr.InvalidInput, "cachekey", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidInput, "cachekey", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apperr.New(apperr.InvalidInput, "cachekey", "url must be absolute http(s)")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", apperr.New(apperr.InvalidInput, "cachekey", "url has no host")
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
		u.RawPath = ""
	}
	return u.String(), nil
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
